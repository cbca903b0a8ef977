// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package conductorconfig generates the YAML document the conductor
// reads at startup: where its data lives, how to reach the key-store,
// and which admin websocket interface to open.
//
// [Generate] is a pure function of its [Params]; [Write] persists the
// result once under [FileName] in the conductor's working directory.
package conductorconfig
