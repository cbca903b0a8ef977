// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logarchive packs an environment's log directory into a single
// compressed tar file at teardown, so the logs of a failed test run
// survive the removal of its temporary directories.
//
// Two codecs are offered: zstd for the best ratio on text logs and LZ4
// when archival must be as cheap as possible.
package logarchive
