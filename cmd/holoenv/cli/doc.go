// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the holoenv
// binary: a tree of [Command] values dispatched by the first
// positional argument, pflag flag sets parsed per command, typo
// suggestions for unknown commands and flags, and the shared logger
// and JSON output helpers.
package cli
