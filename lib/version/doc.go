// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which holoenv build is running and which
// conductor and key-store executables it drives.
//
// The build stamps GitCommit, GitDirty, BuildTime and Version with
// -ldflags -X. Unstamped builds (go run, go test) report "unknown" and
// a -dev version.
//
// [ExecutableDigest] hashes a binary's contents with BLAKE3, so two
// machines running "holochain" can tell whether they run the same one.
package version
