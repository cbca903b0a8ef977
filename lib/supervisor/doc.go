// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor starts the external daemons holoenv depends on and
// decides when they are ready.
//
// [Spawn] starts one child process with its stderr (and, unless piped,
// stdout) redirected to a log file, writes an optional secret to its
// stdin, and returns a [Handle]. A reaper goroutine records the exit
// status; [Handle.Close] sends SIGTERM exactly once and never waits.
//
// Readiness is observed two ways. [AwaitLogMarker] polls a log file
// for a marker string a bounded number of times. [AwaitStreamMarker]
// and [ScanStream] read the child's piped stdout line by line and stop
// as soon as the marker or callback is satisfied, leaving the rest of
// the stream in the reader.
package supervisor
