// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for holoenv packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so tests never hang on a channel. These are the only
// real wall-clock timeouts in the test suite; time-dependent logic
// under test uses lib/clock's fake.
//
// [SocketDir] creates a short directory in /tmp for Unix sockets,
// which are limited to 108-byte paths.
//
// [WriteScript] writes an executable /bin/sh script. Supervisor and
// environment tests use scripts as stand-ins for the conductor and
// key-store binaries.
//
// All helpers call t.Fatalf on failure.
package testutil
