// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envstate records a running environment in its work
// directory so other holoenv invocations can find it.
//
// "holoenv up" writes a [State] once the conductor is ready and
// removes it on teardown. Commands given --work-dir read it with
// [Check] to learn the admin port and key-store URL instead of taking
// them as flags. Check also reports whether the recorded processes are
// still running, so a file left behind by a crashed environment is
// recognized as stale.
//
// The file is written atomically (temporary file, fsync, rename, fsync
// parent directory) so readers never see a partial state.
package envstate
