// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds passphrases and key material in memory outside
// the Go heap.
//
// [Buffer] allocates via mmap(MAP_ANONYMOUS), locks the pages with
// mlock so they are never swapped, and marks them MADV_DONTDUMP so
// they are excluded from core dumps. Close zeroes, unlocks and unmaps
// the region. The garbage collector never sees the memory and cannot
// leave stale copies behind.
//
// holoenv uses buffers for the passphrase piped to the conductor and
// key-store on startup, and for the key-store's decrypted key file.
//
// Depends on golang.org/x/sys/unix.
package secret
