// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts small blobs at rest under a passphrase using
// age's scrypt recipient (filippo.io/age).
//
// The key-store seals its signing seeds with the same passphrase its
// supervisor pipes to it on startup. Plaintext is returned in a
// secret.Buffer so decrypted key material never lives on the Go heap
// longer than the parse that consumes it.
package sealed
