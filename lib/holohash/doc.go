// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package holohash implements the 39-byte identity hashes the conductor
// uses for agents and DNAs.
//
// Layout: a 3-byte type prefix, the 32-byte core (an ed25519 public
// key for agents, a content digest for DNAs), and a 4-byte location
// computed by folding a 16-byte BLAKE2b digest of the core. The text
// form is "u" followed by unpadded base64url, e.g. "uhCAk...".
//
// Both types marshal as text, so they appear as readable strings in
// CBOR envelopes, YAML and CLI JSON output.
package holohash
