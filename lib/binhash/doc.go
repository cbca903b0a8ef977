// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash computes BLAKE3 digests that identify exactly what an
// environment ran.
//
// When a conductor fails to come up, the first question is "which
// binary, with which config?". The environment records the digest of
// each supervised executable ([HashFile]) and of the generated
// conductor document ([HashDomain] with a per-purpose domain), and logs
// both at startup.
//
//   - [HashFile] streams a file through BLAKE3 with constant memory.
//   - [HashDomain] is a BLAKE3 keyed hash; the domain string is
//     zero-padded to the 32-byte key so equal inputs hashed for
//     different purposes never collide.
//   - [FormatDigest] / [ParseDigest] convert to and from hex.
package binhash
