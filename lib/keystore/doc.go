// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore holds agent signing keys and signs on request.
//
// The [Server] keeps ed25519 private keys in locked, non-dumpable
// memory ([secret.Buffer]) and persists their seeds to a single file,
// keystore.age, sealed with the operator's passphrase (age scrypt).
// It serves the [service] socket protocol with these actions:
//
//	new-sign-keypair  {tag?}          -> {agent}
//	import-seed       {tag, seed}     -> {agent}
//	sign              {agent, data}   -> {signature}
//	list-keys         {}              -> {keys: [{tag, agent}]}
//	status            {}              -> {keys}
//
// The conductor and holoenv's app client both reach the key-store
// through a connection URL of the form "unix:///path/to/socket".
// [Client] is the holoenv side; it satisfies appclient.Signer.
// [MemorySigner] is an in-process signer for tests.
//
// The daemon binary is cmd/holoenv-keystore. When started with
// --piped it reads the passphrase as one line from stdin and, once
// listening, prints
//
//	connection_url: unix:///path/to/keystore.sock
//	Keystore ready.
//
// on stdout. The environment orchestrator scans for these lines.
package keystore
