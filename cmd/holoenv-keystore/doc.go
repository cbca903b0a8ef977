// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// holoenv-keystore is the signing daemon a conductor environment runs
// beside its conductor.
//
// It keeps ed25519 keys in a passphrase-sealed file under --root and
// serves signing requests on a Unix socket. Once the socket is
// accepting connections it prints its connection URL and a ready line
// to stdout:
//
//	connection_url: unix:///path/to/keystore.sock
//	Keystore ready.
//
// With --piped the passphrase is the first line of stdin; otherwise it
// is read from the terminal. The daemon runs until SIGINT or SIGTERM.
package main
