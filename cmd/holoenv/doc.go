// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// holoenv runs and drives a local conductor environment.
//
// "holoenv up" starts a key-store and a conductor under supervision,
// waits for both to report readiness, prints the connection details,
// and tears everything down on SIGINT or SIGTERM. The remaining
// commands talk to a running conductor: "apps" lists installed apps,
// "install" installs and enables a bundle under a fresh agent key,
// "enable" and "attach" issue the matching admin requests, and "call"
// makes a signed zome call.
//
// The conductor passphrase comes from the environment file, then
// HOLOCHAIN_DEFAULT_PASSWORD, then a fixed development default.
// --prompt-passphrase reads it from the terminal instead.
package main
