// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package conductortest provides an in-process conductor that speaks
// the admin and app websocket protocols, for testing clients without
// a real runtime.
//
// The fake keeps an in-memory app registry, opens real app interfaces
// on attach, and enforces the same admission rules a conductor does
// for zome calls: valid signature from the provenance agent, unexpired
// call, unused nonce. Zome functions are supplied by the test through
// [Conductor.HandleZome].
package conductortest
