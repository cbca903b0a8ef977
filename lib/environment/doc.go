// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package environment brings up a complete local conductor stack for
// tests and development: a key-store process, then a conductor process
// configured to use it, each confirmed ready before the next stage
// begins.
//
// [Setup] walks the states in order:
//
//	Uninitialized -> KeyStoreStarting -> KeyStoreReady
//	  -> RuntimeStarting -> RuntimeReady
//
// and [Environment.Close] moves to TornDown. A failure at any stage
// returns a [*SetupError] naming the stage, after everything already
// started has been torn down. Teardown always stops the conductor
// before the key-store it depends on.
//
// The environment owns both processes. Callers reach the conductor
// through [Environment.ConnectAdmin] and [Environment.ConnectApp], and
// the signing authority through [Environment.Keystore].
package environment
