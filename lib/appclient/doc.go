// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package appclient calls zome functions through a conductor app
// interface.
//
// Every call is signed. [Client.CallZome] encodes the payload, draws a
// fresh 256-bit nonce from a cryptographic source, stamps an expiry
// [ExpiryWindow] after the current time, and asks the [Signer] to sign
// the canonical encoding of the unsigned call as the cell's agent. The
// signed call carries exactly the fields that were signed. The
// conductor rejects calls whose signature does not verify, whose
// expiry has passed, or whose nonce it has seen before.
//
// Nothing is retried. A rejected call (an expired one included)
// returns a *conductorapi.ApplicationError and the caller decides
// whether to build a new call.
package appclient
