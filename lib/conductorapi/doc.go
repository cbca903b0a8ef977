// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package conductorapi defines the request and response vocabulary
// spoken over the conductor's admin and app interfaces.
//
// Every message is an envelope with a "type" discriminator and an
// optional CBOR "data" payload. The set of kinds is closed: a client
// that receives a response kind it did not ask for gets a
// [ProtocolError], never a silently zero-valued result. [Expect]
// implements that match in one place so each RPC method states only
// which success kind it wants.
//
// Failures are split by remediation:
//
//   - [ProtocolError]: the conductor answered with the wrong kind. A
//     bug on one side; never retried or swallowed.
//   - [ApplicationError]: the conductor explicitly rejected the
//     request and said why.
//   - [EncodeError] / [DecodeError]: a payload did not fit its type.
//   - [SigningError]: the signing authority was unreachable or
//     refused.
//
// Zome call types live here as well: [ZomeCallUnsigned] produces the
// canonical bytes that are signed, and [ZomeCall] carries those exact
// fields plus the detached signature.
package conductorapi
