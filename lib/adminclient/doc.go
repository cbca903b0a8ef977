// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package adminclient is a typed client for the conductor's admin
// interface: list, install and enable apps, and attach app interfaces.
//
// Each method sends one request over a [wschannel.Channel] and matches
// the response with [conductorapi.Expect]. A rejected request returns
// a *conductorapi.ApplicationError whose Operation names the request;
// a mismatched response kind returns a *conductorapi.ProtocolError.
package adminclient
