// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the time source injected into code whose
// behavior depends on elapsed time: zome call expiry stamps and the
// conductor readiness poll.
//
// Production code uses Real(). Tests use Fake(), which stands still
// until Advance is called, so "the probe gave up after exactly 30
// attempts at 1 s" can be asserted without sleeping for 30 seconds.
//
// Goroutines that wait on a FakeClock register a pending timer. Tests
// call WaitForTimers before Advance to avoid racing the registration.
package clock
