// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes Prometheus instrumentation for process
// supervision, readiness probes and RPC round-trips.
//
// A [Collector] owns a private registry so that several environments
// in one process (tests, mostly) never collide on registration. Every
// method is safe to call on a nil *Collector, which lets libraries
// accept an optional collector without branching at each call site.
package metrics
