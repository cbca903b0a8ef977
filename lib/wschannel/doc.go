// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wschannel is a request/response channel over one websocket
// connection.
//
// Each binary websocket message carries one CBOR [Envelope]. Requests
// carry a fresh UUID; the remote side echoes it on the response. The
// remote side may also push "signal" envelopes at any time, which are
// delivered on [Channel.Signals].
//
// A Channel allows exactly one outstanding request. Concurrent callers
// of [Channel.Request] queue on a one-slot semaphore and are served in
// turn, so responses on one channel arrive in the order the requests
// were issued. A caller that gives up (context cancelled) releases the
// slot; if the abandoned response arrives later it no longer matches
// the outstanding id and is discarded.
//
// There is no built-in request timeout. The caller's context is the
// only deadline; an unresponsive peer blocks Request until the
// context ends or the channel closes.
//
// Channels are not restartable. After the connection fails or
// [Channel.Close] is called, every Request fails and a new channel
// must be dialed.
package wschannel
