// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the two small servers holoenv processes
// expose locally.
//
//   - [SocketServer]: a CBOR request/response protocol on a Unix
//     socket, one request per connection, dispatched by an "action"
//     field. The key-store daemon serves signing on it; [Client] is
//     the matching caller.
//   - [HTTPServer]: a TCP endpoint with fixed routes plus a health
//     probe, used to expose Prometheus metrics from the CLI.
//
// Both follow the same lifecycle: construct, register, then Serve(ctx)
// blocks until the context is cancelled and in-flight work drains.
//
// Socket access control is the filesystem: the socket is created with
// mode 0600 inside a directory the caller owns.
package service
