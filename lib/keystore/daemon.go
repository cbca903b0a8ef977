// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"fmt"
	"io"
)

// Run opens the key-store described by config and serves it until ctx
// is cancelled. Once the socket is listening it writes two lines to
// announce: ConnectionURLPrefix followed by the connection URL, then
// ReadyMarker. A supervising process reads these from stdout.
func Run(ctx context.Context, config ServerConfig, announce io.Writer) error {
	server, err := Open(config)
	if err != nil {
		return err
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx) }()

	select {
	case <-server.Ready():
	case err := <-serveErr:
		if err == nil {
			err = ctx.Err()
		}
		return fmt.Errorf("starting key-store socket: %w", err)
	}

	if _, err := fmt.Fprintf(announce, "%s%s\n%s\n", ConnectionURLPrefix, server.ConnectionURL(), ReadyMarker); err != nil {
		cancel()
		<-serveErr
		return fmt.Errorf("announcing readiness: %w", err)
	}
	server.logger.Info("key-store ready", "connection_url", server.ConnectionURL(), "keys", len(server.ListKeys()))

	return <-serveErr
}
