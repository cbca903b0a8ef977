// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HealthPath answers 200 while the server is up.
const HealthPath = "/healthz"

const defaultShutdownTimeout = 10 * time.Second

// HTTPServerConfig configures NewHTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address. Port 0 picks a free port;
	// read it back from Addr after Ready.
	Address string

	// Routes maps exact paths to handlers. At least one is required.
	// HealthPath is added unless Routes already has it.
	Routes map[string]http.Handler

	// ShutdownTimeout bounds graceful shutdown. Zero means 10s.
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// HTTPServer is a small loopback HTTP endpoint. The CLI serves the
// Prometheus registry on it.
type HTTPServer struct {
	config HTTPServerConfig
	mux    *http.ServeMux
	logger *slog.Logger
	ready  chan struct{}
	addr   net.Addr
}

// NewHTTPServer panics on an empty Address or Routes; both are
// programming errors.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	if config.Address == "" {
		panic("service.NewHTTPServer: Address is required")
	}
	if len(config.Routes) == 0 {
		panic("service.NewHTTPServer: at least one route is required")
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mux := http.NewServeMux()
	for path, handler := range config.Routes {
		mux.Handle(path, handler)
	}
	if _, exists := config.Routes[HealthPath]; !exists {
		mux.HandleFunc(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	return &HTTPServer{
		config: config,
		mux:    mux,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound address. Valid after Ready.
func (s *HTTPServer) Addr() net.Addr {
	return s.addr
}

// Serve blocks until ctx is cancelled or the listener fails. On
// cancellation in-flight requests get ShutdownTimeout to finish.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Address, err)
	}
	s.addr = listener.Addr()

	server := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
	failed := make(chan error, 1)
	go func() {
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		failed <- err
	}()

	s.logger.Info("http endpoint listening", "address", s.addr.String())
	close(s.ready)

	select {
	case err := <-failed:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http endpoint: %w", err)
	}
	s.logger.Info("http endpoint stopped", "address", s.addr.String())
	return nil
}
