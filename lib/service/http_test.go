// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/holoenv/lib/metrics"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	response, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("reading %s: %v", url, err)
	}
	return response.StatusCode, string(body)
}

func TestHTTPServerServesMetrics(t *testing.T) {
	collector := metrics.New()
	collector.ProcessSpawned("conductor", nil)

	server := NewHTTPServer(HTTPServerConfig{
		Address:         "127.0.0.1:0",
		Routes:          map[string]http.Handler{"/metrics": collector.Handler()},
		ShutdownTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	select {
	case <-server.Ready():
	case <-t.Context().Done():
		t.Fatal("server did not become ready before test deadline")
	}
	base := "http://" + server.Addr().String()

	status, body := get(t, base+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", status)
	}
	if !strings.Contains(body, "holoenv_process_spawns_total") {
		t.Errorf("body missing spawn counter:\n%s", body)
	}
	if status, _ := get(t, base+HealthPath); status != http.StatusOK {
		t.Errorf("%s status = %d, want 200", HealthPath, status)
	}
	if status, _ := get(t, base+"/other"); status != http.StatusNotFound {
		t.Errorf("/other status = %d, want 404", status)
	}

	cancel()
	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-t.Context().Done():
		t.Fatal("server did not shut down before test deadline")
	}
}

func TestHTTPServerListenFailure(t *testing.T) {
	server := NewHTTPServer(HTTPServerConfig{
		Address: "256.0.0.1:0",
		Routes:  map[string]http.Handler{"/": http.NotFoundHandler()},
	})
	if err := server.Serve(t.Context()); err == nil {
		t.Fatal("Serve on an invalid address succeeded")
	}
}

func TestHTTPServerPanicsOnMissingConfig(t *testing.T) {
	routes := map[string]http.Handler{"/metrics": http.NotFoundHandler()}
	tests := []struct {
		name   string
		config HTTPServerConfig
	}{
		{name: "missing_address", config: HTTPServerConfig{Routes: routes}},
		{name: "missing_routes", config: HTTPServerConfig{Address: ":0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("NewHTTPServer did not panic")
				}
			}()
			NewHTTPServer(tt.config)
		})
	}
}
