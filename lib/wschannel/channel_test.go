// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wschannel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/holoenv/lib/codec"
	"github.com/bureau-foundation/holoenv/lib/testutil"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startServer runs handler for each accepted websocket connection and
// returns the ws:// URL.
func startServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func readEnvelope(conn *websocket.Conn) (Envelope, error) {
	_, message, err := conn.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	var envelope Envelope
	err = codec.Unmarshal(message, &envelope)
	return envelope, err
}

func writeEnvelope(conn *websocket.Conn, envelope Envelope) error {
	frame, err := codec.Marshal(envelope)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

// echo answers every request with its own payload.
func echo(conn *websocket.Conn) {
	for {
		envelope, err := readEnvelope(conn)
		if err != nil {
			return
		}
		if err := writeEnvelope(conn, Envelope{Type: FrameResponse, ID: envelope.ID, Data: envelope.Data}); err != nil {
			return
		}
	}
}

func connect(t *testing.T, address string) *Channel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	channel, err := Connect(ctx, address, Options{Name: "test"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { channel.Close() })
	return channel
}

func TestRequestEcho(t *testing.T) {
	channel := connect(t, startServer(t, echo))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := channel.Request(ctx, "hello")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	var got string
	if err := codec.Unmarshal(data, &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got != "hello" {
		t.Fatalf("response = %q, want %q", got, "hello")
	}
}

func TestConcurrentCallersAreSerialized(t *testing.T) {
	var outstanding, violations atomic.Int32
	address := startServer(t, func(conn *websocket.Conn) {
		requests := make(chan Envelope)
		go func() {
			defer close(requests)
			for {
				envelope, err := readEnvelope(conn)
				if err != nil {
					return
				}
				if outstanding.Add(1) > 1 {
					violations.Add(1)
				}
				requests <- envelope
			}
		}()
		for envelope := range requests {
			time.Sleep(time.Millisecond)
			outstanding.Add(-1)
			if err := writeEnvelope(conn, Envelope{Type: FrameResponse, ID: envelope.ID, Data: envelope.Data}); err != nil {
				return
			}
		}
	})
	channel := connect(t, address)

	const callers = 20
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var waitGroup sync.WaitGroup
	errs := make(chan error, callers)
	for index := range callers {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			data, err := channel.Request(ctx, index)
			if err != nil {
				errs <- err
				return
			}
			var got int
			if err := codec.Unmarshal(data, &got); err != nil {
				errs <- err
				return
			}
			if got != index {
				errs <- errors.New("response mismatched to caller")
			}
		}()
	}
	waitGroup.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("caller: %v", err)
	}
	if violations.Load() != 0 {
		t.Fatalf("server observed %d overlapping requests", violations.Load())
	}
}

func TestSerialRequestsPreserveOrder(t *testing.T) {
	var received []int
	var mu sync.Mutex
	address := startServer(t, func(conn *websocket.Conn) {
		for {
			envelope, err := readEnvelope(conn)
			if err != nil {
				return
			}
			var value int
			_ = codec.Unmarshal(envelope.Data, &value)
			mu.Lock()
			received = append(received, value)
			mu.Unlock()
			if err := writeEnvelope(conn, Envelope{Type: FrameResponse, ID: envelope.ID, Data: envelope.Data}); err != nil {
				return
			}
		}
	})
	channel := connect(t, address)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for index := range 10 {
		data, err := channel.Request(ctx, index)
		if err != nil {
			t.Fatalf("Request %d: %v", index, err)
		}
		var got int
		if err := codec.Unmarshal(data, &got); err != nil || got != index {
			t.Fatalf("response %d = %d (%v)", index, got, err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	for index, value := range received {
		if value != index {
			t.Fatalf("server received %v, want ascending order", received)
		}
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	address := startServer(t, func(conn *websocket.Conn) {
		for {
			envelope, err := readEnvelope(conn)
			if err != nil {
				return
			}
			stale, _ := codec.Marshal("stale")
			if err := writeEnvelope(conn, Envelope{Type: FrameResponse, ID: "not-the-id", Data: stale}); err != nil {
				return
			}
			if err := writeEnvelope(conn, Envelope{Type: FrameResponse, ID: envelope.ID, Data: envelope.Data}); err != nil {
				return
			}
		}
	})
	channel := connect(t, address)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := channel.Request(ctx, "fresh")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	var got string
	if err := codec.Unmarshal(data, &got); err != nil || got != "fresh" {
		t.Fatalf("response = %q (%v), want fresh", got, err)
	}
}

func TestAbandonedRequestDoesNotPoisonChannel(t *testing.T) {
	address := startServer(t, func(conn *websocket.Conn) {
		first, err := readEnvelope(conn)
		if err != nil {
			return
		}
		second, err := readEnvelope(conn)
		if err != nil {
			return
		}
		// Late answer to the abandoned request, then the real one.
		if err := writeEnvelope(conn, Envelope{Type: FrameResponse, ID: first.ID, Data: first.Data}); err != nil {
			return
		}
		if err := writeEnvelope(conn, Envelope{Type: FrameResponse, ID: second.ID, Data: second.Data}); err != nil {
			return
		}
		echo(conn)
	})
	channel := connect(t, address)

	shortContext, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	_, err := channel.Request(shortContext, "abandoned")
	var requestError *RequestError
	if !errors.As(err, &requestError) {
		t.Fatalf("error = %v (%T), want *RequestError", err, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
	if requestError.ID == "" {
		t.Error("RequestError.ID is empty for a request that was sent")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := channel.Request(ctx, "second")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	var got string
	if err := codec.Unmarshal(data, &got); err != nil || got != "second" {
		t.Fatalf("response = %q (%v), want second", got, err)
	}
}

func TestSignalsDelivered(t *testing.T) {
	address := startServer(t, func(conn *websocket.Conn) {
		payload, _ := codec.Marshal("ping")
		if err := writeEnvelope(conn, Envelope{Type: FrameSignal, Data: payload}); err != nil {
			return
		}
		echo(conn)
	})
	channel := connect(t, address)

	signal := testutil.RequireReceive(t, channel.Signals(), 5*time.Second, "waiting for signal")
	var got string
	if err := codec.Unmarshal(signal, &got); err != nil || got != "ping" {
		t.Fatalf("signal = %q (%v), want ping", got, err)
	}
}

func TestCloseFailsPendingRequest(t *testing.T) {
	received := make(chan struct{})
	address := startServer(t, func(conn *websocket.Conn) {
		if _, err := readEnvelope(conn); err != nil {
			return
		}
		close(received)
		// Never answer; wait for the client to go away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	channel := connect(t, address)

	result := make(chan error, 1)
	go func() {
		_, err := channel.Request(context.Background(), "never answered")
		result <- err
	}()
	testutil.RequireClosed(t, received, 5*time.Second, "server never saw the request")

	if err := channel.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := testutil.RequireReceive(t, result, 5*time.Second, "pending request did not fail")
	if !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("error = %v, want ErrChannelClosed", err)
	}

	if err := channel.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	_, err = channel.Request(context.Background(), "after close")
	if !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("request after close error = %v, want ErrChannelClosed", err)
	}
	testutil.RequireClosed(t, channel.Done(), time.Second, "Done after Close")
}

func TestRemoteDisconnect(t *testing.T) {
	address := startServer(t, func(conn *websocket.Conn) {
		_, _ = readEnvelope(conn)
	})
	channel := connect(t, address)

	_, err := channel.Request(context.Background(), "dropped")
	var requestError *RequestError
	if !errors.As(err, &requestError) {
		t.Fatalf("error = %v (%T), want *RequestError", err, err)
	}
	testutil.RequireClosed(t, channel.Done(), 5*time.Second, "Done after remote disconnect")
	if channel.Err() == nil {
		t.Fatal("Err() is nil after remote disconnect")
	}
}

func TestConnectFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Connect(ctx, "ws://127.0.0.1:1", Options{})
	var connectError *ConnectError
	if !errors.As(err, &connectError) {
		t.Fatalf("error = %v (%T), want *ConnectError", err, err)
	}
	if connectError.Address != "ws://127.0.0.1:1" {
		t.Errorf("Address = %q", connectError.Address)
	}
}
