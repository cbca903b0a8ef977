// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wschannel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/holoenv/lib/codec"
	"github.com/bureau-foundation/holoenv/lib/metrics"
	"github.com/bureau-foundation/holoenv/lib/netutil"
)

// Envelope frame types.
const (
	FrameRequest  = "request"
	FrameResponse = "response"
	FrameSignal   = "signal"
)

// defaultSignalBuffer is the capacity of the Signals channel when
// Options.SignalBuffer is zero.
const defaultSignalBuffer = 64

// closeWriteTimeout bounds the close handshake write in Close.
const closeWriteTimeout = time.Second

// ErrChannelClosed is returned by Request after the channel has been
// closed locally.
var ErrChannelClosed = errors.New("wschannel: channel closed")

// Envelope is one websocket message.
type Envelope struct {
	Type string           `cbor:"type"`
	ID   string           `cbor:"id,omitempty"`
	Data codec.RawMessage `cbor:"data,omitempty"`
}

// ConnectError reports that the websocket could not be established.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// RequestError reports a failed round-trip on an established channel.
// ID is empty when the request never got as far as being assigned one.
type RequestError struct {
	ID  string
	Err error
}

func (e *RequestError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	return fmt.Sprintf("request %s failed: %v", e.ID, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Options configures Connect.
type Options struct {
	// Name labels the channel in logs and metrics ("admin", "app").
	Name string

	// Origin is sent as the Origin header during the handshake. The
	// conductor checks it against the interface's allowed origins.
	Origin string

	// HandshakeTimeout bounds the websocket upgrade. Zero means the
	// context alone bounds it.
	HandshakeTimeout time.Duration

	// SignalBuffer is the capacity of the Signals channel. Signals
	// arriving while it is full are dropped with a warning.
	SignalBuffer int

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Channel is a websocket request/response channel. Safe for concurrent
// use; requests are served one at a time.
type Channel struct {
	name    string
	address string
	conn    *websocket.Conn
	logger  *slog.Logger
	metrics *metrics.Collector

	// slot holds one token while a request is outstanding.
	slot chan struct{}

	// writeMu serializes writers; gorilla/websocket supports one
	// concurrent writer.
	writeMu sync.Mutex

	mu        sync.Mutex
	pendingID string
	pending   chan codec.RawMessage

	signals chan codec.RawMessage

	closeOnce  sync.Once
	closed     chan struct{}
	closeErr   error
	readerDone chan struct{}
}

// Connect dials address (a ws:// URL) and starts the reader.
func Connect(ctx context.Context, address string, options Options) (*Channel, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	name := options.Name
	if name == "" {
		name = "channel"
	}
	signalBuffer := options.SignalBuffer
	if signalBuffer <= 0 {
		signalBuffer = defaultSignalBuffer
	}

	dialer := websocket.Dialer{HandshakeTimeout: options.HandshakeTimeout}
	header := http.Header{}
	if options.Origin != "" {
		header.Set("Origin", options.Origin)
	}
	conn, _, err := dialer.DialContext(ctx, address, header)
	if err != nil {
		return nil, &ConnectError{Address: address, Err: err}
	}

	channel := &Channel{
		name:       name,
		address:    address,
		conn:       conn,
		logger:     logger.With("channel", name, "address", address),
		metrics:    options.Metrics,
		slot:       make(chan struct{}, 1),
		signals:    make(chan codec.RawMessage, signalBuffer),
		closed:     make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	channel.metrics.ChannelOpened(name)
	go channel.readLoop()

	channel.logger.Debug("channel connected")
	return channel, nil
}

// Name returns the channel's label.
func (c *Channel) Name() string { return c.name }

// Request sends payload and waits for the matching response. payload
// is CBOR-encoded; the returned bytes are the response's raw data.
func (c *Channel) Request(ctx context.Context, payload any) (codec.RawMessage, error) {
	start := time.Now()
	data, err := c.request(ctx, payload)
	c.metrics.RPCRequest(c.name, time.Since(start), err)
	return data, err
}

func (c *Channel) request(ctx context.Context, payload any) (codec.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RequestError{Err: err}
	}
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return nil, &RequestError{Err: fmt.Errorf("encoding request: %w", err)}
	}

	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, &RequestError{Err: ctx.Err()}
	case <-c.closed:
		return nil, &RequestError{Err: c.closeErr}
	}
	defer func() { <-c.slot }()

	id := uuid.NewString()
	reply := make(chan codec.RawMessage, 1)
	c.mu.Lock()
	c.pendingID = id
	c.pending = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.pendingID == id {
			c.pendingID = ""
			c.pending = nil
		}
		c.mu.Unlock()
	}()

	frame, err := codec.Marshal(Envelope{Type: FrameRequest, ID: id, Data: encoded})
	if err != nil {
		return nil, &RequestError{ID: id, Err: fmt.Errorf("encoding envelope: %w", err)}
	}
	if err := c.write(ctx, frame); err != nil {
		return nil, &RequestError{ID: id, Err: err}
	}

	select {
	case data := <-reply:
		return data, nil
	case <-ctx.Done():
		c.logger.Debug("request abandoned", "request_id", id, "error", ctx.Err())
		return nil, &RequestError{ID: id, Err: ctx.Err()}
	case <-c.closed:
		return nil, &RequestError{ID: id, Err: c.closeErr}
	}
}

func (c *Channel) write(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Signals returns the channel on which out-of-band signals arrive. It
// is closed when the channel shuts down.
func (c *Channel) Signals() <-chan codec.RawMessage { return c.signals }

// Done is closed when the channel has shut down for any reason.
func (c *Channel) Done() <-chan struct{} { return c.closed }

// Err returns why the channel shut down, or nil while it is open.
func (c *Channel) Err() error {
	select {
	case <-c.closed:
		return c.closeErr
	default:
		return nil
	}
}

// Close sends a close frame, closes the connection and waits for the
// reader to exit. Outstanding and future requests fail with
// ErrChannelClosed. Safe to call more than once.
func (c *Channel) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWriteTimeout))
	c.writeMu.Unlock()

	c.shutdown(ErrChannelClosed)
	<-c.readerDone
	return nil
}

func (c *Channel) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.closeErr = reason
		close(c.closed)
		c.conn.Close()
		c.metrics.ChannelClosed(c.name)
	})
}

func (c *Channel) readLoop() {
	defer close(c.readerDone)
	defer close(c.signals)

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if netutil.IsExpectedCloseError(err) {
				c.logger.Debug("channel closed", "channel", c.name, "error", err)
			} else {
				c.logger.Warn("channel connection lost", "channel", c.name, "error", err)
			}
			c.shutdown(fmt.Errorf("wschannel: connection lost: %w", err))
			return
		}
		if messageType != websocket.BinaryMessage {
			c.logger.Warn("ignoring non-binary websocket message", "message_type", messageType)
			continue
		}

		var envelope Envelope
		if err := codec.Unmarshal(message, &envelope); err != nil {
			c.logger.Warn("ignoring undecodable frame", "error", err)
			continue
		}

		switch envelope.Type {
		case FrameResponse:
			c.deliver(envelope)
		case FrameSignal:
			select {
			case c.signals <- envelope.Data:
			default:
				c.logger.Warn("signal buffer full, dropping signal")
			}
		default:
			c.logger.Warn("ignoring unexpected frame", "frame_type", envelope.Type, "request_id", envelope.ID)
		}
	}
}

func (c *Channel) deliver(envelope Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if envelope.ID == "" || envelope.ID != c.pendingID {
		c.logger.Debug("discarding stale response", "request_id", envelope.ID)
		return
	}
	c.pending <- envelope.Data
	c.pendingID = ""
	c.pending = nil
}
