// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package appclient

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/bureau-foundation/holoenv/lib/clock"
	"github.com/bureau-foundation/holoenv/lib/codec"
	"github.com/bureau-foundation/holoenv/lib/conductorapi"
	"github.com/bureau-foundation/holoenv/lib/holohash"
	"github.com/bureau-foundation/holoenv/lib/metrics"
	"github.com/bureau-foundation/holoenv/lib/wschannel"
)

// ExpiryWindow is how long after construction a signed call remains
// valid. It bounds how long a captured call could be replayed.
const ExpiryWindow = 5000 * time.Millisecond

// Signer produces detached signatures on behalf of agents. The
// key-store client is the production implementation.
type Signer interface {
	Sign(ctx context.Context, agent holohash.AgentPubKey, data []byte) (conductorapi.Signature, error)
}

// Options configures Connect and New.
type Options struct {
	// Origin is sent during the websocket handshake.
	Origin string

	// Clock stamps call expiry. Defaults to the real clock.
	Clock clock.Clock

	// Random is the nonce source. Defaults to crypto/rand. Tests may
	// substitute a deterministic reader; production callers must not.
	Random io.Reader

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Client issues zome calls over one app channel.
type Client struct {
	channel *wschannel.Channel
	signer  Signer
	clock   clock.Clock
	random  io.Reader
	logger  *slog.Logger
}

// Connect dials the app interface on the loopback port.
func Connect(ctx context.Context, port uint16, signer Signer, options Options) (*Client, error) {
	address := "ws://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port)))
	channel, err := wschannel.Connect(ctx, address, wschannel.Options{
		Name:    "app",
		Origin:  options.Origin,
		Logger:  options.Logger,
		Metrics: options.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return New(channel, signer, options), nil
}

// New wraps an already connected channel.
func New(channel *wschannel.Channel, signer Signer, options Options) *Client {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Random == nil {
		options.Random = rand.Reader
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		channel: channel,
		signer:  signer,
		clock:   options.Clock,
		random:  options.Random,
		logger:  options.Logger,
	}
}

// Close closes the underlying channel.
func (c *Client) Close() error {
	return c.channel.Close()
}

// Signals returns signals the conductor emits on this interface.
func (c *Client) Signals() <-chan codec.RawMessage {
	return c.channel.Signals()
}

// CallZome calls fn in zome on cellID as the cell's agent and decodes
// the result into out (ignored when nil).
func (c *Client) CallZome(ctx context.Context, cellID conductorapi.CellID, zome, fn string, payload any, out any) error {
	encodedPayload, err := codec.Marshal(payload)
	if err != nil {
		return &conductorapi.EncodeError{What: fmt.Sprintf("payload for %s/%s", zome, fn), Err: err}
	}

	unsigned, err := c.BuildUnsignedCall(cellID, zome, fn, encodedPayload)
	if err != nil {
		return err
	}

	call, err := c.Sign(ctx, unsigned)
	if err != nil {
		return err
	}

	request, err := conductorapi.NewRequest(conductorapi.RequestCallZome, call)
	if err != nil {
		return err
	}
	raw, err := c.channel.Request(ctx, request)
	if err != nil {
		return err
	}
	response, err := conductorapi.DecodeResponse(conductorapi.RequestCallZome, raw)
	if err != nil {
		return err
	}
	if err := conductorapi.Expect(response, conductorapi.RequestCallZome, conductorapi.ResponseZomeCalled, out); err != nil {
		return err
	}

	c.logger.Debug("zome call completed",
		"zome", zome,
		"fn", fn,
		"nonce", call.Nonce.String(),
	)
	return nil
}

// BuildUnsignedCall assembles an unsigned call with a fresh nonce and
// an expiry ExpiryWindow from now. The provenance is the cell's agent.
func (c *Client) BuildUnsignedCall(cellID conductorapi.CellID, zome, fn string, encodedPayload codec.RawMessage) (conductorapi.ZomeCallUnsigned, error) {
	nonce, err := FreshNonce(c.random)
	if err != nil {
		return conductorapi.ZomeCallUnsigned{}, err
	}
	expiresAt := conductorapi.TimestampFromTime(c.clock.Now().Add(ExpiryWindow))
	return conductorapi.ZomeCallUnsigned{
		Provenance: cellID.AgentPubKey,
		CellID:     cellID,
		ZomeName:   zome,
		FnName:     fn,
		Payload:    encodedPayload,
		Nonce:      nonce,
		ExpiresAt:  expiresAt,
	}, nil
}

// Sign obtains a signature over unsigned's canonical bytes and
// attaches it.
func (c *Client) Sign(ctx context.Context, unsigned conductorapi.ZomeCallUnsigned) (conductorapi.ZomeCall, error) {
	data, err := unsigned.DataToSign()
	if err != nil {
		return conductorapi.ZomeCall{}, err
	}
	signature, err := c.signer.Sign(ctx, unsigned.Provenance, data)
	if err != nil {
		return conductorapi.ZomeCall{}, &conductorapi.SigningError{Agent: unsigned.Provenance.String(), Err: err}
	}
	return conductorapi.NewZomeCall(unsigned, signature), nil
}

// FreshNonce reads a 256-bit nonce from random.
func FreshNonce(random io.Reader) (conductorapi.Nonce256, error) {
	var nonce conductorapi.Nonce256
	if _, err := io.ReadFull(random, nonce[:]); err != nil {
		return nonce, fmt.Errorf("generating nonce: %w", err)
	}
	return nonce, nil
}
