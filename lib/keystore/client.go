// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"

	"github.com/bureau-foundation/holoenv/lib/conductorapi"
	"github.com/bureau-foundation/holoenv/lib/holohash"
	"github.com/bureau-foundation/holoenv/lib/secret"
	"github.com/bureau-foundation/holoenv/lib/service"
)

// Client talks to a key-store Server. Safe for concurrent use.
type Client struct {
	connectionURL string
	service       *service.Client
}

// Dial returns a client for connectionURL. No connection is made
// until the first call.
func Dial(connectionURL string) (*Client, error) {
	socketPath, err := ParseConnectionURL(connectionURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		connectionURL: ConnectionURL(socketPath),
		service:       service.NewClient(socketPath),
	}, nil
}

// ConnectionURL returns the URL this client dials.
func (c *Client) ConnectionURL() string {
	return c.connectionURL
}

// NewSignKeypair asks the key-store to generate a key. An empty tag
// lets the key-store name it.
func (c *Client) NewSignKeypair(ctx context.Context, tag string) (holohash.AgentPubKey, error) {
	var response agentResponse
	if err := c.service.Call(ctx, actionNewSignKeypair, map[string]any{"tag": tag}, &response); err != nil {
		return holohash.AgentPubKey{}, err
	}
	return response.Agent, nil
}

// ImportSeed stores the key derived from seed under tag. Importing the
// same seed under the same tag again is a no-op.
func (c *Client) ImportSeed(ctx context.Context, tag string, seed *secret.Buffer) (holohash.AgentPubKey, error) {
	var response agentResponse
	if err := c.service.Call(ctx, actionImportSeed, map[string]any{"tag": tag, "seed": seed.Bytes()}, &response); err != nil {
		return holohash.AgentPubKey{}, err
	}
	return response.Agent, nil
}

// Sign signs data as agent. It implements appclient.Signer.
func (c *Client) Sign(ctx context.Context, agent holohash.AgentPubKey, data []byte) (conductorapi.Signature, error) {
	var response signResponse
	if err := c.service.Call(ctx, actionSign, map[string]any{"agent": agent, "data": data}, &response); err != nil {
		return conductorapi.Signature{}, err
	}
	return response.Signature, nil
}

// ListKeys returns every stored key.
func (c *Client) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	var response listKeysResponse
	if err := c.service.Call(ctx, actionListKeys, nil, &response); err != nil {
		return nil, err
	}
	return response.Keys, nil
}

// Status reports the key-store's key count.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var status Status
	err := c.service.Call(ctx, actionStatus, nil, &status)
	return status, err
}
