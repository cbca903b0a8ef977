// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/bureau-foundation/holoenv/lib/conductorapi"
	"github.com/bureau-foundation/holoenv/lib/holohash"
)

// MemorySigner signs with keys held in ordinary process memory. For
// tests and tools that have no key-store process.
type MemorySigner struct {
	mu   sync.Mutex
	keys map[holohash.AgentPubKey]ed25519.PrivateKey
}

// NewMemorySigner returns an empty MemorySigner.
func NewMemorySigner() *MemorySigner {
	return &MemorySigner{keys: make(map[holohash.AgentPubKey]ed25519.PrivateKey)}
}

// NewKey generates a key and returns its agent.
func (m *MemorySigner) NewKey() (holohash.AgentPubKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return holohash.AgentPubKey{}, fmt.Errorf("generating key: %w", err)
	}
	agent, err := holohash.NewAgentPubKey(publicKey)
	if err != nil {
		return holohash.AgentPubKey{}, err
	}
	m.mu.Lock()
	m.keys[agent] = privateKey
	m.mu.Unlock()
	return agent, nil
}

// NewSignKeypair matches Client.NewSignKeypair so a MemorySigner can
// stand in for a key-store. Tags are not recorded.
func (m *MemorySigner) NewSignKeypair(ctx context.Context, tag string) (holohash.AgentPubKey, error) {
	return m.NewKey()
}

// Sign signs data as agent.
func (m *MemorySigner) Sign(ctx context.Context, agent holohash.AgentPubKey, data []byte) (conductorapi.Signature, error) {
	m.mu.Lock()
	privateKey, exists := m.keys[agent]
	m.mu.Unlock()
	if !exists {
		return conductorapi.Signature{}, fmt.Errorf("%w %s", ErrUnknownAgent, agent)
	}
	var signature conductorapi.Signature
	copy(signature[:], ed25519.Sign(privateKey, data))
	return signature, nil
}
