// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bureau-foundation/holoenv/lib/conductorapi"
	"github.com/bureau-foundation/holoenv/lib/holohash"
)

// Socket actions.
const (
	actionNewSignKeypair = "new-sign-keypair"
	actionImportSeed     = "import-seed"
	actionSign           = "sign"
	actionListKeys       = "list-keys"
	actionStatus         = "status"
)

// Lines printed on stdout by the daemon in piped mode.
const (
	ConnectionURLPrefix = "connection_url: "
	ReadyMarker         = "Keystore ready."
)

// FileName is the sealed key file inside the key-store root.
const FileName = "keystore.age"

// SocketName is the default socket file name inside the key-store
// root.
const SocketName = "keystore.sock"

// SeedSize is the length of an ed25519 seed.
const SeedSize = 32

var (
	ErrUnknownAgent = errors.New("keystore: no key for agent")
	ErrTagConflict  = errors.New("keystore: tag already holds a different key")
	ErrBadSeed      = errors.New("keystore: seed must be 32 bytes")
)

// KeyInfo describes one stored key.
type KeyInfo struct {
	Tag   string               `cbor:"tag"`
	Agent holohash.AgentPubKey `cbor:"agent"`
}

// Status summarizes the key-store.
type Status struct {
	Keys int `cbor:"keys"`
}

type agentResponse struct {
	Agent holohash.AgentPubKey `cbor:"agent"`
}

type signRequest struct {
	Agent holohash.AgentPubKey `cbor:"agent"`
	Data  []byte               `cbor:"data"`
}

type signResponse struct {
	Signature conductorapi.Signature `cbor:"signature"`
}

type listKeysResponse struct {
	Keys []KeyInfo `cbor:"keys"`
}

// ConnectionURL formats the connection URL for a socket path.
func ConnectionURL(socketPath string) string {
	return (&url.URL{Scheme: "unix", Path: socketPath}).String()
}

// ParseConnectionURL extracts the socket path from a "unix://" URL.
// Query parameters are ignored.
func ParseConnectionURL(connectionURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(connectionURL))
	if err != nil {
		return "", fmt.Errorf("parsing key-store connection url %q: %w", connectionURL, err)
	}
	if parsed.Scheme != "unix" {
		return "", fmt.Errorf("key-store connection url %q: scheme must be unix", connectionURL)
	}
	if parsed.Path == "" {
		return "", fmt.Errorf("key-store connection url %q: missing socket path", connectionURL)
	}
	return parsed.Path, nil
}
