// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bureau-foundation/holoenv/lib/codec"
	"github.com/bureau-foundation/holoenv/lib/conductorapi"
	"github.com/bureau-foundation/holoenv/lib/holohash"
	"github.com/bureau-foundation/holoenv/lib/sealed"
	"github.com/bureau-foundation/holoenv/lib/secret"
	"github.com/bureau-foundation/holoenv/lib/service"
)

// ServerConfig configures Open.
type ServerConfig struct {
	// Root is the directory holding keystore.age. Created if absent.
	Root string

	// SocketPath defaults to Root/keystore.sock.
	SocketPath string

	// Passphrase seals and unseals the key file. The server takes
	// ownership and closes it on Close.
	Passphrase *secret.Buffer

	// WorkFactor is the scrypt cost for sealing. Zero selects
	// sealed.DefaultWorkFactor.
	WorkFactor int

	Logger *slog.Logger
}

// Server holds keys and serves the socket protocol.
type Server struct {
	root       string
	passphrase *secret.Buffer
	workFactor int
	logger     *slog.Logger
	socket     *service.SocketServer

	mu    sync.Mutex
	keys  map[holohash.AgentPubKey]*storedKey
	order []holohash.AgentPubKey
	tags  map[string]holohash.AgentPubKey
}

type storedKey struct {
	tag string
	// private is the 64-byte ed25519 private key (seed || public).
	private *secret.Buffer
}

// keyFile is the plaintext inside keystore.age.
type keyFile struct {
	Version int          `cbor:"version"`
	Keys    []keyFileKey `cbor:"keys"`
}

type keyFileKey struct {
	Tag  string `cbor:"tag"`
	Seed []byte `cbor:"seed"`
}

const keyFileVersion = 1

// Open loads (or initializes) the key-store under config.Root. A key
// file sealed with a different passphrase is an error.
func Open(config ServerConfig) (*Server, error) {
	if config.Root == "" {
		return nil, errors.New("keystore: root directory is required")
	}
	if config.Passphrase == nil {
		return nil, errors.New("keystore: passphrase is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	socketPath := config.SocketPath
	if socketPath == "" {
		socketPath = filepath.Join(config.Root, SocketName)
	}
	if err := os.MkdirAll(config.Root, 0o700); err != nil {
		return nil, fmt.Errorf("creating key-store root: %w", err)
	}

	server := &Server{
		root:       config.Root,
		passphrase: config.Passphrase,
		workFactor: config.WorkFactor,
		logger:     logger,
		socket:     service.NewSocketServer(socketPath, logger),
		keys:       make(map[holohash.AgentPubKey]*storedKey),
		tags:       make(map[string]holohash.AgentPubKey),
	}
	if err := server.load(); err != nil {
		server.Close()
		return nil, err
	}

	server.socket.Handle(actionNewSignKeypair, server.handleNewSignKeypair)
	server.socket.Handle(actionImportSeed, server.handleImportSeed)
	server.socket.Handle(actionSign, server.handleSign)
	server.socket.Handle(actionListKeys, server.handleListKeys)
	server.socket.Handle(actionStatus, server.handleStatus)
	return server, nil
}

// Serve listens until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.socket.Serve(ctx)
}

// Ready is closed once the socket is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.socket.Ready()
}

// ConnectionURL returns the URL clients use to reach this server.
func (s *Server) ConnectionURL() string {
	return ConnectionURL(s.socket.SocketPath())
}

// Close zeroes all key material and the passphrase.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.keys {
		key.private.Close()
	}
	s.keys = map[holohash.AgentPubKey]*storedKey{}
	s.order = nil
	s.tags = map[string]holohash.AgentPubKey{}
	s.passphrase.Close()
}

func (s *Server) keyFilePath() string {
	return filepath.Join(s.root, FileName)
}

func (s *Server) load() error {
	ciphertext, err := os.ReadFile(s.keyFilePath())
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("initializing empty key-store", "root", s.root)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading key file: %w", err)
	}

	plaintext, err := sealed.Open(ciphertext, s.passphrase)
	if err != nil {
		return fmt.Errorf("unsealing key file %s: %w", s.keyFilePath(), err)
	}
	defer plaintext.Close()

	var file keyFile
	if err := codec.Unmarshal(plaintext.Bytes(), &file); err != nil {
		return fmt.Errorf("decoding key file: %w", err)
	}
	if file.Version != keyFileVersion {
		return fmt.Errorf("key file version %d is not supported", file.Version)
	}
	for _, stored := range file.Keys {
		_, err := s.addSeed(stored.Tag, stored.Seed)
		secret.Zero(stored.Seed)
		if err != nil {
			return fmt.Errorf("loading key %q: %w", stored.Tag, err)
		}
	}
	s.logger.Info("key-store loaded", "root", s.root, "keys", len(s.order))
	return nil
}

// persist seals every key's seed to the key file. Caller holds s.mu.
func (s *Server) persist() error {
	file := keyFile{Version: keyFileVersion}
	for _, agent := range s.order {
		key := s.keys[agent]
		file.Keys = append(file.Keys, keyFileKey{
			Tag:  key.tag,
			Seed: ed25519.PrivateKey(key.private.Bytes()).Seed(),
		})
	}
	plaintext, err := codec.Marshal(file)
	for _, stored := range file.Keys {
		secret.Zero(stored.Seed)
	}
	if err != nil {
		return fmt.Errorf("encoding key file: %w", err)
	}
	defer secret.Zero(plaintext)

	ciphertext, err := sealed.Seal(plaintext, s.passphrase, s.workFactor)
	if err != nil {
		return fmt.Errorf("sealing key file: %w", err)
	}

	temporary := s.keyFilePath() + ".tmp"
	if err := os.WriteFile(temporary, ciphertext, 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	if err := os.Rename(temporary, s.keyFilePath()); err != nil {
		return fmt.Errorf("replacing key file: %w", err)
	}
	return nil
}

// addSeed registers the key derived from seed under tag. Re-adding the
// same seed under the same tag returns the existing agent. Caller
// holds s.mu (or is in Open).
func (s *Server) addSeed(tag string, seed []byte) (holohash.AgentPubKey, error) {
	if len(seed) != SeedSize {
		return holohash.AgentPubKey{}, ErrBadSeed
	}
	privateKey := ed25519.NewKeyFromSeed(seed)
	agent, err := holohash.NewAgentPubKey(privateKey.Public().(ed25519.PublicKey))
	if err != nil {
		secret.Zero(privateKey)
		return holohash.AgentPubKey{}, err
	}

	if tag == "" {
		tag = agent.String()
	}
	if existing, exists := s.tags[tag]; exists {
		secret.Zero(privateKey)
		if existing == agent {
			return agent, nil
		}
		return holohash.AgentPubKey{}, fmt.Errorf("%w: %q", ErrTagConflict, tag)
	}
	if _, exists := s.keys[agent]; exists {
		secret.Zero(privateKey)
		return agent, nil
	}

	buffer, err := secret.NewFromBytes(privateKey)
	if err != nil {
		return holohash.AgentPubKey{}, fmt.Errorf("protecting private key: %w", err)
	}
	s.keys[agent] = &storedKey{tag: tag, private: buffer}
	s.order = append(s.order, agent)
	s.tags[tag] = agent
	return agent, nil
}

// NewSignKeypair generates and persists a new key under tag (empty
// tag uses the agent's text form).
func (s *Server) NewSignKeypair(tag string) (holohash.AgentPubKey, error) {
	seed := make([]byte, SeedSize)
	defer secret.Zero(seed)
	if _, err := rand.Read(seed); err != nil {
		return holohash.AgentPubKey{}, fmt.Errorf("generating seed: %w", err)
	}
	return s.ImportSeed(tag, seed)
}

// ImportSeed derives a key from seed, stores it under tag and persists
// the key file.
func (s *Server) ImportSeed(tag string, seed []byte) (holohash.AgentPubKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.order)
	agent, err := s.addSeed(tag, seed)
	if err != nil {
		return holohash.AgentPubKey{}, err
	}
	if len(s.order) == before {
		return agent, nil
	}
	if err := s.persist(); err != nil {
		s.removeLast()
		return holohash.AgentPubKey{}, err
	}
	s.logger.Info("key stored", "tag", s.keys[agent].tag, "agent", agent.String())
	return agent, nil
}

// removeLast undoes the most recent addSeed. Caller holds s.mu.
func (s *Server) removeLast() {
	agent := s.order[len(s.order)-1]
	key := s.keys[agent]
	key.private.Close()
	delete(s.keys, agent)
	delete(s.tags, key.tag)
	s.order = s.order[:len(s.order)-1]
}

// Sign signs data as agent.
func (s *Server) Sign(agent holohash.AgentPubKey, data []byte) (conductorapi.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, exists := s.keys[agent]
	if !exists {
		return conductorapi.Signature{}, fmt.Errorf("%w %s", ErrUnknownAgent, agent)
	}
	var signature conductorapi.Signature
	copy(signature[:], ed25519.Sign(ed25519.PrivateKey(key.private.Bytes()), data))
	return signature, nil
}

// ListKeys returns stored keys in insertion order.
func (s *Server) ListKeys() []KeyInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]KeyInfo, 0, len(s.order))
	for _, agent := range s.order {
		keys = append(keys, KeyInfo{Tag: s.keys[agent].tag, Agent: agent})
	}
	return keys
}

func (s *Server) handleNewSignKeypair(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Tag string `cbor:"tag"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	agent, err := s.NewSignKeypair(request.Tag)
	if err != nil {
		return nil, err
	}
	return agentResponse{Agent: agent}, nil
}

func (s *Server) handleImportSeed(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Tag  string `cbor:"tag"`
		Seed []byte `cbor:"seed"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	defer secret.Zero(request.Seed)
	if request.Tag == "" {
		return nil, errors.New("import-seed requires a tag")
	}
	agent, err := s.ImportSeed(request.Tag, request.Seed)
	if err != nil {
		return nil, err
	}
	return agentResponse{Agent: agent}, nil
}

func (s *Server) handleSign(ctx context.Context, raw []byte) (any, error) {
	var request signRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	signature, err := s.Sign(request.Agent, request.Data)
	if err != nil {
		return nil, err
	}
	return signResponse{Signature: signature}, nil
}

func (s *Server) handleListKeys(ctx context.Context, raw []byte) (any, error) {
	return listKeysResponse{Keys: s.ListKeys()}, nil
}

func (s *Server) handleStatus(ctx context.Context, raw []byte) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Keys: len(s.order)}, nil
}
