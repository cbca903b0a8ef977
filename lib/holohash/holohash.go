// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package holohash

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	// Size is the length of an encoded hash.
	Size = 39
	// CoreSize is the length of the hashed or keyed portion.
	CoreSize = 32

	prefixSize   = 3
	locationSize = 4
)

var (
	agentPrefix = [prefixSize]byte{0x84, 0x20, 0x24}
	dnaPrefix   = [prefixSize]byte{0x84, 0x2d, 0x24}
)

var (
	ErrWrongPrefix = errors.New("holohash: wrong type prefix")
	ErrBadLocation = errors.New("holohash: location bytes do not match core")
	ErrBadEncoding = errors.New("holohash: text form must start with 'u'")
	ErrWrongLength = errors.New("holohash: wrong length")
)

// AgentPubKey identifies an agent. The core is its ed25519 public key.
type AgentPubKey [Size]byte

// DnaHash identifies a DNA.
type DnaHash [Size]byte

// NewAgentPubKey wraps an ed25519 public key.
func NewAgentPubKey(publicKey ed25519.PublicKey) (AgentPubKey, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return AgentPubKey{}, fmt.Errorf("%w: public key has %d bytes, want %d", ErrWrongLength, len(publicKey), ed25519.PublicKeySize)
	}
	return AgentPubKey(build(agentPrefix, publicKey)), nil
}

// PublicKey returns the ed25519 public key inside the hash.
func (a AgentPubKey) PublicKey() ed25519.PublicKey {
	key := make([]byte, CoreSize)
	copy(key, a[prefixSize:prefixSize+CoreSize])
	return ed25519.PublicKey(key)
}

// IsZero reports whether a is the zero value.
func (a AgentPubKey) IsZero() bool { return a == AgentPubKey{} }

func (a AgentPubKey) String() string { return encode(a[:]) }

// MarshalText implements encoding.TextMarshaler.
func (a AgentPubKey) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AgentPubKey) UnmarshalText(text []byte) error {
	parsed, err := ParseAgentPubKey(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAgentPubKey parses the "u..." text form of an agent key and
// checks its prefix and location bytes.
func ParseAgentPubKey(text string) (AgentPubKey, error) {
	raw, err := decode(text, agentPrefix)
	if err != nil {
		return AgentPubKey{}, fmt.Errorf("parsing agent key %q: %w", text, err)
	}
	return AgentPubKey(raw), nil
}

// NewDnaHash wraps a 32-byte DNA digest.
func NewDnaHash(core [CoreSize]byte) DnaHash {
	return DnaHash(build(dnaPrefix, core[:]))
}

// IsZero reports whether d is the zero value.
func (d DnaHash) IsZero() bool { return d == DnaHash{} }

func (d DnaHash) String() string { return encode(d[:]) }

// MarshalText implements encoding.TextMarshaler.
func (d DnaHash) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DnaHash) UnmarshalText(text []byte) error {
	parsed, err := ParseDnaHash(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDnaHash parses the "u..." text form of a DNA hash.
func ParseDnaHash(text string) (DnaHash, error) {
	raw, err := decode(text, dnaPrefix)
	if err != nil {
		return DnaHash{}, fmt.Errorf("parsing dna hash %q: %w", text, err)
	}
	return DnaHash(raw), nil
}

func build(prefix [prefixSize]byte, core []byte) [Size]byte {
	var out [Size]byte
	copy(out[:prefixSize], prefix[:])
	copy(out[prefixSize:prefixSize+CoreSize], core)
	location := location(core)
	copy(out[prefixSize+CoreSize:], location[:])
	return out
}

// location folds a 16-byte BLAKE2b digest of core into 4 bytes by XOR.
func location(core []byte) [locationSize]byte {
	hasher, err := blake2b.New(16, nil)
	if err != nil {
		panic("holohash: blake2b: " + err.Error())
	}
	hasher.Write(core)
	digest := hasher.Sum(nil)

	var out [locationSize]byte
	copy(out[:], digest[:locationSize])
	for index := locationSize; index < len(digest); index += locationSize {
		for offset := range locationSize {
			out[offset] ^= digest[index+offset]
		}
	}
	return out
}

func encode(raw []byte) string {
	return "u" + base64.RawURLEncoding.EncodeToString(raw)
}

func decode(text string, prefix [prefixSize]byte) ([Size]byte, error) {
	var out [Size]byte
	if len(text) == 0 || text[0] != 'u' {
		return out, ErrBadEncoding
	}
	raw, err := base64.RawURLEncoding.DecodeString(text[1:])
	if err != nil {
		return out, fmt.Errorf("decoding base64: %w", err)
	}
	if len(raw) != Size {
		return out, fmt.Errorf("%w: %d bytes, want %d", ErrWrongLength, len(raw), Size)
	}
	if !bytes.Equal(raw[:prefixSize], prefix[:]) {
		return out, ErrWrongPrefix
	}
	expected := location(raw[prefixSize : prefixSize+CoreSize])
	if !bytes.Equal(raw[prefixSize+CoreSize:], expected[:]) {
		return out, ErrBadLocation
	}
	copy(out[:], raw)
	return out, nil
}
