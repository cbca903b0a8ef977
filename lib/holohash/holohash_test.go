// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package holohash

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"

	"github.com/bureau-foundation/holoenv/lib/codec"
)

func testKey(t *testing.T) ed25519.PublicKey {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for index := range seed {
		seed[index] = byte(index)
	}
	return ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
}

func TestAgentPubKeyRoundTrip(t *testing.T) {
	publicKey := testKey(t)
	agent, err := NewAgentPubKey(publicKey)
	if err != nil {
		t.Fatalf("NewAgentPubKey: %v", err)
	}
	if !agent.PublicKey().Equal(publicKey) {
		t.Fatalf("PublicKey() does not return the wrapped key")
	}

	text := agent.String()
	if !strings.HasPrefix(text, "uhCAk") {
		t.Errorf("String() = %q, want uhCAk prefix", text)
	}
	parsed, err := ParseAgentPubKey(text)
	if err != nil {
		t.Fatalf("ParseAgentPubKey: %v", err)
	}
	if parsed != agent {
		t.Fatalf("parsed key differs from original")
	}
}

func TestDnaHashPrefix(t *testing.T) {
	var core [CoreSize]byte
	core[0] = 0xaa
	dna := NewDnaHash(core)
	if !strings.HasPrefix(dna.String(), "uhC0k") {
		t.Errorf("String() = %q, want uhC0k prefix", dna.String())
	}
	if _, err := ParseDnaHash(dna.String()); err != nil {
		t.Fatalf("ParseDnaHash: %v", err)
	}
}

func TestParseRejectsWrongType(t *testing.T) {
	var core [CoreSize]byte
	dna := NewDnaHash(core)
	_, err := ParseAgentPubKey(dna.String())
	if !errors.Is(err, ErrWrongPrefix) {
		t.Fatalf("ParseAgentPubKey(dna) error = %v, want ErrWrongPrefix", err)
	}
}

func TestParseRejectsCorruptLocation(t *testing.T) {
	agent, err := NewAgentPubKey(testKey(t))
	if err != nil {
		t.Fatalf("NewAgentPubKey: %v", err)
	}
	agent[Size-1] ^= 0xff
	_, err = ParseAgentPubKey(agent.String())
	if !errors.Is(err, ErrBadLocation) {
		t.Fatalf("error = %v, want ErrBadLocation", err)
	}
}

func TestParseRejectsMalformedText(t *testing.T) {
	for _, input := range []string{"", "mhCAk", "u!!!", "uAAAA"} {
		if _, err := ParseAgentPubKey(input); err == nil {
			t.Errorf("ParseAgentPubKey(%q) succeeded, want error", input)
		}
	}
}

func TestNewAgentPubKeyRejectsShortKey(t *testing.T) {
	_, err := NewAgentPubKey(make([]byte, 16))
	if !errors.Is(err, ErrWrongLength) {
		t.Fatalf("error = %v, want ErrWrongLength", err)
	}
}

func TestCBORTextForm(t *testing.T) {
	agent, err := NewAgentPubKey(testKey(t))
	if err != nil {
		t.Fatalf("NewAgentPubKey: %v", err)
	}
	type wrapper struct {
		Agent AgentPubKey `cbor:"agent"`
	}
	encoded, err := codec.Marshal(wrapper{Agent: agent})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded wrapper
	if err := codec.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Agent != agent {
		t.Fatalf("decoded agent differs")
	}

	var asMap map[string]any
	if err := codec.Unmarshal(encoded, &asMap); err != nil {
		t.Fatalf("Unmarshal map: %v", err)
	}
	if asMap["agent"] != agent.String() {
		t.Fatalf("agent encoded as %T %v, want text %q", asMap["agent"], asMap["agent"], agent.String())
	}
}
