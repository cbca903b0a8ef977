// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

type sampleCall struct {
	ZomeName string   `cbor:"zome_name"`
	FnName   string   `cbor:"fn_name"`
	Nonce    [32]byte `cbor:"nonce"`
	Expires  int64    `cbor:"expires_at"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleCall{ZomeName: "profiles", FnName: "get_profile", Expires: 1700000000000000}
	original.Nonce[0] = 0xAB

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleCall
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministicAcrossMapOrder(t *testing.T) {
	// Two maps with the same content built in different insertion
	// orders must encode identically, otherwise signatures over map
	// payloads would be unverifiable.
	first := map[string]any{}
	first["zeta"] = 1
	first["alpha"] = "a"
	first["mid"] = []byte{1, 2}

	second := map[string]any{}
	second["mid"] = []byte{1, 2}
	second["alpha"] = "a"
	second["zeta"] = 1

	firstBytes, err := Marshal(first)
	if err != nil {
		t.Fatalf("Marshal first: %v", err)
	}
	secondBytes, err := Marshal(second)
	if err != nil {
		t.Fatalf("Marshal second: %v", err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Errorf("deterministic encoding violated: %x != %x", firstBytes, secondBytes)
	}
}

func TestByteArrayEncodesAsByteString(t *testing.T) {
	var nonce [32]byte
	for i := range nonce {
		nonce[i] = byte(i)
	}

	data, err := Marshal(nonce)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// Major type 2 (byte string) with a one-byte length: 0x58 0x20.
	if len(data) != 34 || data[0] != 0x58 || data[1] != 0x20 {
		t.Fatalf("expected 34-byte byte string encoding, got %x", data)
	}

	var decoded [32]byte
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != nonce {
		t.Errorf("decoded %x, want %x", decoded, nonce)
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	calls := []sampleCall{
		{ZomeName: "a", FnName: "one"},
		{ZomeName: "b", FnName: "two", Expires: 7},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, call := range calls {
		if err := encoder.Encode(call); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range calls {
		var got sampleCall
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if got != want {
			t.Errorf("call %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestDecodeAnyProducesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"key": "value"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type %T, want map[string]any", decoded)
	}
	if _, ok := outer["nested"].(map[string]any); !ok {
		t.Errorf("nested type %T, want map[string]any", outer["nested"])
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var call sampleCall
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &call); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]any{"type": "list_apps"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"list_apps"`) {
		t.Errorf("notation %q does not contain \"list_apps\"", notation)
	}
}
