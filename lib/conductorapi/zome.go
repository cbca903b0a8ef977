// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductorapi

import (
	"encoding/hex"
	"time"

	"github.com/bureau-foundation/holoenv/lib/codec"
	"github.com/bureau-foundation/holoenv/lib/holohash"
)

// Nonce256 is a single-use random value bound into a signed call.
type Nonce256 [32]byte

func (n Nonce256) String() string { return hex.EncodeToString(n[:]) }

// Signature is a detached ed25519 signature.
type Signature [64]byte

// Timestamp is microseconds since the Unix epoch.
type Timestamp int64

// TimestampFromTime converts t to a Timestamp.
func TimestampFromTime(t time.Time) Timestamp { return Timestamp(t.UnixMicro()) }

// Time converts the timestamp back to a time.Time.
func (ts Timestamp) Time() time.Time { return time.UnixMicro(int64(ts)) }

// ZomeCallUnsigned is everything a zome call commits to. Its canonical
// encoding is what the provenance agent signs.
type ZomeCallUnsigned struct {
	Provenance holohash.AgentPubKey `cbor:"provenance"`
	CellID     CellID               `cbor:"cell_id"`
	ZomeName   string               `cbor:"zome_name"`
	FnName     string               `cbor:"fn_name"`
	Payload    codec.RawMessage     `cbor:"payload"`
	Nonce      Nonce256             `cbor:"nonce"`
	ExpiresAt  Timestamp            `cbor:"expires_at"`
}

// DataToSign returns the canonical bytes covered by the signature.
func (u *ZomeCallUnsigned) DataToSign() ([]byte, error) {
	data, err := codec.Marshal(u)
	if err != nil {
		return nil, &EncodeError{What: "zome call for signing", Err: err}
	}
	return data, nil
}

// ZomeCall is a signed zome call: the unsigned fields, unchanged, plus
// the signature over their canonical bytes.
type ZomeCall struct {
	Provenance holohash.AgentPubKey `cbor:"provenance"`
	CellID     CellID               `cbor:"cell_id"`
	ZomeName   string               `cbor:"zome_name"`
	FnName     string               `cbor:"fn_name"`
	Payload    codec.RawMessage     `cbor:"payload"`
	Nonce      Nonce256             `cbor:"nonce"`
	ExpiresAt  Timestamp            `cbor:"expires_at"`
	Signature  Signature            `cbor:"signature"`
}

// NewZomeCall attaches signature to unsigned. The fields are copied,
// never regenerated.
func NewZomeCall(unsigned ZomeCallUnsigned, signature Signature) ZomeCall {
	return ZomeCall{
		Provenance: unsigned.Provenance,
		CellID:     unsigned.CellID,
		ZomeName:   unsigned.ZomeName,
		FnName:     unsigned.FnName,
		Payload:    unsigned.Payload,
		Nonce:      unsigned.Nonce,
		ExpiresAt:  unsigned.ExpiresAt,
		Signature:  signature,
	}
}

// Unsigned returns the fields the signature covers.
func (c ZomeCall) Unsigned() ZomeCallUnsigned {
	return ZomeCallUnsigned{
		Provenance: c.Provenance,
		CellID:     c.CellID,
		ZomeName:   c.ZomeName,
		FnName:     c.FnName,
		Payload:    c.Payload,
		Nonce:      c.Nonce,
		ExpiresAt:  c.ExpiresAt,
	}
}
