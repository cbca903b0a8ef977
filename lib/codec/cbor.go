// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode encodes with Core Deterministic Encoding. Signatures over
// zome calls are computed on this output, so the options here are part
// of the signing contract: changing them invalidates every signature
// produced by an older build.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields so that a
// newer conductor can add response fields without breaking clients.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Fixed-size byte arrays (hashes, nonces, signatures) travel as
	// byte strings, not arrays of small integers.
	encOptions.ByteArray = cbor.ByteArrayToByteSlice
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Payloads decoded into any (zome outputs printed by the CLI,
		// signals) become map[string]any rather than
		// map[interface{}]interface{}, which encoding/json cannot handle.
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is an encoded CBOR value whose decoding is deferred. The
// envelope layers (websocket frames, request/response variants) carry
// their payload as RawMessage and decode it only once the variant is
// known.
type RawMessage = cbor.RawMessage

// NewEncoder returns a deterministic CBOR encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a CBOR decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for
// data. "holoenv call" falls back to it for zome outputs JSON cannot
// represent.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
