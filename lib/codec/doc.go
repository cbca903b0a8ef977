// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR configuration shared by every
// holoenv component that puts bytes on a wire or under a signature.
//
// Three consumers depend on identical encoding:
//
//   - The conductor admin and app channels (lib/wschannel), which carry
//     one CBOR envelope per websocket message.
//   - Zome call signing (lib/conductorapi), where the signed bytes are
//     the encoding of the unsigned call. A signature only verifies if
//     the same logical value always produces the same bytes.
//   - The key-store socket protocol (lib/service, lib/keystore).
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
//
// For buffers:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For streams:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
