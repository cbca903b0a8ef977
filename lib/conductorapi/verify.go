// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductorapi

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidSignature means the signature does not verify against
	// the provenance agent's public key over the call's canonical
	// bytes.
	ErrInvalidSignature = errors.New("conductorapi: signature does not verify against provenance")

	// ErrCallExpired means the call was presented at or after its
	// expiry.
	ErrCallExpired = errors.New("conductorapi: zome call expired")
)

// VerifyZomeCall checks the receiving side's two admission rules: the
// signature covers exactly the unsigned fields and was made by the
// provenance agent, and now is strictly before the expiry.
func VerifyZomeCall(call ZomeCall, now time.Time) error {
	unsigned := call.Unsigned()
	data, err := unsigned.DataToSign()
	if err != nil {
		return err
	}
	if !ed25519.Verify(call.Provenance.PublicKey(), data, call.Signature[:]) {
		return ErrInvalidSignature
	}
	expiry := call.ExpiresAt.Time()
	if !now.Before(expiry) {
		return fmt.Errorf("%w: expired at %s, presented at %s", ErrCallExpired,
			expiry.UTC().Format(time.RFC3339Nano), now.UTC().Format(time.RFC3339Nano))
	}
	return nil
}
