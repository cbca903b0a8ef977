// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductorapi

import (
	"errors"
	"fmt"
)

var errEmptyPayload = errors.New("empty payload")

// ExternalError is the payload of an "error" response.
type ExternalError struct {
	// Kind is a short machine-readable category such as
	// "app_not_installed" or "call_expired".
	Kind string `cbor:"kind"`

	// Message is the conductor's human-readable explanation.
	Message string `cbor:"message"`
}

func (e ExternalError) String() string {
	if e.Kind == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Message
}

// ApplicationError reports that the conductor explicitly rejected a
// request. Install and enable failures are ApplicationErrors whose
// Operation is RequestInstallApp or RequestEnableApp.
type ApplicationError struct {
	Operation string
	Detail    ExternalError
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("conductor rejected %s: %s", e.Operation, e.Detail)
}

// ProtocolError reports that the conductor answered with a response
// kind other than the one the request calls for.
type ProtocolError struct {
	Operation string
	Expected  string
	Got       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation in %s: expected %q response, got %q", e.Operation, e.Expected, e.Got)
}

// EncodeError reports that a value could not be encoded.
type EncodeError struct {
	What string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding %s: %v", e.What, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError reports that a payload could not be decoded into the
// expected type.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SigningError reports that the signing authority could not produce a
// signature.
type SigningError struct {
	Agent string
	Err   error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing as %s: %v", e.Agent, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }
