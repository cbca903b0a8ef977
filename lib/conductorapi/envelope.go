// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductorapi

import (
	"github.com/bureau-foundation/holoenv/lib/codec"
)

// Request kinds.
const (
	RequestListApps           = "list_apps"
	RequestInstallApp         = "install_app"
	RequestEnableApp          = "enable_app"
	RequestAttachAppInterface = "attach_app_interface"
	RequestCallZome           = "call_zome"
)

// Response kinds.
const (
	ResponseAppsListed           = "apps_listed"
	ResponseAppInstalled         = "app_installed"
	ResponseAppEnabled           = "app_enabled"
	ResponseAppInterfaceAttached = "app_interface_attached"
	ResponseZomeCalled           = "zome_called"
	ResponseError                = "error"
)

// Request is the envelope for every admin and app request.
type Request struct {
	Type string           `cbor:"type"`
	Data codec.RawMessage `cbor:"data,omitempty"`
}

// Response is the envelope for every admin and app response.
type Response struct {
	Type string           `cbor:"type"`
	Data codec.RawMessage `cbor:"data,omitempty"`
}

// NewRequest encodes data as the payload of a request of the given
// kind. A nil data produces an envelope with no payload.
func NewRequest(kind string, data any) (Request, error) {
	request := Request{Type: kind}
	if data == nil {
		return request, nil
	}
	encoded, err := codec.Marshal(data)
	if err != nil {
		return Request{}, &EncodeError{What: kind + " request", Err: err}
	}
	request.Data = encoded
	return request, nil
}

// NewResponse encodes data as the payload of a response of the given
// kind. Used by the server side of the protocol.
func NewResponse(kind string, data any) (Response, error) {
	response := Response{Type: kind}
	if data == nil {
		return response, nil
	}
	encoded, err := codec.Marshal(data)
	if err != nil {
		return Response{}, &EncodeError{What: kind + " response", Err: err}
	}
	response.Data = encoded
	return response, nil
}

// ErrorResponse builds an "error" response carrying detail.
func ErrorResponse(kind, message string) Response {
	// ExternalError has only string fields; encoding cannot fail.
	encoded, _ := codec.Marshal(ExternalError{Kind: kind, Message: message})
	return Response{Type: ResponseError, Data: encoded}
}

// DecodeResponse decodes an encoded response envelope. operation names
// the request that produced it, for error context.
func DecodeResponse(operation string, raw []byte) (Response, error) {
	var response Response
	if err := codec.Unmarshal(raw, &response); err != nil {
		return Response{}, &DecodeError{What: operation + " response envelope", Err: err}
	}
	return response, nil
}

// Expect matches response against the single success kind wantKind.
// On a match the payload is decoded into out (when out is non-nil).
// An "error" response becomes an *ApplicationError. Any other kind
// becomes a *ProtocolError.
func Expect(response Response, operation, wantKind string, out any) error {
	switch response.Type {
	case wantKind:
		if out == nil {
			return nil
		}
		if len(response.Data) == 0 {
			return &DecodeError{What: operation + " " + wantKind + " payload", Err: errEmptyPayload}
		}
		if err := codec.Unmarshal(response.Data, out); err != nil {
			return &DecodeError{What: operation + " " + wantKind + " payload", Err: err}
		}
		return nil
	case ResponseError:
		var detail ExternalError
		if len(response.Data) > 0 {
			if err := codec.Unmarshal(response.Data, &detail); err != nil {
				return &DecodeError{What: operation + " error payload", Err: err}
			}
		}
		return &ApplicationError{Operation: operation, Detail: detail}
	default:
		return &ProtocolError{Operation: operation, Expected: wantKind, Got: response.Type}
	}
}
