// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductorapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/holoenv/lib/holohash"
)

// CellID identifies a cell: one DNA run by one agent. Encoded as a
// two-element array.
type CellID struct {
	_           struct{} `cbor:",toarray"`
	DnaHash     holohash.DnaHash
	AgentPubKey holohash.AgentPubKey
}

func (c CellID) String() string {
	return c.DnaHash.String() + ":" + c.AgentPubKey.String()
}

// ParseCellID parses the "<dna>:<agent>" form produced by String.
func ParseCellID(text string) (CellID, error) {
	dnaText, agentText, found := strings.Cut(text, ":")
	if !found {
		return CellID{}, fmt.Errorf("cell id %q: expected <dna-hash>:<agent-key>", text)
	}
	dna, err := holohash.ParseDnaHash(dnaText)
	if err != nil {
		return CellID{}, err
	}
	agent, err := holohash.ParseAgentPubKey(agentText)
	if err != nil {
		return CellID{}, err
	}
	return CellID{DnaHash: dna, AgentPubKey: agent}, nil
}

// AppStatus is the lifecycle state of an installed app.
type AppStatus string

const (
	AppStatusEnabled  AppStatus = "enabled"
	AppStatusDisabled AppStatus = "disabled"
)

// AppStatusFilter restricts list_apps to apps in one status.
type AppStatusFilter = AppStatus

// CellInfo describes one provisioned cell of an app.
type CellInfo struct {
	CellID CellID `cbor:"cell_id"`
	Name   string `cbor:"name"`
}

// AppInfo describes an installed app.
type AppInfo struct {
	InstalledAppID string               `cbor:"installed_app_id"`
	AgentPubKey    holohash.AgentPubKey `cbor:"agent_pub_key"`
	Status         AppStatus            `cbor:"status"`

	// CellInfo maps role name to the cells provisioned for that role.
	CellInfo map[string][]CellInfo `cbor:"cell_info"`
}

// CellForRole returns the first cell provisioned for role.
func (a AppInfo) CellForRole(role string) (CellID, bool) {
	cells := a.CellInfo[role]
	if len(cells) == 0 {
		return CellID{}, false
	}
	return cells[0].CellID, true
}

// ListAppsRequest is the payload of list_apps.
type ListAppsRequest struct {
	StatusFilter *AppStatusFilter `cbor:"status_filter"`
}

// AppBundleSource locates the bundle to install. Exactly one of Path
// or Bundle is set.
type AppBundleSource struct {
	Path   string `cbor:"path,omitempty"`
	Bundle []byte `cbor:"bundle,omitempty"`
}

// InstallAppPayload is the payload of install_app.
type InstallAppPayload struct {
	Source AppBundleSource `cbor:"source"`

	// AgentKey is the agent the app runs as. Nil lets the conductor
	// generate one.
	AgentKey *holohash.AgentPubKey `cbor:"agent_key"`

	// InstalledAppID overrides the id derived from the bundle. Nil
	// lets the conductor choose.
	InstalledAppID *string `cbor:"installed_app_id"`

	// NetworkSeed partitions the app's network from other
	// installations of the same bundle.
	NetworkSeed *string `cbor:"network_seed"`
}

// EnableAppRequest is the payload of enable_app.
type EnableAppRequest struct {
	InstalledAppID string `cbor:"installed_app_id"`
}

// CellError reports a cell that failed to start while enabling an app.
type CellError struct {
	CellID CellID `cbor:"cell_id"`
	Error  string `cbor:"error"`
}

// AppEnabled is the payload of app_enabled. Errors lists cells that
// could not start; the app is enabled regardless.
type AppEnabled struct {
	App    AppInfo     `cbor:"app"`
	Errors []CellError `cbor:"errors"`
}

// AttachAppInterfaceRequest is the payload of attach_app_interface.
type AttachAppInterfaceRequest struct {
	// Port is the port to listen on. Nil asks for any free port.
	Port *uint16 `cbor:"port"`

	AllowedOrigins AllowedOrigins `cbor:"allowed_origins"`

	// InstalledAppID restricts the interface to one app. Nil allows
	// all apps.
	InstalledAppID *string `cbor:"installed_app_id"`
}

// AppInterfaceAttached is the payload of app_interface_attached.
type AppInterfaceAttached struct {
	Port uint16 `cbor:"port"`
}

// AllowedOrigins is the websocket origin policy of an interface. Its
// text form is "*" for any origin or a comma-separated list.
type AllowedOrigins struct {
	any     bool
	origins []string
}

// AnyOrigin allows connections from every origin.
func AnyOrigin() AllowedOrigins { return AllowedOrigins{any: true} }

// Origins allows connections only from the listed origins.
func Origins(origins ...string) AllowedOrigins {
	return AllowedOrigins{origins: append([]string(nil), origins...)}
}

// IsAny reports whether every origin is allowed.
func (o AllowedOrigins) IsAny() bool { return o.any }

// List returns the allowed origins, or nil for AnyOrigin.
func (o AllowedOrigins) List() []string { return append([]string(nil), o.origins...) }

// Allows reports whether origin is permitted.
func (o AllowedOrigins) Allows(origin string) bool {
	if o.any {
		return true
	}
	for _, allowed := range o.origins {
		if allowed == origin {
			return true
		}
	}
	return false
}

func (o AllowedOrigins) String() string {
	if o.any {
		return "*"
	}
	return strings.Join(o.origins, ",")
}

// MarshalText implements encoding.TextMarshaler.
func (o AllowedOrigins) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *AllowedOrigins) UnmarshalText(text []byte) error {
	parsed, err := ParseAllowedOrigins(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

var errEmptyOrigin = errors.New("empty origin in list")

// ParseAllowedOrigins parses "*" or a comma-separated origin list.
func ParseAllowedOrigins(text string) (AllowedOrigins, error) {
	text = strings.TrimSpace(text)
	if text == "*" {
		return AnyOrigin(), nil
	}
	if text == "" {
		return AllowedOrigins{}, nil
	}
	var origins []string
	for _, origin := range strings.Split(text, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			return AllowedOrigins{}, fmt.Errorf("allowed origins %q: %w", text, errEmptyOrigin)
		}
		if origin == "*" {
			return AllowedOrigins{}, fmt.Errorf("allowed origins %q: \"*\" cannot be combined with other origins", text)
		}
		origins = append(origins, origin)
	}
	return AllowedOrigins{origins: origins}, nil
}
