// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductorconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/holoenv/lib/binhash"
	"github.com/bureau-foundation/holoenv/lib/conductorapi"
)

const (
	// FileName is the document's name inside the conductor's working
	// directory. The conductor is started with --config-path FileName.
	FileName = "conductor-config.yaml"

	// DataDirName is the data root's name inside the working directory.
	DataDirName = "data"

	// DeviceSeedTag is the key-store tag of the conductor's device seed.
	DeviceSeedTag = "holochain-device-seed"

	// KeystoreTypeLairServer selects an external key-store reached over
	// its connection URL.
	KeystoreTypeLairServer = "lair_server"

	// DriverWebsocket is the only admin interface driver.
	DriverWebsocket = "websocket"

	digestDomain = "holoenv.conductor-config"
)

// Document is the conductor configuration file.
type Document struct {
	DataRootPath      string           `yaml:"data_root_path"`
	Keystore          Keystore         `yaml:"keystore"`
	AdminInterfaces   []AdminInterface `yaml:"admin_interfaces"`
	DeviceSeedLairTag string           `yaml:"device_seed_lair_tag,omitempty"`
}

// Keystore tells the conductor where its signing keys live.
type Keystore struct {
	Type          string `yaml:"type"`
	ConnectionURL string `yaml:"connection_url"`
}

// AdminInterface is one admin API listener.
type AdminInterface struct {
	Driver InterfaceDriver `yaml:"driver"`
}

// InterfaceDriver configures the transport of an admin interface.
// AllowedOrigins renders as "*" or a comma-separated list.
type InterfaceDriver struct {
	Type           string                      `yaml:"type"`
	Port           uint16                      `yaml:"port"`
	AllowedOrigins conductorapi.AllowedOrigins `yaml:"allowed_origins"`
}

// Params are the inputs to Generate.
type Params struct {
	// WorkDir is the conductor's working directory. The data root is
	// WorkDir/data.
	WorkDir string

	// KeystoreURL is the key-store's connection URL as it printed it.
	KeystoreURL string

	AdminPort      uint16
	AllowedOrigins conductorapi.AllowedOrigins

	// DeviceSeedTag names the device seed in the key-store. Empty
	// selects DeviceSeedTag.
	DeviceSeedTag string
}

// Generate builds the document for params. It performs no I/O.
func Generate(params Params) (Document, error) {
	var errs []error
	if params.WorkDir == "" {
		errs = append(errs, errors.New("work directory is required"))
	} else if !filepath.IsAbs(params.WorkDir) {
		errs = append(errs, fmt.Errorf("work directory %q must be absolute", params.WorkDir))
	}
	if params.KeystoreURL == "" {
		errs = append(errs, errors.New("key-store connection URL is required"))
	} else if !strings.HasPrefix(params.KeystoreURL, "unix://") {
		errs = append(errs, fmt.Errorf("key-store connection URL %q is not a unix:// URL", params.KeystoreURL))
	}
	if params.AdminPort == 0 {
		errs = append(errs, errors.New("admin port is required"))
	}
	if len(errs) > 0 {
		return Document{}, fmt.Errorf("generating conductor config: %w", errors.Join(errs...))
	}

	tag := params.DeviceSeedTag
	if tag == "" {
		tag = DeviceSeedTag
	}
	return Document{
		DataRootPath: filepath.Join(params.WorkDir, DataDirName),
		Keystore: Keystore{
			Type:          KeystoreTypeLairServer,
			ConnectionURL: params.KeystoreURL,
		},
		AdminInterfaces: []AdminInterface{{
			Driver: InterfaceDriver{
				Type:           DriverWebsocket,
				Port:           params.AdminPort,
				AllowedOrigins: params.AllowedOrigins,
			},
		}},
		DeviceSeedLairTag: tag,
	}, nil
}

// AdminPort returns the port of the first admin interface, or 0.
func (d Document) AdminPort() uint16 {
	if len(d.AdminInterfaces) == 0 {
		return 0
	}
	return d.AdminInterfaces[0].Driver.Port
}

// Marshal renders the document as YAML.
func (d Document) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshaling conductor config: %w", err)
	}
	return data, nil
}

// Digest identifies the rendered document, for logs and change
// detection.
func (d Document) Digest() (binhash.Digest, error) {
	data, err := d.Marshal()
	if err != nil {
		return binhash.Digest{}, err
	}
	return binhash.HashDomain(digestDomain, data), nil
}

// Parse decodes a document previously produced by Marshal.
func Parse(data []byte) (Document, error) {
	var document Document
	if err := yaml.Unmarshal(data, &document); err != nil {
		return Document{}, fmt.Errorf("parsing conductor config: %w", err)
	}
	return document, nil
}

// Read loads a document from path.
func Read(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading conductor config: %w", err)
	}
	return Parse(data)
}

// Write renders document into directory/FileName and returns the
// path. The file is written to a temporary name and renamed into
// place, so the conductor never sees a partial document.
func Write(directory string, document Document) (string, error) {
	data, err := document.Marshal()
	if err != nil {
		return "", err
	}
	path := filepath.Join(directory, FileName)
	temporary := path + ".tmp"
	if err := os.WriteFile(temporary, data, 0600); err != nil {
		return "", fmt.Errorf("writing conductor config: %w", err)
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return "", fmt.Errorf("installing conductor config: %w", err)
	}
	return path, nil
}
