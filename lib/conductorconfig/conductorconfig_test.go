// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductorconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/holoenv/lib/conductorapi"
)

func testParams(t *testing.T) Params {
	t.Helper()
	return Params{
		WorkDir:        "/tmp/holoenv-work",
		KeystoreURL:    "unix:///tmp/holoenv-work/keystore/keystore.sock",
		AdminPort:      4444,
		AllowedOrigins: conductorapi.AnyOrigin(),
	}
}

func TestGenerate(t *testing.T) {
	document, err := Generate(testParams(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if document.DataRootPath != "/tmp/holoenv-work/data" {
		t.Errorf("DataRootPath = %q", document.DataRootPath)
	}
	if document.Keystore.Type != KeystoreTypeLairServer {
		t.Errorf("Keystore.Type = %q", document.Keystore.Type)
	}
	if document.AdminPort() != 4444 {
		t.Errorf("AdminPort = %d", document.AdminPort())
	}
	if document.DeviceSeedLairTag != DeviceSeedTag {
		t.Errorf("DeviceSeedLairTag = %q", document.DeviceSeedLairTag)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	first, err := Generate(testParams(t))
	if err != nil {
		t.Fatal(err)
	}
	second, err := Generate(testParams(t))
	if err != nil {
		t.Fatal(err)
	}
	firstDigest, err := first.Digest()
	if err != nil {
		t.Fatal(err)
	}
	secondDigest, err := second.Digest()
	if err != nil {
		t.Fatal(err)
	}
	if firstDigest != secondDigest {
		t.Fatal("identical params produced different documents")
	}

	changed := testParams(t)
	changed.AdminPort = 5555
	third, err := Generate(changed)
	if err != nil {
		t.Fatal(err)
	}
	thirdDigest, err := third.Digest()
	if err != nil {
		t.Fatal(err)
	}
	if thirdDigest == firstDigest {
		t.Fatal("different admin ports produced the same digest")
	}
}

func TestGenerateRejectsMissingInputs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		want   string
	}{
		{"no work dir", func(p *Params) { p.WorkDir = "" }, "work directory is required"},
		{"relative work dir", func(p *Params) { p.WorkDir = "work" }, "must be absolute"},
		{"no keystore url", func(p *Params) { p.KeystoreURL = "" }, "connection URL is required"},
		{"tcp keystore url", func(p *Params) { p.KeystoreURL = "tcp://127.0.0.1:1" }, "not a unix:// URL"},
		{"no admin port", func(p *Params) { p.AdminPort = 0 }, "admin port is required"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			params := testParams(t)
			test.mutate(&params)
			_, err := Generate(params)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Fatalf("error = %v, want it to mention %q", err, test.want)
			}
		})
	}
}

func TestMarshalFieldNames(t *testing.T) {
	params := testParams(t)
	params.AllowedOrigins = conductorapi.Origins("http://localhost:8888", "http://localhost:9999")
	document, err := Generate(params)
	if err != nil {
		t.Fatal(err)
	}
	data, err := document.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		t.Fatalf("rendered YAML does not parse: %v", err)
	}
	keystore, _ := generic["keystore"].(map[string]any)
	if keystore["type"] != "lair_server" || keystore["connection_url"] != params.KeystoreURL {
		t.Errorf("keystore = %v", keystore)
	}
	interfaces, _ := generic["admin_interfaces"].([]any)
	if len(interfaces) != 1 {
		t.Fatalf("admin_interfaces = %v", generic["admin_interfaces"])
	}
	driver := interfaces[0].(map[string]any)["driver"].(map[string]any)
	if driver["type"] != "websocket" || driver["port"] != 4444 {
		t.Errorf("driver = %v", driver)
	}
	if driver["allowed_origins"] != "http://localhost:8888,http://localhost:9999" {
		t.Errorf("allowed_origins = %v", driver["allowed_origins"])
	}
	if generic["device_seed_lair_tag"] != "holochain-device-seed" {
		t.Errorf("device_seed_lair_tag = %v", generic["device_seed_lair_tag"])
	}
}

func TestWriteAndRead(t *testing.T) {
	directory := t.TempDir()
	document, err := Generate(testParams(t))
	if err != nil {
		t.Fatal(err)
	}
	path, err := Write(directory, document)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if path != filepath.Join(directory, FileName) {
		t.Errorf("path = %q", path)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !loaded.AdminInterfaces[0].Driver.AllowedOrigins.IsAny() {
		t.Error("allowed origins did not survive the round trip as any")
	}
	if loaded.Keystore != document.Keystore || loaded.DataRootPath != document.DataRootPath {
		t.Errorf("loaded = %+v, want %+v", loaded, document)
	}
}
