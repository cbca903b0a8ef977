// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logarchive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLogs(t *testing.T) string {
	t.Helper()
	directory := t.TempDir()
	files := map[string]string{
		"holochain.txt":        strings.Repeat("Conductor successfully initialized\n", 200),
		"keystore.txt":         "Keystore ready.\n",
		"nested/extra.txt":     "nested log\n",
		"nested/empty-log.txt": "",
	}
	for name, content := range files {
		path := filepath.Join(directory, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return directory
}

func TestArchiveRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatZstd, FormatLZ4} {
		t.Run(string(format), func(t *testing.T) {
			source := writeLogs(t)
			destination := filepath.Join(t.TempDir(), "logs"+format.Extension())

			result, err := Archive(source, destination, format)
			if err != nil {
				t.Fatalf("Archive: %v", err)
			}
			if result.Files != 4 {
				t.Errorf("Files = %d, want 4", result.Files)
			}
			info, err := os.Stat(destination)
			if err != nil {
				t.Fatal(err)
			}
			if info.Size() >= result.Bytes {
				t.Errorf("archive (%d bytes) is not smaller than its input (%d bytes)", info.Size(), result.Bytes)
			}

			extracted := t.TempDir()
			if err := Extract(destination, extracted, format); err != nil {
				t.Fatalf("Extract: %v", err)
			}
			content, err := os.ReadFile(filepath.Join(extracted, "nested", "extra.txt"))
			if err != nil {
				t.Fatal(err)
			}
			if string(content) != "nested log\n" {
				t.Errorf("nested/extra.txt = %q", content)
			}
		})
	}
}

func TestArchiveMissingSourceRemovesDestination(t *testing.T) {
	destination := filepath.Join(t.TempDir(), "logs.tar.zst")
	if _, err := Archive(filepath.Join(t.TempDir(), "missing"), destination, FormatZstd); err == nil {
		t.Fatal("expected an error for a missing source directory")
	}
	if _, err := os.Stat(destination); !os.IsNotExist(err) {
		t.Error("partial archive left behind")
	}
}

func TestParseFormat(t *testing.T) {
	if format, err := ParseFormat("lz4"); err != nil || format != FormatLZ4 {
		t.Errorf("ParseFormat(lz4) = %q, %v", format, err)
	}
	if _, err := ParseFormat("gzip"); err == nil {
		t.Error("expected error for gzip")
	}
}
