// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/holoenv/lib/binhash"
)

func TestInfoMarksDirtyBuilds(t *testing.T) {
	originalCommit, originalDirty := GitCommit, GitDirty
	defer func() { GitCommit, GitDirty = originalCommit, originalDirty }()

	GitCommit, GitDirty = "abc1234", "true"
	if info := Info(); !strings.Contains(info, "abc1234-dirty") {
		t.Errorf("Info() = %q, want the dirty commit", info)
	}
	GitDirty = "false"
	if info := Info(); strings.Contains(info, "dirty") {
		t.Errorf("Info() = %q, clean build marked dirty", info)
	}
}

func TestExecutableDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	digest, resolved, err := ExecutableDigest(path)
	if err != nil {
		t.Fatalf("ExecutableDigest: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved = %q, want %q", resolved, path)
	}
	want, err := binhash.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if digest != binhash.FormatDigest(want) {
		t.Errorf("digest = %s, want %s", digest, binhash.FormatDigest(want))
	}
}

func TestExecutableDigestMissing(t *testing.T) {
	if _, _, err := ExecutableDigest(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected an error for a missing executable")
	}
}

func TestSelfDigest(t *testing.T) {
	digest, path, err := SelfDigest()
	if err != nil {
		t.Fatalf("SelfDigest: %v", err)
	}
	if digest == "" || path == "" {
		t.Fatalf("SelfDigest = %q, %q", digest, path)
	}
}

func TestVerifyExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holochain")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	digest, _, err := ExecutableDigest(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := VerifyExecutable(path, digest); err != nil {
		t.Fatalf("VerifyExecutable with the matching digest: %v", err)
	}

	other := binhash.FormatDigest(binhash.HashDomain("test", []byte("some other build")))
	_, err = VerifyExecutable(path, other)
	var mismatch *DigestMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("error = %v, want *DigestMismatch", err)
	}
	if mismatch.Path != path || mismatch.Got.String() != digest {
		t.Errorf("mismatch = %+v", mismatch)
	}

	if _, err := VerifyExecutable(path, "not-hex"); err == nil || errors.As(err, &mismatch) {
		t.Errorf("malformed digest error = %v, want a parse error", err)
	}
}
