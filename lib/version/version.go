// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/bureau-foundation/holoenv/lib/binhash"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Print writes "name Info()" to stdout.
func Print(name string) {
	fmt.Printf("%s %s\n", name, Info())
}

// ExecutableDigest resolves nameOrPath the way exec.Command would and
// returns the hex BLAKE3 digest of the file and its resolved path.
func ExecutableDigest(nameOrPath string) (digest string, path string, err error) {
	path, err = exec.LookPath(nameOrPath)
	if err != nil {
		return "", "", fmt.Errorf("resolving %s: %w", nameOrPath, err)
	}
	fileDigest, err := binhash.HashFile(path)
	if err != nil {
		return "", "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return binhash.FormatDigest(fileDigest), path, nil
}

// SelfDigest returns the digest and path of the running binary. On
// Linux the path comes from /proc/self/exe, which still names the
// original file if it has since been replaced on disk.
func SelfDigest() (digest string, path string, err error) {
	executable, err := os.Executable()
	if err != nil {
		return "", "", fmt.Errorf("resolving own executable path: %w", err)
	}
	return ExecutableDigest(executable)
}

// DigestMismatch reports an executable whose content differs from the
// expected digest.
type DigestMismatch struct {
	Path string
	Want binhash.Digest
	Got  binhash.Digest
}

func (e *DigestMismatch) Error() string {
	return fmt.Sprintf("%s has digest %s, want %s", e.Path, e.Got, e.Want)
}

// VerifyExecutable resolves nameOrPath and checks its BLAKE3 digest
// against expected, a hex digest as printed by ExecutableDigest. It
// returns the resolved path.
func VerifyExecutable(nameOrPath, expected string) (string, error) {
	want, err := binhash.ParseDigest(expected)
	if err != nil {
		return "", fmt.Errorf("expected digest for %s: %w", nameOrPath, err)
	}
	path, err := exec.LookPath(nameOrPath)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", nameOrPath, err)
	}
	got, err := binhash.HashFile(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	if got != want {
		return path, &DigestMismatch{Path: path, Want: want, Got: got}
	}
	return path, nil
}
