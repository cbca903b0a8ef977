// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/holoenv/lib/keystore"
	"github.com/bureau-foundation/holoenv/lib/testutil"
)

func TestRunAnnouncesAndStopsOnSIGTERM(t *testing.T) {
	root := t.TempDir()
	socketPath := filepath.Join(testutil.SocketDir(t), keystore.SocketName)
	reader, writer := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- run([]string{"--root", root, "--socket", socketPath, "--piped", "--work-factor", "10", "--log-level", "error"},
			strings.NewReader("correct horse\n"), writer)
		writer.Close()
	}()

	lines := bufio.NewScanner(reader)
	var announced []string
	for len(announced) < 2 && lines.Scan() {
		announced = append(announced, lines.Text())
	}
	if len(announced) != 2 {
		t.Fatalf("announcement = %q, want two lines", announced)
	}
	if want := keystore.ConnectionURLPrefix + keystore.ConnectionURL(socketPath); announced[0] != want {
		t.Errorf("first line = %q, want %q", announced[0], want)
	}
	if announced[1] != keystore.ReadyMarker {
		t.Errorf("second line = %q, want %q", announced[1], keystore.ReadyMarker)
	}

	if err := unix.Kill(os.Getpid(), unix.SIGTERM); err != nil {
		t.Fatalf("sending SIGTERM: %v", err)
	}
	if err := testutil.RequireReceive(t, done, 5*time.Second, "key-store exit"); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunRequiresRoot(t *testing.T) {
	err := run([]string{"--piped"}, strings.NewReader("passphrase\n"), io.Discard)
	if err == nil || !strings.Contains(err.Error(), "--root is required") {
		t.Fatalf("run error = %v, want missing --root", err)
	}
}

func TestRunRejectsEmptyPipedPassphrase(t *testing.T) {
	err := run([]string{"--root", t.TempDir(), "--piped"}, strings.NewReader("\n"), io.Discard)
	if err == nil || !strings.Contains(err.Error(), "reading passphrase") {
		t.Fatalf("run error = %v, want passphrase error", err)
	}
}

func TestRunVersion(t *testing.T) {
	if err := run([]string{"--version"}, strings.NewReader(""), io.Discard); err != nil {
		t.Fatalf("--version: %v", err)
	}
}
