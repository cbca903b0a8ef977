// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envstate

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func sampleState() State {
	return State{
		AdminPort:   4444,
		KeystoreURL: "unix:///tmp/holoenv/keystore/keystore.sock",
		WorkDir:     "/tmp/holoenv",
		LogDir:      "/tmp/holoenv-logs",
		ConfigPath:  "/tmp/holoenv/conductor-config.yaml",
		Processes:   []Process{{Name: "holochain", Pid: os.Getpid()}},
		StartedAt:   time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
	}
}

func TestWriteRead(t *testing.T) {
	path := Path(t.TempDir())
	state := sampleState()
	if err := Write(path, state); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.AdminPort != state.AdminPort || got.KeystoreURL != state.KeystoreURL || got.ConfigPath != state.ConfigPath {
		t.Errorf("Read = %+v, want %+v", got, state)
	}
	if len(got.Processes) != 1 || got.Processes[0] != state.Processes[0] {
		t.Errorf("Processes = %+v, want %+v", got.Processes, state.Processes)
	}
	if !got.StartedAt.Equal(state.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, state.StartedAt)
	}
}

func TestWriteFilePermissionsAndNoTemporaryFile(t *testing.T) {
	directory := t.TempDir()
	path := Path(directory)
	if err := Write(path, sampleState()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %o, want 600", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestWriteParentDirectoryMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", FileName)
	if err := Write(path, sampleState()); err == nil {
		t.Fatal("Write into a missing directory should fail")
	}
}

func TestReadCorrupt(t *testing.T) {
	path := Path(t.TempDir())
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("Read of corrupt JSON should fail")
	}
	if _, _, err := Check(path); err == nil {
		t.Fatal("Check of corrupt JSON should fail")
	}
}

func TestCheckLive(t *testing.T) {
	path := Path(t.TempDir())
	if err := Write(path, sampleState()); err != nil {
		t.Fatal(err)
	}
	state, live, err := Check(path)
	if err != nil || !live {
		t.Fatalf("Check = %v, %v, want live", live, err)
	}
	if state.AdminPort != 4444 {
		t.Errorf("AdminPort = %d", state.AdminPort)
	}
}

func TestCheckStale(t *testing.T) {
	command := exec.Command("/bin/sh", "-c", "exit 0")
	if err := command.Run(); err != nil {
		t.Fatal(err)
	}
	exitedPid := command.Process.Pid

	path := Path(t.TempDir())
	state := sampleState()
	state.Processes = append(state.Processes, Process{Name: "keystore", Pid: exitedPid})
	if err := Write(path, state); err != nil {
		t.Fatal(err)
	}
	got, live, err := Check(path)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if live {
		t.Fatal("state with an exited process reported live")
	}
	if got.KeystoreURL != state.KeystoreURL {
		t.Errorf("stale state not returned: %+v", got)
	}
}

func TestCheckMissing(t *testing.T) {
	state, live, err := Check(Path(t.TempDir()))
	if err != nil || live || state.AdminPort != 0 {
		t.Fatalf("Check(missing) = %+v, %v, %v", state, live, err)
	}
}

func TestClearIdempotent(t *testing.T) {
	path := Path(t.TempDir())
	if err := Write(path, sampleState()); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := Clear(path); err != nil {
			t.Fatalf("Clear: %v", err)
		}
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("state file still present: %v", err)
	}
}
