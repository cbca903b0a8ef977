// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// FileName is the state file's name inside the work directory.
const FileName = "holoenv-state.json"

// Process is one supervised process of a running environment.
type Process struct {
	Name string `json:"name"`
	Pid  int    `json:"pid"`
}

// State describes a running environment.
type State struct {
	AdminPort   uint16    `json:"admin_port"`
	KeystoreURL string    `json:"keystore_url"`
	WorkDir     string    `json:"work_dir"`
	LogDir      string    `json:"log_dir"`
	ConfigPath  string    `json:"config_path"`
	Processes   []Process `json:"processes"`
	StartedAt   time.Time `json:"started_at"`
}

// Path returns the state file path for workDir.
func Path(workDir string) string {
	return filepath.Join(workDir, FileName)
}

// Write atomically writes state to path with mode 0600. The parent
// directory must already exist.
func Write(path string, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling environment state: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary state file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming state file into place: %w", err)
	}

	if parentDirectory, err := os.Open(filepath.Dir(path)); err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// Read parses the state file at path. A missing file yields an error
// wrapping os.ErrNotExist.
func Read(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return state, nil
}

// Check reads the state file and reports whether every recorded
// process is still running. A missing file returns a zero State and
// false with no error; a stale file returns its State and false.
func Check(path string) (State, bool, error) {
	state, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	for _, process := range state.Processes {
		if !processAlive(process.Pid) {
			return state, false, nil
		}
	}
	return state, true, nil
}

// Clear removes the state file. Idempotent.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}

// processAlive probes pid with signal 0. EPERM means the process
// exists under another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
