// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package environment

import "fmt"

// State is a point in the environment's lifecycle.
type State int

const (
	Uninitialized State = iota
	KeyStoreStarting
	KeyStoreReady
	RuntimeStarting
	RuntimeReady
	TornDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case KeyStoreStarting:
		return "keystore-starting"
	case KeyStoreReady:
		return "keystore-ready"
	case RuntimeStarting:
		return "runtime-starting"
	case RuntimeReady:
		return "runtime-ready"
	case TornDown:
		return "torn-down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SetupError reports the stage at which Setup failed. Everything
// started before the failure has already been torn down.
type SetupError struct {
	Stage State
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("environment setup failed during %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }
