// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the settings for one holoenv
// environment: where it keeps its files, which executables it runs,
// how long it waits for them, and the passphrase that unlocks the
// key-store and the conductor.
//
// Configuration comes from a single file, YAML (.yaml, .yml) or JSON
// with comments (.json, .jsonc), passed explicitly by path. There is
// no discovery. Command-line flags may override individual fields
// after loading. ${VAR} and ${VAR:-default} are expanded in path
// fields.
//
// The passphrase is resolved once, at the command-line boundary, by
// [Config.ResolvePassphrase]. Nothing below that boundary reads the
// process environment.
package config
