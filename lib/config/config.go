// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/holoenv/lib/conductorapi"
	"github.com/bureau-foundation/holoenv/lib/keystore"
	"github.com/bureau-foundation/holoenv/lib/secret"
)

const (
	// PassphraseEnvironmentVariable supplies the passphrase when the
	// configuration does not.
	PassphraseEnvironmentVariable = "HOLOCHAIN_DEFAULT_PASSWORD"

	// DefaultPassphrase is used when neither the configuration nor the
	// environment supplies one. It protects throwaway test keys only.
	DefaultPassphrase = "super-secret"

	// DefaultAdminPort is the conductor's admin websocket port.
	DefaultAdminPort = 4444
)

// Log archive formats.
const (
	ArchiveNone = ""
	ArchiveZstd = "zstd"
	ArchiveLZ4  = "lz4"
)

// Config describes one environment. Setup takes it by value; it does
// not change after validation.
type Config struct {
	// WorkDir holds the key-store, the conductor config document and
	// the conductor's data root. Empty selects a fresh temporary
	// directory.
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// LogDir receives the child processes' logs. Empty selects a fresh
	// temporary directory.
	LogDir string `yaml:"log_dir" json:"log_dir"`

	// IdentitySeed is an optional base64-encoded 32-byte seed imported
	// into the key-store as the conductor's device seed.
	IdentitySeed string `yaml:"identity_seed,omitempty" json:"identity_seed,omitempty"`

	// KeystoreFallback is the connection URL of an already-running
	// key-store. When set no key-store process is started.
	KeystoreFallback string `yaml:"keystore_fallback,omitempty" json:"keystore_fallback,omitempty"`

	AdminPort uint16 `yaml:"admin_port" json:"admin_port"`

	// AllowedOrigins is "*" or a comma-separated list of origins the
	// admin interface accepts.
	AllowedOrigins string `yaml:"allowed_origins" json:"allowed_origins"`

	// Passphrase unlocks the key-store and the conductor. Prefer
	// leaving it out of files and resolving it with ResolvePassphrase.
	Passphrase string `yaml:"passphrase,omitempty" json:"passphrase,omitempty"`

	// ConductorBinary and KeystoreBinary are paths or names resolved
	// against PATH.
	ConductorBinary string `yaml:"conductor_binary" json:"conductor_binary"`
	KeystoreBinary  string `yaml:"keystore_binary" json:"keystore_binary"`

	Readiness ReadinessConfig `yaml:"readiness" json:"readiness"`

	// ArchiveLogs compresses the log directory at teardown: "", "zstd"
	// or "lz4".
	ArchiveLogs string `yaml:"archive_logs,omitempty" json:"archive_logs,omitempty"`
}

// ReadinessConfig bounds how long setup waits for each process.
type ReadinessConfig struct {
	// MaxAttempts and Interval bound the conductor log poll.
	MaxAttempts int      `yaml:"max_attempts" json:"max_attempts"`
	Interval    Duration `yaml:"interval" json:"interval"`

	// StreamTimeout bounds each wait on a child's stdout. It has no
	// default and must be set.
	StreamTimeout Duration `yaml:"stream_timeout" json:"stream_timeout"`
}

// Duration is a time.Duration written as a Go duration string ("1s",
// "250ms") in both YAML and JSON.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the base configuration that a file is merged into.
// Readiness.StreamTimeout is deliberately zero.
func Default() Config {
	return Config{
		AdminPort:       DefaultAdminPort,
		AllowedOrigins:  "*",
		ConductorBinary: "holochain",
		KeystoreBinary:  "holoenv-keystore",
		Readiness: ReadinessConfig{
			MaxAttempts: 30,
			Interval:    Duration(time.Second),
		},
	}
}

// Load reads the configuration file at path over Default and expands
// variables in its path fields. It does not validate.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	switch extension := strings.ToLower(filepath.Ext(path)); extension {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml, .json or .jsonc)", path, extension)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.WorkDir = expandVars(c.WorkDir, vars)
	vars["HOLOENV_WORK_DIR"] = c.WorkDir
	c.LogDir = expandVars(c.LogDir, vars)
	c.ConductorBinary = expandVars(c.ConductorBinary, vars)
	c.KeystoreBinary = expandVars(c.KeystoreBinary, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// ResolvePassphrase fills Passphrase when the configuration left it
// empty: first from PassphraseEnvironmentVariable via lookup, then
// DefaultPassphrase. It reports where the value came from. Pass
// os.LookupEnv as lookup.
func (c *Config) ResolvePassphrase(lookup func(string) (string, bool)) string {
	if c.Passphrase != "" {
		return "config"
	}
	if lookup != nil {
		if value, ok := lookup(PassphraseEnvironmentVariable); ok && value != "" {
			c.Passphrase = value
			return PassphraseEnvironmentVariable
		}
	}
	c.Passphrase = DefaultPassphrase
	return "default"
}

// Validate checks the configuration for errors. Every problem is
// reported, not just the first.
func (c Config) Validate() error {
	var errs []error

	for _, field := range []struct{ name, value string }{
		{"work_dir", c.WorkDir},
		{"log_dir", c.LogDir},
	} {
		if field.value != "" && !filepath.IsAbs(field.value) {
			errs = append(errs, fmt.Errorf("%s %q must be absolute", field.name, field.value))
		}
	}

	if c.AdminPort == 0 {
		errs = append(errs, errors.New("admin_port is required"))
	}
	if _, err := conductorapi.ParseAllowedOrigins(c.AllowedOrigins); err != nil {
		errs = append(errs, fmt.Errorf("allowed_origins: %w", err))
	}
	if c.Passphrase == "" {
		errs = append(errs, errors.New("passphrase is unresolved"))
	}
	if c.ConductorBinary == "" {
		errs = append(errs, errors.New("conductor_binary is required"))
	}
	if c.KeystoreBinary == "" && c.KeystoreFallback == "" {
		errs = append(errs, errors.New("keystore_binary is required unless keystore_fallback is set"))
	}
	if c.KeystoreFallback != "" {
		if _, err := keystore.ParseConnectionURL(c.KeystoreFallback); err != nil {
			errs = append(errs, fmt.Errorf("keystore_fallback: %w", err))
		}
	}
	if c.IdentitySeed != "" {
		if seed, err := c.identitySeedBytes(); err != nil {
			errs = append(errs, err)
		} else {
			secret.Zero(seed)
		}
	}

	if c.Readiness.MaxAttempts <= 0 {
		errs = append(errs, errors.New("readiness.max_attempts must be positive"))
	}
	if c.Readiness.Interval <= 0 {
		errs = append(errs, errors.New("readiness.interval must be positive"))
	}
	if c.Readiness.StreamTimeout <= 0 {
		errs = append(errs, errors.New("readiness.stream_timeout is required"))
	}

	switch c.ArchiveLogs {
	case ArchiveNone, ArchiveZstd, ArchiveLZ4:
	default:
		errs = append(errs, fmt.Errorf("archive_logs must be one of: zstd, lz4 (got %q)", c.ArchiveLogs))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Origins returns the parsed AllowedOrigins. Call after Validate.
func (c Config) Origins() conductorapi.AllowedOrigins {
	origins, _ := conductorapi.ParseAllowedOrigins(c.AllowedOrigins)
	return origins
}

// IdentitySeedBuffer decodes IdentitySeed into a secret buffer. It
// returns nil, nil when no seed is configured.
func (c Config) IdentitySeedBuffer() (*secret.Buffer, error) {
	if c.IdentitySeed == "" {
		return nil, nil
	}
	seed, err := c.identitySeedBytes()
	if err != nil {
		return nil, err
	}
	return secret.NewFromBytes(seed)
}

func (c Config) identitySeedBytes() ([]byte, error) {
	seed, err := base64.StdEncoding.DecodeString(c.IdentitySeed)
	if err != nil {
		return nil, fmt.Errorf("identity_seed is not valid base64: %w", err)
	}
	if len(seed) != keystore.SeedSize {
		secret.Zero(seed)
		return nil, fmt.Errorf("identity_seed decodes to %d bytes, want %d", len(seed), keystore.SeedSize)
	}
	return seed, nil
}
