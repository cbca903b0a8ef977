// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/holoenv/cmd/holoenv/cli"
	"github.com/bureau-foundation/holoenv/lib/adminclient"
	"github.com/bureau-foundation/holoenv/lib/config"
	"github.com/bureau-foundation/holoenv/lib/envstate"
	"github.com/bureau-foundation/holoenv/lib/keystore"
)

// KeystoreURLEnvironmentVariable supplies --keystore-url when the flag
// is not given. "holoenv up" prints the value to export.
const KeystoreURLEnvironmentVariable = "HOLOENV_KEYSTORE_URL"

// connectionParams are the flags shared by commands that talk to a
// running conductor.
type connectionParams struct {
	adminPort   uint16
	keystoreURL string
	workDir     string
	timeout     time.Duration
	logLevel    string
	json        bool

	flagSet *pflag.FlagSet
}

func (p *connectionParams) addFlags(flagSet *pflag.FlagSet, withKeystore bool) {
	p.flagSet = flagSet
	flagSet.StringVar(&p.workDir, "work-dir", "", "find the admin port and key-store of the environment running in this work directory")
	flagSet.Uint16Var(&p.adminPort, "admin-port", config.DefaultAdminPort, "conductor admin interface port")
	if withKeystore {
		flagSet.StringVar(&p.keystoreURL, "keystore-url", "", "key-store connection URL (default $"+KeystoreURLEnvironmentVariable+")")
	}
	flagSet.DurationVar(&p.timeout, "timeout", 30*time.Second, "overall deadline for the command")
	flagSet.StringVar(&p.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flagSet.BoolVar(&p.json, "json", false, "output as JSON")
}

// resolve fills the admin port and key-store URL from the envstate
// record in --work-dir, for whichever of the two was not given.
func (p *connectionParams) resolve() error {
	if p.workDir == "" {
		return nil
	}
	state, live, err := envstate.Check(envstate.Path(p.workDir))
	if err != nil {
		return fmt.Errorf("reading environment state: %w", err)
	}
	if state.AdminPort == 0 {
		return fmt.Errorf("no environment recorded in %s", p.workDir)
	}
	if !live {
		return fmt.Errorf("environment recorded in %s is no longer running", p.workDir)
	}
	if p.flagSet == nil || !p.flagSet.Changed("admin-port") {
		p.adminPort = state.AdminPort
	}
	if p.keystoreURL == "" {
		p.keystoreURL = state.KeystoreURL
	}
	return nil
}

func (p *connectionParams) logger(command string) (*slog.Logger, error) {
	level, err := cli.ParseLevel(p.logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	return cli.NewCommandLogger(level).With("command", command), nil
}

// context returns a context cancelled by SIGINT, SIGTERM, or the
// --timeout deadline.
func (p *connectionParams) context() (context.Context, context.CancelFunc) {
	signalContext, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	ctx, cancel := context.WithTimeout(signalContext, p.timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func (p *connectionParams) connectAdmin(ctx context.Context, logger *slog.Logger) (*adminclient.Client, error) {
	admin, err := adminclient.Connect(ctx, p.adminPort, adminclient.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connecting to admin port %d: %w", p.adminPort, err)
	}
	return admin, nil
}

func (p *connectionParams) dialKeystore(lookup func(string) (string, bool)) (*keystore.Client, error) {
	connectionURL := p.keystoreURL
	if connectionURL == "" && lookup != nil {
		connectionURL, _ = lookup(KeystoreURLEnvironmentVariable)
	}
	if connectionURL == "" {
		return nil, fmt.Errorf("--keystore-url or $%s is required", KeystoreURLEnvironmentVariable)
	}
	client, err := keystore.Dial(connectionURL)
	if err != nil {
		return nil, fmt.Errorf("dialing key-store: %w", err)
	}
	return client, nil
}
