// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/holoenv/cmd/holoenv/cli"
	"github.com/bureau-foundation/holoenv/lib/keystore"
	"github.com/bureau-foundation/holoenv/lib/process"
	"github.com/bureau-foundation/holoenv/lib/secret"
	"github.com/bureau-foundation/holoenv/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		process.Fatal(err)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	var (
		root        string
		socketPath  string
		piped       bool
		workFactor  int
		logLevel    string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("holoenv-keystore", pflag.ContinueOnError)
	flagSet.StringVar(&root, "root", "", "directory holding the sealed key file (required)")
	flagSet.StringVar(&socketPath, "socket", "", "socket path (default: <root>/"+keystore.SocketName+")")
	flagSet.BoolVar(&piped, "piped", false, "read the passphrase from the first line of stdin")
	flagSet.IntVar(&workFactor, "work-factor", 0, "scrypt work factor for the key file (default: age's default)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("holoenv-keystore")
		return nil
	}
	if root == "" {
		return errors.New("--root is required")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving --root: %w", err)
	}

	level, err := cli.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger := cli.NewCommandLogger(level).With("component", "keystore")

	var passphrase *secret.Buffer
	if piped {
		passphrase, err = secret.ReadLine(stdin)
	} else {
		passphrase, err = cli.PromptPassphrase("Key-store passphrase: ")
	}
	if err != nil {
		return fmt.Errorf("reading passphrase: %w", err)
	}
	defer passphrase.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	logger.Info("starting key-store", "root", root, "version", version.Info())
	return keystore.Run(ctx, keystore.ServerConfig{
		Root:       root,
		SocketPath: socketPath,
		Passphrase: passphrase,
		WorkFactor: workFactor,
		Logger:     logger,
	}, stdout)
}
