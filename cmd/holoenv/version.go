// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/holoenv/cmd/holoenv/cli"
	"github.com/bureau-foundation/holoenv/lib/config"
	"github.com/bureau-foundation/holoenv/lib/version"
)

type versionParams struct {
	conductorBinary string
	keystoreBinary  string
	verifyConductor string
	verifyKeystore  string
}

func versionCommand() *cli.Command {
	var params versionParams
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information and binary digests",
		Description: `Print holoenv's build information and the BLAKE3 digests of the
holoenv, conductor and key-store executables.

With --verify-conductor or --verify-keystore the command fails unless
the executable's digest equals the given one.`,
		Flags: func() *pflag.FlagSet {
			defaults := config.Default()
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flagSet.StringVar(&params.conductorBinary, "conductor-binary", defaults.ConductorBinary, "conductor executable to identify")
			flagSet.StringVar(&params.keystoreBinary, "keystore-binary", defaults.KeystoreBinary, "key-store executable to identify")
			flagSet.StringVar(&params.verifyConductor, "verify-conductor", "", "expected hex digest of the conductor executable")
			flagSet.StringVar(&params.verifyKeystore, "verify-keystore", "", "expected hex digest of the key-store executable")
			return flagSet
		},
		Run: func(args []string) error {
			return runVersion(os.Stdout, params)
		},
	}
}

func runVersion(w io.Writer, params versionParams) error {
	fmt.Fprintf(w, "holoenv %s\n\n", version.Full())

	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "BINARY\tDIGEST\tPATH")
	if digest, path, err := version.SelfDigest(); err == nil {
		fmt.Fprintf(tw, "holoenv\t%s\t%s\n", digest, path)
	}
	for _, name := range []string{params.conductorBinary, params.keystoreBinary} {
		digest, path, err := version.ExecutableDigest(name)
		if err != nil {
			fmt.Fprintf(tw, "%s\t-\tnot found\n", name)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, digest, path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	var failures []error
	for _, check := range []struct{ binary, expected string }{
		{params.conductorBinary, params.verifyConductor},
		{params.keystoreBinary, params.verifyKeystore},
	} {
		if check.expected == "" {
			continue
		}
		path, err := version.VerifyExecutable(check.binary, check.expected)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		fmt.Fprintf(w, "verified %s\n", path)
	}
	return errors.Join(failures...)
}
