// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/bureau-foundation/holoenv/cmd/holoenv/cli"
	"github.com/bureau-foundation/holoenv/lib/process"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	return rootCommand().Execute(args)
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "holoenv",
		Description: `holoenv: local conductor environments.

Start a key-store and conductor pair, install and enable apps, and make
signed zome calls against it.`,
		Subcommands: []*cli.Command{
			upCommand(),
			appsCommand(),
			installCommand(),
			enableCommand(),
			attachCommand(),
			callCommand(),
			versionCommand(),
		},
	}
}
