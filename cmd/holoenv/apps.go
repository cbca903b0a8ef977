// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/holoenv/cmd/holoenv/cli"
	"github.com/bureau-foundation/holoenv/lib/appmanager"
	"github.com/bureau-foundation/holoenv/lib/conductorapi"
)

func appsCommand() *cli.Command {
	var (
		params connectionParams
		status string
	)
	return &cli.Command{
		Name:    "apps",
		Summary: "List installed apps",
		Usage:   "holoenv apps [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("apps", pflag.ContinueOnError)
			params.addFlags(flagSet, false)
			flagSet.StringVar(&status, "status", "", "only list apps in this status (enabled, disabled)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			var filter *conductorapi.AppStatusFilter
			switch conductorapi.AppStatus(status) {
			case "":
			case conductorapi.AppStatusEnabled, conductorapi.AppStatusDisabled:
				value := conductorapi.AppStatus(status)
				filter = &value
			default:
				return fmt.Errorf("invalid --status %q", status)
			}

			if err := params.resolve(); err != nil {
				return err
			}
			logger, err := params.logger("apps")
			if err != nil {
				return err
			}
			ctx, cancel := params.context()
			defer cancel()

			admin, err := params.connectAdmin(ctx, logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			infos, err := admin.ListApps(ctx, filter)
			if err != nil {
				return fmt.Errorf("listing apps: %w", err)
			}
			apps := summarizeApps(infos)
			if params.json {
				return cli.WriteJSON(os.Stdout, apps)
			}
			printApps(os.Stdout, apps)
			return nil
		},
	}
}

func installCommand() *cli.Command {
	var (
		params      connectionParams
		networkSeed string
	)
	return &cli.Command{
		Name:    "install",
		Summary: "Install and enable an app bundle under a new agent key",
		Usage:   "holoenv install [flags] <bundle-path>",
		Description: `Install an app bundle and enable it.

A new signing key is generated in the key-store for the app's agent and
the conductor chooses the installed app id.`,
		Examples: []cli.Example{{
			Description: "Install a bundle on a private network",
			Command:     "holoenv install --network-seed test-run-7 ./forum.happ",
		}},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("install", pflag.ContinueOnError)
			params.addFlags(flagSet, true)
			flagSet.StringVar(&networkSeed, "network-seed", "", "network seed (default: the bundle's own network)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("exactly one bundle path is required")
			}
			if err := params.resolve(); err != nil {
				return err
			}
			logger, err := params.logger("install")
			if err != nil {
				return err
			}
			keys, err := params.dialKeystore(os.LookupEnv)
			if err != nil {
				return err
			}
			ctx, cancel := params.context()
			defer cancel()

			admin, err := params.connectAdmin(ctx, logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			info, err := appmanager.New(admin, keys, logger).InstallAndEnableWithDefaultAgent(ctx, args[0], networkSeed)
			if err != nil {
				return err
			}
			return printApp(params.json, *info)
		},
	}
}

func enableCommand() *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:    "enable",
		Summary: "Enable an installed app",
		Usage:   "holoenv enable [flags] <installed-app-id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("enable", pflag.ContinueOnError)
			params.addFlags(flagSet, false)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("exactly one installed app id is required")
			}
			if err := params.resolve(); err != nil {
				return err
			}
			logger, err := params.logger("enable")
			if err != nil {
				return err
			}
			ctx, cancel := params.context()
			defer cancel()

			admin, err := params.connectAdmin(ctx, logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			info, err := admin.EnableApp(ctx, args[0])
			if err != nil {
				return fmt.Errorf("enabling %s: %w", args[0], err)
			}
			return printApp(params.json, *info)
		},
	}
}

func attachCommand() *cli.Command {
	var (
		params         connectionParams
		port           uint16
		allowedOrigins string
	)
	return &cli.Command{
		Name:    "attach",
		Summary: "Attach an app interface for an installed app",
		Usage:   "holoenv attach [flags] <installed-app-id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("attach", pflag.ContinueOnError)
			params.addFlags(flagSet, false)
			flagSet.Uint16Var(&port, "port", 0, "app interface port (0 lets the conductor choose)")
			flagSet.StringVar(&allowedOrigins, "allowed-origins", "*", `"*" or a comma-separated origin list`)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("exactly one installed app id is required")
			}
			origins, err := conductorapi.ParseAllowedOrigins(allowedOrigins)
			if err != nil {
				return fmt.Errorf("invalid --allowed-origins: %w", err)
			}
			if err := params.resolve(); err != nil {
				return err
			}
			logger, err := params.logger("attach")
			if err != nil {
				return err
			}
			ctx, cancel := params.context()
			defer cancel()

			admin, err := params.connectAdmin(ctx, logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			attached, err := admin.AttachAppInterface(ctx, port, origins, args[0])
			if err != nil {
				return fmt.Errorf("attaching app interface: %w", err)
			}
			if params.json {
				return cli.WriteJSON(os.Stdout, map[string]uint16{"port": attached})
			}
			fmt.Println(strconv.Itoa(int(attached)))
			return nil
		},
	}
}

func printApp(asJSON bool, info conductorapi.AppInfo) error {
	summary := summarizeApp(info)
	if asJSON {
		return cli.WriteJSON(os.Stdout, summary)
	}
	printApps(os.Stdout, []appSummary{summary})
	return nil
}
