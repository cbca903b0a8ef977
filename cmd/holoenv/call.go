// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/holoenv/cmd/holoenv/cli"
	"github.com/bureau-foundation/holoenv/lib/appclient"
	"github.com/bureau-foundation/holoenv/lib/codec"
	"github.com/bureau-foundation/holoenv/lib/conductorapi"
)

func callCommand() *cli.Command {
	var (
		params  connectionParams
		appPort uint16
		role    string
	)
	return &cli.Command{
		Name:    "call",
		Summary: "Make a signed zome call",
		Usage:   "holoenv call [flags] <installed-app-id> <zome> <function> [payload-json]",
		Description: `Call a zome function in an installed app.

The call is signed by the app's agent key in the key-store. The payload
is given as JSON and the result is printed as JSON. Without --app-port
a new app interface is attached for the call.`,
		Examples: []cli.Example{{
			Description: "Call the echo function of the demo zome",
			Command:     `holoenv call my-app-1 demo echo '"hello"'`,
		}},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("call", pflag.ContinueOnError)
			params.addFlags(flagSet, true)
			flagSet.Uint16Var(&appPort, "app-port", 0, "attached app interface port (0 attaches a new one)")
			flagSet.StringVar(&role, "role", "", "role name of the target cell (required when the app has several)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) < 3 || len(args) > 4 {
				return errors.New("usage: holoenv call <installed-app-id> <zome> <function> [payload-json]")
			}
			installedAppID, zome, function := args[0], args[1], args[2]
			var payload any
			if len(args) == 4 {
				parsed, err := parsePayload(args[3])
				if err != nil {
					return err
				}
				payload = parsed
			}

			if err := params.resolve(); err != nil {
				return err
			}
			logger, err := params.logger("call")
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

			apps, err := admin.ListApps(ctx, nil)
			if err != nil {
				return fmt.Errorf("listing apps: %w", err)
			}
			index := slices.IndexFunc(apps, func(info conductorapi.AppInfo) bool {
				return info.InstalledAppID == installedAppID
			})
			if index < 0 {
				return fmt.Errorf("no installed app %q", installedAppID)
			}
			cellID, err := selectCell(apps[index], role)
			if err != nil {
				return err
			}

			if appPort == 0 {
				appPort, err = admin.AttachAppInterface(ctx, 0, conductorapi.AnyOrigin(), installedAppID)
				if err != nil {
					return fmt.Errorf("attaching app interface: %w", err)
				}
				logger.Info("attached app interface", "port", appPort)
			}

			app, err := appclient.Connect(ctx, appPort, keys, appclient.Options{Logger: logger})
			if err != nil {
				return fmt.Errorf("connecting to app port %d: %w", appPort, err)
			}
			defer app.Close()

			var result codec.RawMessage
			if err := app.CallZome(ctx, cellID, zome, function, payload, &result); err != nil {
				return fmt.Errorf("calling %s/%s: %w", zome, function, err)
			}
			return printZomeResult(os.Stdout, result)
		},
	}
}

// printZomeResult writes result as JSON. Values JSON cannot carry
// (non-text map keys, NaN, tags it cannot represent) are printed in
// CBOR diagnostic notation instead.
func printZomeResult(w io.Writer, result codec.RawMessage) error {
	var value any
	if err := codec.Unmarshal(result, &value); err == nil {
		if err := cli.WriteJSON(w, value); err == nil {
			return nil
		}
	}
	notation, err := codec.Diagnose(result)
	if err != nil {
		return fmt.Errorf("rendering zome result: %w", err)
	}
	_, err = fmt.Fprintln(w, notation)
	return err
}

// selectCell picks the cell for role, or the only role's cell when
// role is empty.
func selectCell(info conductorapi.AppInfo, role string) (conductorapi.CellID, error) {
	if role == "" {
		if len(info.CellInfo) != 1 {
			roles := make([]string, 0, len(info.CellInfo))
			for name := range info.CellInfo {
				roles = append(roles, name)
			}
			slices.Sort(roles)
			return conductorapi.CellID{}, fmt.Errorf("app %s has roles %v: --role is required", info.InstalledAppID, roles)
		}
		for name := range info.CellInfo {
			role = name
		}
	}
	cellID, ok := info.CellForRole(role)
	if !ok {
		return conductorapi.CellID{}, fmt.Errorf("app %s has no cell for role %q", info.InstalledAppID, role)
	}
	return cellID, nil
}

// parsePayload decodes a JSON payload argument. Integral numbers become
// int64 so they encode as CBOR integers rather than floats.
func parsePayload(text string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return integralNumbers(value), nil
}

func integralNumbers(value any) any {
	switch typed := value.(type) {
	case float64:
		if typed == math.Trunc(typed) && math.Abs(typed) < 1<<53 {
			return int64(typed)
		}
		return typed
	case []any:
		for i := range typed {
			typed[i] = integralNumbers(typed[i])
		}
		return typed
	case map[string]any:
		for key := range typed {
			typed[key] = integralNumbers(typed[key])
		}
		return typed
	default:
		return value
	}
}
