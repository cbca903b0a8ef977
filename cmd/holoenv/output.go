// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/bureau-foundation/holoenv/lib/conductorapi"
)

// appSummary is the printable form of an installed app.
type appSummary struct {
	InstalledAppID string            `json:"installed_app_id"`
	Status         string            `json:"status"`
	Agent          string            `json:"agent"`
	Cells          map[string]string `json:"cells"`
}

func summarizeApp(info conductorapi.AppInfo) appSummary {
	summary := appSummary{
		InstalledAppID: info.InstalledAppID,
		Status:         string(info.Status),
		Agent:          info.AgentPubKey.String(),
		Cells:          make(map[string]string, len(info.CellInfo)),
	}
	for role := range info.CellInfo {
		if cell, ok := info.CellForRole(role); ok {
			summary.Cells[role] = cell.String()
		}
	}
	return summary
}

func summarizeApps(infos []conductorapi.AppInfo) []appSummary {
	summaries := make([]appSummary, 0, len(infos))
	for _, info := range infos {
		summaries = append(summaries, summarizeApp(info))
	}
	return summaries
}

func printApps(w io.Writer, apps []appSummary) {
	if len(apps) == 0 {
		fmt.Fprintln(w, "no apps installed")
		return
	}
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "APP\tSTATUS\tAGENT\tROLES")
	for _, app := range apps {
		roles := make([]string, 0, len(app.Cells))
		for role := range app.Cells {
			roles = append(roles, role)
		}
		slices.Sort(roles)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", app.InstalledAppID, app.Status, app.Agent, strings.Join(roles, ","))
	}
	tw.Flush()
}
