// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package appmanager installs and enables apps on a conductor in one
// step, with a freshly generated agent.
package appmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/holoenv/lib/conductorapi"
	"github.com/bureau-foundation/holoenv/lib/holohash"
)

// Admin is the part of the admin client the manager drives.
// *adminclient.Client implements it.
type Admin interface {
	InstallApp(ctx context.Context, payload conductorapi.InstallAppPayload) (*conductorapi.AppInfo, error)
	EnableApp(ctx context.Context, installedAppID string) (*conductorapi.AppInfo, error)
}

// KeyGenerator creates agent keys. *keystore.Client implements it.
type KeyGenerator interface {
	NewSignKeypair(ctx context.Context, tag string) (holohash.AgentPubKey, error)
}

// Manager installs apps through an admin connection.
type Manager struct {
	admin  Admin
	keys   KeyGenerator
	logger *slog.Logger
}

// New returns a Manager. Agents are generated in keys, which must be
// the key-store the conductor signs with.
func New(admin Admin, keys KeyGenerator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{admin: admin, keys: keys, logger: logger}
}

// InstallAndEnableWithDefaultAgent generates a new agent, installs the
// bundle at bundlePath for it under the id the conductor chooses, and
// enables the app. An empty networkSeed installs on the bundle's
// default network. The returned AppInfo is the enabled app.
func (m *Manager) InstallAndEnableWithDefaultAgent(ctx context.Context, bundlePath, networkSeed string) (*conductorapi.AppInfo, error) {
	if bundlePath == "" {
		return nil, errors.New("appmanager: bundle path is required")
	}

	agent, err := m.keys.NewSignKeypair(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("generating agent key: %w", err)
	}

	payload := conductorapi.InstallAppPayload{
		Source:   conductorapi.AppBundleSource{Path: bundlePath},
		AgentKey: &agent,
	}
	if networkSeed != "" {
		payload.NetworkSeed = &networkSeed
	}
	installed, err := m.admin.InstallApp(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("installing %s: %w", bundlePath, err)
	}

	enabled, err := m.admin.EnableApp(ctx, installed.InstalledAppID)
	if err != nil {
		return nil, fmt.Errorf("enabling %s: %w", installed.InstalledAppID, err)
	}
	m.logger.Info("app installed and enabled",
		"installed_app_id", enabled.InstalledAppID,
		"agent", agent.String(),
		"bundle", bundlePath,
	)
	return enabled, nil
}
