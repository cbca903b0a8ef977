// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package adminclient

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/bureau-foundation/holoenv/lib/conductorapi"
	"github.com/bureau-foundation/holoenv/lib/metrics"
	"github.com/bureau-foundation/holoenv/lib/wschannel"
)

// Options configures Connect.
type Options struct {
	// Origin is sent during the websocket handshake.
	Origin string

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Client issues admin requests over one channel.
type Client struct {
	channel *wschannel.Channel
	logger  *slog.Logger
}

// Connect dials the admin interface on the loopback port.
func Connect(ctx context.Context, port uint16, options Options) (*Client, error) {
	address := "ws://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port)))
	channel, err := wschannel.Connect(ctx, address, wschannel.Options{
		Name:    "admin",
		Origin:  options.Origin,
		Logger:  options.Logger,
		Metrics: options.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return New(channel, options.Logger), nil
}

// New wraps an already connected channel.
func New(channel *wschannel.Channel, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{channel: channel, logger: logger}
}

// Close closes the underlying channel.
func (c *Client) Close() error {
	return c.channel.Close()
}

// ListApps returns installed apps, optionally only those in one status.
func (c *Client) ListApps(ctx context.Context, statusFilter *conductorapi.AppStatusFilter) ([]conductorapi.AppInfo, error) {
	var apps []conductorapi.AppInfo
	err := c.call(ctx, conductorapi.RequestListApps, conductorapi.ListAppsRequest{StatusFilter: statusFilter},
		conductorapi.ResponseAppsListed, &apps)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []conductorapi.AppInfo{}
	}
	return apps, nil
}

// InstallApp installs a bundle. The returned app is installed but not
// yet enabled.
func (c *Client) InstallApp(ctx context.Context, payload conductorapi.InstallAppPayload) (*conductorapi.AppInfo, error) {
	var app conductorapi.AppInfo
	if err := c.call(ctx, conductorapi.RequestInstallApp, payload, conductorapi.ResponseAppInstalled, &app); err != nil {
		return nil, err
	}
	c.logger.Info("app installed", "installed_app_id", app.InstalledAppID, "agent", app.AgentPubKey.String())
	return &app, nil
}

// EnableApp enables an installed app. Cells that failed to start are
// logged; the app is returned regardless.
func (c *Client) EnableApp(ctx context.Context, installedAppID string) (*conductorapi.AppInfo, error) {
	var enabled conductorapi.AppEnabled
	err := c.call(ctx, conductorapi.RequestEnableApp, conductorapi.EnableAppRequest{InstalledAppID: installedAppID},
		conductorapi.ResponseAppEnabled, &enabled)
	if err != nil {
		return nil, err
	}
	for _, cellError := range enabled.Errors {
		c.logger.Warn("cell failed to start",
			"installed_app_id", installedAppID,
			"cell_id", cellError.CellID.String(),
			"error", cellError.Error,
		)
	}
	return &enabled.App, nil
}

// AttachAppInterface opens an app interface and returns its port. A
// zero port asks the conductor to pick one; an empty installedAppID
// allows every app.
func (c *Client) AttachAppInterface(ctx context.Context, port uint16, allowedOrigins conductorapi.AllowedOrigins, installedAppID string) (uint16, error) {
	request := conductorapi.AttachAppInterfaceRequest{AllowedOrigins: allowedOrigins}
	if port != 0 {
		request.Port = &port
	}
	if installedAppID != "" {
		request.InstalledAppID = &installedAppID
	}
	var attached conductorapi.AppInterfaceAttached
	if err := c.call(ctx, conductorapi.RequestAttachAppInterface, request, conductorapi.ResponseAppInterfaceAttached, &attached); err != nil {
		return 0, err
	}
	return attached.Port, nil
}

func (c *Client) call(ctx context.Context, operation string, payload any, wantKind string, out any) error {
	request, err := conductorapi.NewRequest(operation, payload)
	if err != nil {
		return err
	}
	raw, err := c.channel.Request(ctx, request)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	response, err := conductorapi.DecodeResponse(operation, raw)
	if err != nil {
		return err
	}
	return conductorapi.Expect(response, operation, wantKind, out)
}
