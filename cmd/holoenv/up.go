// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/holoenv/cmd/holoenv/cli"
	"github.com/bureau-foundation/holoenv/lib/appmanager"
	"github.com/bureau-foundation/holoenv/lib/config"
	"github.com/bureau-foundation/holoenv/lib/environment"
	"github.com/bureau-foundation/holoenv/lib/metrics"
	"github.com/bureau-foundation/holoenv/lib/service"
)

type upParams struct {
	configPath        string
	workDir           string
	logDir            string
	adminPort         uint16
	allowedOrigins    string
	keystoreFallback  string
	conductorBinary   string
	keystoreBinary    string
	streamTimeout     time.Duration
	readinessAttempts int
	readinessInterval time.Duration
	archiveLogs       string
	metricsListen     string
	promptPassphrase  bool
	bundle            string
	networkSeed       string
	logLevel          string
	json              bool
}

func upCommand() *cli.Command {
	var (
		params  upParams
		flagSet *pflag.FlagSet
	)
	return &cli.Command{
		Name:    "up",
		Summary: "Start a key-store and conductor and keep them running",
		Usage:   "holoenv up [flags]",
		Description: `Start a key-store and a conductor, wait for both to be ready, and
print the connection details. Both processes are stopped, conductor
first, on SIGINT or SIGTERM.

Flags override values from --config. The passphrase comes from the
config file, then $` + config.PassphraseEnvironmentVariable + `, then a development default.`,
		Examples: []cli.Example{
			{
				Description: "Start with temporary directories and a 20s handshake limit",
				Command:     "holoenv up --stream-timeout 20s",
			},
			{
				Description: "Start from an environment file and install a bundle",
				Command:     "holoenv up --config env.yaml --bundle ./forum.happ",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet = upFlags(&params)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runUp(&params, flagSet)
		},
	}
}

func upFlags(params *upParams) *pflag.FlagSet {
	defaults := config.Default()
	flagSet := pflag.NewFlagSet("up", pflag.ContinueOnError)
	flagSet.StringVar(&params.configPath, "config", "", "environment file (.yaml, .yml, .json, .jsonc)")
	flagSet.StringVar(&params.workDir, "work-dir", "", "work directory (default: a new temporary directory)")
	flagSet.StringVar(&params.logDir, "log-dir", "", "log directory (default: a new temporary directory)")
	flagSet.Uint16Var(&params.adminPort, "admin-port", defaults.AdminPort, "conductor admin interface port")
	flagSet.StringVar(&params.allowedOrigins, "allowed-origins", defaults.AllowedOrigins, `admin interface origins: "*" or a comma-separated list`)
	flagSet.StringVar(&params.keystoreFallback, "keystore-fallback", "", "connect to this key-store URL instead of spawning one")
	flagSet.StringVar(&params.conductorBinary, "conductor-binary", defaults.ConductorBinary, "conductor executable")
	flagSet.StringVar(&params.keystoreBinary, "keystore-binary", defaults.KeystoreBinary, "key-store executable")
	flagSet.DurationVar(&params.streamTimeout, "stream-timeout", 0, "limit on each stdout readiness handshake (required unless set in --config)")
	flagSet.IntVar(&params.readinessAttempts, "readiness-attempts", defaults.Readiness.MaxAttempts, "conductor log readiness polls")
	flagSet.DurationVar(&params.readinessInterval, "readiness-interval", time.Duration(defaults.Readiness.Interval), "interval between log readiness polls")
	flagSet.StringVar(&params.archiveLogs, "archive-logs", "", "archive the log directory on shutdown (zstd, lz4)")
	flagSet.StringVar(&params.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this TCP address")
	flagSet.BoolVar(&params.promptPassphrase, "prompt-passphrase", false, "read the passphrase from the terminal")
	flagSet.StringVar(&params.bundle, "bundle", "", "install and enable this app bundle once ready")
	flagSet.StringVar(&params.networkSeed, "network-seed", "", "network seed for --bundle")
	flagSet.StringVar(&params.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flagSet.BoolVar(&params.json, "json", false, "print the environment summary as JSON")
	return flagSet
}

// resolveUpConfig loads --config over the defaults and applies every
// flag the user set explicitly. Setup validates the result.
func resolveUpConfig(params *upParams, flagSet *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if params.configPath != "" {
		loaded, err := config.Load(params.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	changed := flagSet.Changed
	if changed("work-dir") {
		absolute, err := filepath.Abs(params.workDir)
		if err != nil {
			return config.Config{}, fmt.Errorf("resolving --work-dir: %w", err)
		}
		cfg.WorkDir = absolute
	}
	if changed("log-dir") {
		absolute, err := filepath.Abs(params.logDir)
		if err != nil {
			return config.Config{}, fmt.Errorf("resolving --log-dir: %w", err)
		}
		cfg.LogDir = absolute
	}
	if changed("admin-port") {
		cfg.AdminPort = params.adminPort
	}
	if changed("allowed-origins") {
		cfg.AllowedOrigins = params.allowedOrigins
	}
	if changed("keystore-fallback") {
		cfg.KeystoreFallback = params.keystoreFallback
	}
	if changed("conductor-binary") {
		cfg.ConductorBinary = params.conductorBinary
	}
	if changed("keystore-binary") {
		cfg.KeystoreBinary = params.keystoreBinary
	}
	if changed("stream-timeout") {
		cfg.Readiness.StreamTimeout = config.Duration(params.streamTimeout)
	}
	if changed("readiness-attempts") {
		cfg.Readiness.MaxAttempts = params.readinessAttempts
	}
	if changed("readiness-interval") {
		cfg.Readiness.Interval = config.Duration(params.readinessInterval)
	}
	if changed("archive-logs") {
		cfg.ArchiveLogs = params.archiveLogs
	}
	return cfg, nil
}

func runUp(params *upParams, flagSet *pflag.FlagSet) error {
	level, err := cli.ParseLevel(params.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger := cli.NewCommandLogger(level).With("command", "up")

	cfg, err := resolveUpConfig(params, flagSet)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if params.promptPassphrase {
		passphrase, err := cli.PromptPassphrase("Conductor passphrase: ")
		if err != nil {
			return err
		}
		cfg.Passphrase = passphrase.String()
		passphrase.Close()
	}
	logger.Info("passphrase resolved", "source", cfg.ResolvePassphrase(os.LookupEnv))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	collector := metrics.New()
	metricsDone, err := serveMetrics(ctx, params.metricsListen, collector, logger)
	if err != nil {
		return err
	}

	env, err := environment.Setup(ctx, cfg, environment.Options{
		Logger:  logger,
		Metrics: collector,
	})
	if err != nil {
		stop()
		<-metricsDone
		return err
	}

	runErr := serveEnvironment(ctx, env, params, logger)

	logger.Info("shutting down")
	closeErr := env.Close()
	stop()
	<-metricsDone
	return errors.Join(runErr, closeErr)
}

// serveMetrics starts the Prometheus endpoint when address is set. The
// returned channel closes once the server has stopped.
func serveMetrics(ctx context.Context, address string, collector *metrics.Collector, logger *slog.Logger) (<-chan struct{}, error) {
	done := make(chan struct{})
	if address == "" {
		close(done)
		return done, nil
	}

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address: address,
		Routes:  map[string]http.Handler{"/metrics": collector.Handler()},
		Logger:  logger,
	})
	serveErr := make(chan error, 1)
	go func() {
		defer close(done)
		serveErr <- server.Serve(ctx)
	}()

	select {
	case <-server.Ready():
		logger.Info("metrics endpoint ready", "address", server.Addr().String())
		return done, nil
	case err := <-serveErr:
		return nil, fmt.Errorf("metrics endpoint: %w", err)
	}
}

// upSummary is what "holoenv up" reports once the environment is ready.
type upSummary struct {
	AdminPort    uint16                    `json:"admin_port"`
	KeystoreURL  string                    `json:"keystore_url"`
	WorkDir      string                    `json:"work_dir"`
	LogDir       string                    `json:"log_dir"`
	ConfigPath   string                    `json:"config_path"`
	DeviceAgent  string                    `json:"device_agent,omitempty"`
	Processes    []environment.ProcessInfo `json:"processes"`
	InstalledApp *appSummary               `json:"installed_app,omitempty"`
}

func serveEnvironment(ctx context.Context, env *environment.Environment, params *upParams, logger *slog.Logger) error {
	summary := upSummary{
		AdminPort:   env.Document().AdminPort(),
		KeystoreURL: env.Keystore().ConnectionURL(),
		WorkDir:     env.WorkDir(),
		LogDir:      env.LogDir(),
		ConfigPath:  env.DocumentPath(),
		Processes:   env.Processes(),
	}
	if agent, ok := env.DeviceAgent(); ok {
		summary.DeviceAgent = agent.String()
	}

	if params.bundle != "" {
		admin, err := env.ConnectAdmin(ctx)
		if err != nil {
			return err
		}
		info, err := appmanager.New(admin, env.Keystore(), logger).InstallAndEnableWithDefaultAgent(ctx, params.bundle, params.networkSeed)
		admin.Close()
		if err != nil {
			return err
		}
		installed := summarizeApp(*info)
		summary.InstalledApp = &installed
	}

	if params.json {
		if err := cli.WriteJSON(os.Stdout, summary); err != nil {
			return err
		}
	} else {
		printUpSummary(os.Stdout, summary)
	}

	<-ctx.Done()
	return nil
}

func printUpSummary(w io.Writer, summary upSummary) {
	fmt.Fprintf(w, "admin port:   %d\n", summary.AdminPort)
	fmt.Fprintf(w, "key-store:    %s\n", summary.KeystoreURL)
	fmt.Fprintf(w, "work dir:     %s\n", summary.WorkDir)
	fmt.Fprintf(w, "log dir:      %s\n", summary.LogDir)
	fmt.Fprintf(w, "config:       %s\n", summary.ConfigPath)
	if summary.DeviceAgent != "" {
		fmt.Fprintf(w, "device agent: %s\n", summary.DeviceAgent)
	}
	for _, process := range summary.Processes {
		fmt.Fprintf(w, "%-13s pid %d, log %s\n", process.Name+":", process.Pid, process.LogPath)
	}
	if summary.InstalledApp != nil {
		fmt.Fprintln(w)
		printApps(w, []appSummary{*summary.InstalledApp})
	}
	fmt.Fprintf(w, "\nexport %s=%s\n", KeystoreURLEnvironmentVariable, summary.KeystoreURL)
}
