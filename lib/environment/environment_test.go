// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/holoenv/lib/appmanager"
	"github.com/bureau-foundation/holoenv/lib/clock"
	"github.com/bureau-foundation/holoenv/lib/conductorapi"
	"github.com/bureau-foundation/holoenv/lib/conductorconfig"
	"github.com/bureau-foundation/holoenv/lib/conductortest"
	"github.com/bureau-foundation/holoenv/lib/config"
	"github.com/bureau-foundation/holoenv/lib/envstate"
	"github.com/bureau-foundation/holoenv/lib/keystore"
	"github.com/bureau-foundation/holoenv/lib/secret"
	"github.com/bureau-foundation/holoenv/lib/supervisor"
	"github.com/bureau-foundation/holoenv/lib/testutil"
)

func freePort(t *testing.T) uint16 {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding a free port: %v", err)
	}
	defer listener.Close()
	return uint16(listener.Addr().(*net.TCPAddr).Port)
}

// testConfig returns a config that runs both helpers. The work
// directory is short so the key-store socket path fits.
func testConfig(t *testing.T, conductorMode string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.WorkDir = testutil.SocketDir(t)
	cfg.LogDir = t.TempDir()
	cfg.AdminPort = freePort(t)
	cfg.Passphrase = "test-passphrase"
	cfg.KeystoreBinary = helperScript(t, "keystore", "")
	cfg.ConductorBinary = helperScript(t, "conductor", conductorMode)
	cfg.Readiness.StreamTimeout = config.Duration(20 * time.Second)
	return cfg
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSetupInstallEnableCall(t *testing.T) {
	cfg := testConfig(t, modeNormal)
	seed := make([]byte, keystore.SeedSize)
	for index := range seed {
		seed[index] = 7
	}
	cfg.IdentitySeed = base64.StdEncoding.EncodeToString(seed)
	cfg.ArchiveLogs = config.ArchiveZstd
	ctx := testContext(t)

	environment, err := Setup(ctx, cfg, Options{ShutdownGrace: 5 * time.Second})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer environment.Close()

	if environment.State() != RuntimeReady {
		t.Fatalf("state = %s, want runtime-ready", environment.State())
	}
	processes := environment.Processes()
	if len(processes) != 2 || processes[0].Name != "conductor" || processes[1].Name != "keystore" {
		t.Fatalf("processes = %+v", processes)
	}
	if environment.Document().AdminPort() != cfg.AdminPort {
		t.Errorf("document admin port = %d, want %d", environment.Document().AdminPort(), cfg.AdminPort)
	}
	if filepath.Base(environment.DocumentPath()) != conductorconfig.FileName {
		t.Errorf("document path = %q", environment.DocumentPath())
	}
	if _, imported := environment.DeviceAgent(); !imported {
		t.Error("identity seed was not imported")
	}
	keys, err := environment.Keystore().ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 1 || keys[0].Tag != conductorconfig.DeviceSeedTag {
		t.Errorf("key-store keys = %+v, want the device seed", keys)
	}
	recorded, live, err := envstate.Check(environment.StatePath())
	if err != nil || !live {
		t.Fatalf("envstate.Check = %v, %v, want a live record", live, err)
	}
	if recorded.AdminPort != cfg.AdminPort || recorded.KeystoreURL != environment.Keystore().ConnectionURL() || len(recorded.Processes) != 2 {
		t.Errorf("recorded state = %+v", recorded)
	}

	admin, err := environment.ConnectAdmin(ctx)
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	defer admin.Close()

	apps, err := admin.ListApps(ctx, nil)
	if err != nil {
		t.Fatalf("ListApps: %v", err)
	}
	if len(apps) != 0 {
		t.Fatalf("fresh conductor lists %d apps", len(apps))
	}

	manager := appmanager.New(admin, environment.Keystore(), nil)
	app, err := manager.InstallAndEnableWithDefaultAgent(ctx, "/bundles/my-app-1.happ", "")
	if err != nil {
		t.Fatalf("InstallAndEnableWithDefaultAgent: %v", err)
	}
	if app.InstalledAppID != "my-app-1" || app.Status != conductorapi.AppStatusEnabled {
		t.Fatalf("app = %s (%s)", app.InstalledAppID, app.Status)
	}

	apps, err = admin.ListApps(ctx, nil)
	if err != nil {
		t.Fatalf("ListApps: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("ListApps after install = %d apps, want 1", len(apps))
	}

	port, err := admin.AttachAppInterface(ctx, 0, conductorapi.AnyOrigin(), app.InstalledAppID)
	if err != nil {
		t.Fatalf("AttachAppInterface: %v", err)
	}
	appClient, err := environment.ConnectApp(ctx, port)
	if err != nil {
		t.Fatalf("ConnectApp: %v", err)
	}
	defer appClient.Close()

	cellID, found := app.CellForRole(conductortest.DefaultRole)
	if !found {
		t.Fatalf("no %q cell", conductortest.DefaultRole)
	}
	var echoed string
	if err := appClient.CallZome(ctx, cellID, "demo", "echo", "signed by the key-store process", &echoed); err != nil {
		t.Fatalf("CallZome: %v", err)
	}
	if echoed != "signed by the key-store process" {
		t.Errorf("echo = %q", echoed)
	}

	if err := environment.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if environment.State() != TornDown {
		t.Errorf("state after Close = %s", environment.State())
	}
	for _, process := range processes {
		requireGone(t, process.Name, process.Pid)
	}
	if _, err := os.Stat(environment.StatePath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("state file after Close: %v", err)
	}
	if _, err := os.Stat(environment.LogDir() + ".tar.zst"); err != nil {
		t.Errorf("log archive missing: %v", err)
	}
	if _, err := environment.ConnectAdmin(ctx); !errors.Is(err, ErrNotReady) {
		t.Errorf("ConnectAdmin after Close = %v, want ErrNotReady", err)
	}
	if err := environment.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSetupConductorNeverInitializes(t *testing.T) {
	cfg := testConfig(t, modeNeverInitialized)
	cfg.Readiness.MaxAttempts = 3
	cfg.Readiness.Interval = config.Duration(time.Second)
	fake := clock.Fake(time.Unix(1_700_000_000, 0))

	ctx := testContext(t)
	result := make(chan error, 1)
	go func() {
		environment, err := Setup(ctx, cfg, Options{Clock: fake, ShutdownGrace: 5 * time.Second})
		if environment != nil {
			environment.Close()
		}
		result <- err
	}()

	for range 3 {
		fake.WaitForTimers(1)
		fake.Advance(time.Second)
	}

	err := testutil.RequireReceive(t, result, 30*time.Second, "Setup did not give up")
	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("error = %v, want *SetupError", err)
	}
	if setupErr.Stage != RuntimeStarting {
		t.Errorf("stage = %s, want runtime-starting", setupErr.Stage)
	}
	var timeout *supervisor.ReadinessTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("error = %v, want a *supervisor.ReadinessTimeout inside", err)
	}
	if timeout.Waited != 3*time.Second {
		t.Errorf("waited = %s, want 3s", timeout.Waited)
	}

	requireGone(t, "conductor", readPid(t, cfg.WorkDir, "conductor"))
	requireGone(t, "keystore", readPid(t, cfg.WorkDir, "keystore"))
}

func TestSetupConductorCrashes(t *testing.T) {
	cfg := testConfig(t, modeCrash)
	_, err := Setup(testContext(t), cfg, Options{ShutdownGrace: 5 * time.Second})

	var setupErr *SetupError
	if !errors.As(err, &setupErr) || setupErr.Stage != RuntimeStarting {
		t.Fatalf("error = %v, want *SetupError at runtime-starting", err)
	}
	if !errors.Is(err, supervisor.ErrStreamClosed) {
		t.Errorf("error = %v, want ErrStreamClosed inside", err)
	}
	requireGone(t, "keystore", readPid(t, cfg.WorkDir, "keystore"))
}

func TestSetupMissingConductorBinary(t *testing.T) {
	cfg := testConfig(t, modeNormal)
	cfg.ConductorBinary = filepath.Join(t.TempDir(), "no-such-conductor")
	_, err := Setup(testContext(t), cfg, Options{ShutdownGrace: 5 * time.Second})

	var spawnErr *supervisor.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("error = %v, want *supervisor.SpawnError inside", err)
	}
	var setupErr *SetupError
	if !errors.As(err, &setupErr) || setupErr.Stage != RuntimeStarting {
		t.Fatalf("error = %v, want *SetupError at runtime-starting", err)
	}
	requireGone(t, "keystore", readPid(t, cfg.WorkDir, "keystore"))
}

func TestSetupMissingKeystoreBinary(t *testing.T) {
	cfg := testConfig(t, modeNormal)
	cfg.KeystoreBinary = filepath.Join(t.TempDir(), "no-such-keystore")
	_, err := Setup(testContext(t), cfg, Options{})

	var setupErr *SetupError
	if !errors.As(err, &setupErr) || setupErr.Stage != KeyStoreStarting {
		t.Fatalf("error = %v, want *SetupError at keystore-starting", err)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.WorkDir, conductorconfig.FileName)); !os.IsNotExist(statErr) {
		t.Error("conductor config written although the key-store never started")
	}
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, modeNormal)
	cfg.Readiness.StreamTimeout = 0
	_, err := Setup(testContext(t), cfg, Options{})

	var setupErr *SetupError
	if !errors.As(err, &setupErr) || setupErr.Stage != Uninitialized {
		t.Fatalf("error = %v, want *SetupError at uninitialized", err)
	}
}

func TestSetupWithKeystoreFallback(t *testing.T) {
	passphrase, err := secret.NewFromBytes([]byte("test-passphrase"))
	if err != nil {
		t.Fatal(err)
	}
	server, err := keystore.Open(keystore.ServerConfig{
		Root:       t.TempDir(),
		SocketPath: filepath.Join(testutil.SocketDir(t), keystore.SocketName),
		Passphrase: passphrase,
		WorkFactor: 10,
	})
	if err != nil {
		t.Fatalf("keystore.Open: %v", err)
	}
	defer server.Close()
	serveCtx, stopServing := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- server.Serve(serveCtx) }()
	defer func() {
		stopServing()
		testutil.RequireReceive(t, served, 5*time.Second, "key-store shutdown")
	}()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "key-store ready")

	cfg := testConfig(t, modeNormal)
	cfg.KeystoreBinary = ""
	cfg.KeystoreFallback = server.ConnectionURL()
	ctx := testContext(t)

	environment, err := Setup(ctx, cfg, Options{ShutdownGrace: 5 * time.Second})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	processes := environment.Processes()
	if len(processes) != 1 || processes[0].Name != "conductor" {
		t.Fatalf("processes = %+v, want only the conductor", processes)
	}
	if environment.Document().Keystore.ConnectionURL != server.ConnectionURL() {
		t.Errorf("document key-store url = %q", environment.Document().Keystore.ConnectionURL)
	}
	if err := environment.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	requireGone(t, "conductor", processes[0].Pid)

	// The fallback key-store belongs to the caller and keeps running.
	if _, err := environment.Keystore().Status(ctx); err != nil {
		t.Errorf("fallback key-store stopped with the environment: %v", err)
	}
}

func TestSetupFallbackUnreachable(t *testing.T) {
	cfg := testConfig(t, modeNormal)
	cfg.KeystoreFallback = "unix://" + filepath.Join(testutil.SocketDir(t), "absent.sock")
	_, err := Setup(testContext(t), cfg, Options{})

	var setupErr *SetupError
	if !errors.As(err, &setupErr) || setupErr.Stage != KeyStoreStarting {
		t.Fatalf("error = %v, want *SetupError at keystore-starting", err)
	}
}

func TestTempDirs(t *testing.T) {
	workDir, logDir, err := TempDirs()
	if err != nil {
		t.Fatalf("TempDirs: %v", err)
	}
	defer os.RemoveAll(workDir)
	defer os.RemoveAll(logDir)
	if workDir == logDir {
		t.Fatal("work and log directories coincide")
	}
	for _, directory := range []string{workDir, logDir} {
		info, err := os.Stat(directory)
		if err != nil || !info.IsDir() {
			t.Errorf("%s is not a directory: %v", directory, err)
		}
	}
}

func TestStateString(t *testing.T) {
	if KeyStoreReady.String() != "keystore-ready" || TornDown.String() != "torn-down" {
		t.Error("unexpected state names")
	}
	if State(99).String() != "state(99)" {
		t.Errorf("unknown state = %q", State(99).String())
	}
}
