// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/holoenv/lib/adminclient"
	"github.com/bureau-foundation/holoenv/lib/appclient"
	"github.com/bureau-foundation/holoenv/lib/clock"
	"github.com/bureau-foundation/holoenv/lib/conductorconfig"
	"github.com/bureau-foundation/holoenv/lib/config"
	"github.com/bureau-foundation/holoenv/lib/envstate"
	"github.com/bureau-foundation/holoenv/lib/holohash"
	"github.com/bureau-foundation/holoenv/lib/keystore"
	"github.com/bureau-foundation/holoenv/lib/logarchive"
	"github.com/bureau-foundation/holoenv/lib/metrics"
	"github.com/bureau-foundation/holoenv/lib/secret"
	"github.com/bureau-foundation/holoenv/lib/supervisor"
)

// File and directory names inside the work and log directories.
const (
	KeystoreDirName     = "keystore"
	KeystoreLogName     = "keystore.txt"
	KeystoreStdoutName  = "keystore-stdout.txt"
	ConductorLogName    = "holochain.txt"
	ConductorStdoutName = "holochain-stdout.txt"
)

// DefaultShutdownGrace is how long teardown waits for a process to
// exit after SIGTERM before sending SIGKILL.
const DefaultShutdownGrace = 10 * time.Second

// ErrNotReady is returned by the connect methods before the conductor
// is ready or after teardown.
var ErrNotReady = errors.New("environment: conductor is not ready")

// Options carries collaborators for Setup.
type Options struct {
	Logger *slog.Logger

	// Clock paces the conductor log poll and stamps zome call expiry
	// for clients from ConnectApp. Defaults to the real clock.
	Clock clock.Clock

	Metrics *metrics.Collector

	// ShutdownGrace defaults to DefaultShutdownGrace.
	ShutdownGrace time.Duration
}

// ProcessInfo identifies one supervised process.
type ProcessInfo struct {
	Name    string `json:"name"`
	Pid     int    `json:"pid"`
	LogPath string `json:"log_path"`
}

// Environment is a running key-store and conductor pair.
type Environment struct {
	config        config.Config
	workDir       string
	logDir        string
	logger        *slog.Logger
	clock         clock.Clock
	metrics       *metrics.Collector
	shutdownGrace time.Duration

	mu              sync.Mutex
	state           State
	keystoreProcess *supervisor.Handle
	conductor       *supervisor.Handle
	keystore        *keystore.Client
	document        conductorconfig.Document
	documentPath    string
	deviceAgent     *holohash.AgentPubKey
	outputs         []*os.File

	closeOnce sync.Once
	closeErr  error
}

// TempDirs creates a fresh work directory and log directory under the
// system temporary directory. Setup uses it for whichever of the two
// the configuration leaves empty.
func TempDirs() (workDir, logDir string, err error) {
	workDir, err = os.MkdirTemp("", "holoenv-work-")
	if err != nil {
		return "", "", fmt.Errorf("creating work directory: %w", err)
	}
	logDir, err = os.MkdirTemp("", "holoenv-logs-")
	if err != nil {
		os.RemoveAll(workDir)
		return "", "", fmt.Errorf("creating log directory: %w", err)
	}
	return workDir, logDir, nil
}

// Setup starts the key-store (or connects to the configured fallback),
// then the conductor, and returns once both are ready. cfg must have
// its passphrase resolved. On failure everything already started is
// torn down before the *SetupError is returned.
func Setup(ctx context.Context, cfg config.Config, options Options) (_ *Environment, err error) {
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.ShutdownGrace <= 0 {
		options.ShutdownGrace = DefaultShutdownGrace
	}

	if err := cfg.Validate(); err != nil {
		return nil, &SetupError{Stage: Uninitialized, Err: fmt.Errorf("invalid config: %w", err)}
	}

	environment := &Environment{
		config:        cfg,
		logger:        options.Logger,
		clock:         options.Clock,
		metrics:       options.Metrics,
		shutdownGrace: options.ShutdownGrace,
	}
	if err := environment.prepareDirectories(); err != nil {
		return nil, &SetupError{Stage: Uninitialized, Err: err}
	}

	passphrase, err := secret.NewLine(cfg.Passphrase)
	if err != nil {
		return nil, &SetupError{Stage: Uninitialized, Err: fmt.Errorf("preparing passphrase: %w", err)}
	}
	defer passphrase.Close()

	defer func() {
		if err != nil {
			environment.logger.Error("environment setup failed, tearing down", "error", err)
			environment.teardown()
			environment.setState(TornDown)
		}
	}()

	if err := environment.startKeystore(ctx, passphrase); err != nil {
		return nil, &SetupError{Stage: environment.State(), Err: err}
	}
	if err := environment.startConductor(ctx, passphrase); err != nil {
		return nil, &SetupError{Stage: environment.State(), Err: err}
	}

	if err := environment.recordState(); err != nil {
		environment.logger.Warn("recording environment state", "error", err)
	}

	environment.logger.Info("environment ready",
		"work_dir", environment.workDir,
		"log_dir", environment.logDir,
		"admin_port", environment.document.AdminPort(),
		"keystore_url", environment.keystore.ConnectionURL(),
	)
	return environment, nil
}

func (e *Environment) prepareDirectories() error {
	e.workDir = e.config.WorkDir
	e.logDir = e.config.LogDir
	if e.workDir == "" || e.logDir == "" {
		workDir, logDir, err := TempDirs()
		if err != nil {
			return err
		}
		if e.workDir == "" {
			e.workDir = workDir
		} else {
			os.Remove(workDir)
		}
		if e.logDir == "" {
			e.logDir = logDir
		} else {
			os.Remove(logDir)
		}
	}
	for _, directory := range []string{e.workDir, e.logDir} {
		if err := os.MkdirAll(directory, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", directory, err)
		}
	}
	return nil
}

func (e *Environment) startKeystore(ctx context.Context, passphrase *secret.Buffer) error {
	e.setState(KeyStoreStarting)

	if fallback := e.config.KeystoreFallback; fallback != "" {
		client, err := keystore.Dial(fallback)
		if err != nil {
			return err
		}
		if _, err := client.Status(ctx); err != nil {
			return fmt.Errorf("reaching key-store at %s: %w", fallback, err)
		}
		e.setKeystore(client)
		e.logger.Info("using existing key-store", "connection_url", fallback)
	} else {
		client, err := e.spawnKeystore(ctx, passphrase)
		if err != nil {
			return err
		}
		e.setKeystore(client)
	}
	e.setState(KeyStoreReady)

	seed, err := e.config.IdentitySeedBuffer()
	if err != nil {
		return err
	}
	if seed != nil {
		defer seed.Close()
		agent, err := e.keystore.ImportSeed(ctx, conductorconfig.DeviceSeedTag, seed)
		if err != nil {
			return fmt.Errorf("importing identity seed: %w", err)
		}
		e.mu.Lock()
		e.deviceAgent = &agent
		e.mu.Unlock()
		e.logger.Info("imported device seed", "tag", conductorconfig.DeviceSeedTag, "agent", agent.String())
	}
	return nil
}

func (e *Environment) spawnKeystore(ctx context.Context, passphrase *secret.Buffer) (*keystore.Client, error) {
	root := filepath.Join(e.workDir, KeystoreDirName)
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("creating key-store root: %w", err)
	}

	handle, err := supervisor.Spawn(supervisor.Spec{
		Name:       "keystore",
		Executable: e.config.KeystoreBinary,
		Args: []string{
			"--root", root,
			"--socket", filepath.Join(root, keystore.SocketName),
			"--piped",
		},
		WorkingDir:   e.workDir,
		StdinPayload: passphrase.Bytes(),
		LogPath:      filepath.Join(e.logDir, KeystoreLogName),
		PipeStdout:   true,
		Logger:       e.logger,
		Metrics:      e.metrics,
	})
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.keystoreProcess = handle
	e.mu.Unlock()

	timeout := time.Duration(e.config.Readiness.StreamTimeout)
	started := time.Now()
	var connectionURL string
	err = supervisor.ScanStream(ctx, handle.Stdout(), keystore.ConnectionURLPrefix, timeout, func(line string) (bool, error) {
		if value, found := strings.CutPrefix(line, keystore.ConnectionURLPrefix); found {
			connectionURL = strings.TrimSpace(value)
			return true, nil
		}
		return false, nil
	})
	if err == nil {
		err = supervisor.AwaitStreamMarker(ctx, handle.Stdout(), keystore.ReadyMarker, timeout)
	}
	e.metrics.ReadinessWait("keystore", "stream", time.Since(started), err)
	if err != nil {
		return nil, fmt.Errorf("waiting for key-store readiness: %w", err)
	}
	handle.CloseStdin()
	if err := e.drain(handle, KeystoreStdoutName); err != nil {
		return nil, err
	}

	client, err := keystore.Dial(connectionURL)
	if err != nil {
		return nil, fmt.Errorf("key-store announced an unusable URL: %w", err)
	}
	e.logger.Info("key-store ready", "pid", handle.Pid(), "connection_url", connectionURL)
	return client, nil
}

func (e *Environment) startConductor(ctx context.Context, passphrase *secret.Buffer) error {
	e.setState(RuntimeStarting)

	document, err := conductorconfig.Generate(conductorconfig.Params{
		WorkDir:        e.workDir,
		KeystoreURL:    e.keystore.ConnectionURL(),
		AdminPort:      e.config.AdminPort,
		AllowedOrigins: e.config.Origins(),
	})
	if err != nil {
		return err
	}
	documentPath, err := conductorconfig.Write(e.workDir, document)
	if err != nil {
		return err
	}
	digest, err := document.Digest()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.document = document
	e.documentPath = documentPath
	e.mu.Unlock()
	e.logger.Info("wrote conductor config", "path", documentPath, "digest", digest.String())

	handle, err := supervisor.Spawn(supervisor.Spec{
		Name:         "conductor",
		Executable:   e.config.ConductorBinary,
		Args:         []string{"--config-path", conductorconfig.FileName, "--piped"},
		WorkingDir:   e.workDir,
		StdinPayload: passphrase.Bytes(),
		LogPath:      filepath.Join(e.logDir, ConductorLogName),
		PipeStdout:   true,
		Logger:       e.logger,
		Metrics:      e.metrics,
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.conductor = handle
	e.mu.Unlock()

	started := time.Now()
	err = supervisor.AwaitStreamMarker(ctx, handle.Stdout(), supervisor.ConductorReadyMarker, time.Duration(e.config.Readiness.StreamTimeout))
	e.metrics.ReadinessWait("conductor", "stream", time.Since(started), err)
	if err != nil {
		return fmt.Errorf("waiting for conductor stdout: %w", err)
	}
	handle.CloseStdin()
	if err := e.drain(handle, ConductorStdoutName); err != nil {
		return err
	}

	started = time.Now()
	err = supervisor.AwaitLogMarker(ctx, supervisor.LogProbe{
		Path:        handle.LogPath(),
		Marker:      supervisor.ConductorInitializedMarker,
		MaxAttempts: e.config.Readiness.MaxAttempts,
		Interval:    time.Duration(e.config.Readiness.Interval),
		Clock:       e.clock,
		Exited:      handle.Done(),
		Logger:      e.logger,
	})
	e.metrics.ReadinessWait("conductor", "log", time.Since(started), err)
	if err != nil {
		return fmt.Errorf("waiting for conductor initialization: %w", err)
	}

	e.setState(RuntimeReady)
	e.logger.Info("conductor ready", "pid", handle.Pid(), "admin_port", document.AdminPort())
	return nil
}

// drain sends the rest of handle's stdout to a file in the log
// directory.
func (e *Environment) drain(handle *supervisor.Handle, name string) error {
	output, err := os.Create(filepath.Join(e.logDir, name))
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	e.mu.Lock()
	e.outputs = append(e.outputs, output)
	e.mu.Unlock()
	handle.DrainStdout(output)
	return nil
}

// teardown stops the conductor, then the key-store, waiting for each
// to exit.
func (e *Environment) teardown() {
	e.mu.Lock()
	conductor, keystoreProcess, outputs := e.conductor, e.keystoreProcess, e.outputs
	e.outputs = nil
	e.mu.Unlock()

	e.stop(conductor)
	e.stop(keystoreProcess)
	for _, output := range outputs {
		output.Close()
	}
}

func (e *Environment) stop(handle *supervisor.Handle) {
	if handle == nil {
		return
	}
	if err := handle.Close(); err != nil {
		e.logger.Warn("terminating process", "process", handle.Name(), "error", err)
	}
	timer := time.NewTimer(e.shutdownGrace)
	defer timer.Stop()
	select {
	case <-handle.Done():
		return
	case <-timer.C:
	}

	e.logger.Warn("process ignored SIGTERM", "process", handle.Name(), "pid", handle.Pid(), "grace", e.shutdownGrace)
	if err := handle.Kill(); err != nil {
		e.logger.Error("killing process", "process", handle.Name(), "error", err)
		return
	}
	timer.Reset(e.shutdownGrace)
	select {
	case <-handle.Done():
	case <-timer.C:
		e.logger.Error("process survived SIGKILL", "process", handle.Name(), "pid", handle.Pid())
	}
}

// Close stops the conductor and then the key-store, and archives the
// log directory when configured to. Only the first call has any
// effect; later calls return the first result.
func (e *Environment) Close() error {
	e.closeOnce.Do(func() {
		e.teardown()
		e.setState(TornDown)
		if err := envstate.Clear(e.StatePath()); err != nil {
			e.logger.Warn("clearing environment state", "error", err)
		}
		e.logger.Info("environment torn down")

		if e.config.ArchiveLogs == config.ArchiveNone {
			return
		}
		format, err := logarchive.ParseFormat(e.config.ArchiveLogs)
		if err != nil {
			e.closeErr = err
			return
		}
		result, err := logarchive.Archive(e.logDir, e.logDir+format.Extension(), format)
		if err != nil {
			e.closeErr = fmt.Errorf("archiving logs: %w", err)
			return
		}
		e.logger.Info("archived logs", "path", result.Path, "files", result.Files, "bytes", result.Bytes)
	})
	return e.closeErr
}

// recordState writes the envstate file other holoenv invocations use
// to find this environment.
func (e *Environment) recordState() error {
	state := envstate.State{
		AdminPort:   e.Document().AdminPort(),
		KeystoreURL: e.Keystore().ConnectionURL(),
		WorkDir:     e.workDir,
		LogDir:      e.logDir,
		ConfigPath:  e.DocumentPath(),
		StartedAt:   e.clock.Now().UTC(),
	}
	for _, process := range e.Processes() {
		state.Processes = append(state.Processes, envstate.Process{Name: process.Name, Pid: process.Pid})
	}
	return envstate.Write(e.StatePath(), state)
}

// StatePath returns the location of the environment's envstate file.
func (e *Environment) StatePath() string {
	return envstate.Path(e.workDir)
}

// ConnectAdmin opens a new admin client to the conductor.
func (e *Environment) ConnectAdmin(ctx context.Context) (*adminclient.Client, error) {
	if state := e.State(); state != RuntimeReady {
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, state)
	}
	return adminclient.Connect(ctx, e.Document().AdminPort(), adminclient.Options{
		Logger:  e.logger,
		Metrics: e.metrics,
	})
}

// ConnectApp opens a new app client on an attached app interface port.
// Zome calls are signed by the environment's key-store.
func (e *Environment) ConnectApp(ctx context.Context, port uint16) (*appclient.Client, error) {
	if state := e.State(); state != RuntimeReady {
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, state)
	}
	return appclient.Connect(ctx, port, e.Keystore(), appclient.Options{
		Clock:   e.clock,
		Logger:  e.logger,
		Metrics: e.metrics,
	})
}

// Keystore returns the signing authority the conductor uses.
func (e *Environment) Keystore() *keystore.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keystore
}

// Document returns the conductor configuration that was written.
func (e *Environment) Document() conductorconfig.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.document
}

// DocumentPath returns where the conductor configuration was written.
func (e *Environment) DocumentPath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.documentPath
}

// DeviceAgent returns the agent derived from the configured identity
// seed, if one was imported.
func (e *Environment) DeviceAgent() (holohash.AgentPubKey, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deviceAgent == nil {
		return holohash.AgentPubKey{}, false
	}
	return *e.deviceAgent, true
}

// WorkDir returns the work directory in use.
func (e *Environment) WorkDir() string { return e.workDir }

// LogDir returns the log directory in use.
func (e *Environment) LogDir() string { return e.logDir }

// State returns the current lifecycle state.
func (e *Environment) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Processes lists the processes the environment started, conductor
// first. A fallback key-store is not listed.
func (e *Environment) Processes() []ProcessInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	var processes []ProcessInfo
	for _, handle := range []*supervisor.Handle{e.conductor, e.keystoreProcess} {
		if handle == nil {
			continue
		}
		processes = append(processes, ProcessInfo{Name: handle.Name(), Pid: handle.Pid(), LogPath: handle.LogPath()})
	}
	return processes
}

func (e *Environment) setState(state State) {
	e.mu.Lock()
	previous := e.state
	e.state = state
	e.mu.Unlock()
	e.logger.Debug("environment state changed", "from", previous.String(), "to", state.String())
}

func (e *Environment) setKeystore(client *keystore.Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keystore = client
}
