// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/holoenv/lib/metrics"
)

// Spec describes one child process.
type Spec struct {
	// Name labels the process in logs and metrics ("keystore",
	// "conductor").
	Name string

	// Executable is a path or a name resolved against PATH.
	Executable string
	Args       []string

	// WorkingDir is the child's working directory. Empty inherits ours.
	WorkingDir string

	// Env entries are appended to the inherited environment.
	Env []string

	// StdinPayload, when non-empty, is written to the child's stdin
	// before Spawn returns, so the caller may wipe it afterwards. Stdin
	// then stays open until CloseStdin or Close. A child that exits
	// without reading it is not a spawn failure; Done reports the exit.
	StdinPayload []byte

	// LogPath receives stderr, truncated at spawn. Required.
	LogPath string

	// PipeStdout exposes stdout through Handle.Stdout instead of
	// sending it to LogPath.
	PipeStdout bool

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// SpawnError reports that a child could not be started.
type SpawnError struct {
	Name       string
	Executable string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s (%s): %v", e.Name, e.Executable, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// exitState is shared between a Handle and its reaper goroutine. The
// reaper must not reference the Handle so the cleanup backstop can run
// when the Handle is dropped without Close.
type exitState struct {
	done chan struct{}
	code int
	err  error
}

// Handle is a running (or exited) child process.
type Handle struct {
	name    string
	logPath string
	process *os.Process

	stdin      io.WriteCloser
	stdinOnce  sync.Once
	stdout     *bufio.Reader
	stdoutFile *os.File

	exit *exitState

	closeOnce sync.Once
	cleanup   runtime.Cleanup

	logger  *slog.Logger
	metrics *metrics.Collector
}

// Spawn starts the process described by spec. On failure no handle is
// returned and nothing is left running or open.
func Spawn(spec Spec) (*Handle, error) {
	logger := spec.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fail := func(err error) (*Handle, error) {
		spawnErr := &SpawnError{Name: spec.Name, Executable: spec.Executable, Err: err}
		spec.Metrics.ProcessSpawned(spec.Name, spawnErr)
		return nil, spawnErr
	}
	if spec.LogPath == "" {
		return fail(errors.New("log path is required"))
	}

	logFile, err := os.Create(spec.LogPath)
	if err != nil {
		return fail(fmt.Errorf("creating log file: %w", err))
	}

	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = spec.WorkingDir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stderr = logFile

	// A pipe we own, rather than cmd.StdoutPipe, so the reaper's Wait
	// does not close the read side under a concurrent scanner.
	var stdoutRead, stdoutWrite *os.File
	if spec.PipeStdout {
		stdoutRead, stdoutWrite, err = os.Pipe()
		if err != nil {
			logFile.Close()
			return fail(fmt.Errorf("creating stdout pipe: %w", err))
		}
		cmd.Stdout = stdoutWrite
	} else {
		cmd.Stdout = logFile
	}

	closeAll := func() {
		logFile.Close()
		if stdoutRead != nil {
			stdoutRead.Close()
			stdoutWrite.Close()
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		closeAll()
		return fail(fmt.Errorf("creating stdin pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		closeAll()
		return fail(err)
	}
	if stdoutWrite != nil {
		stdoutWrite.Close()
	}

	exit := &exitState{done: make(chan struct{})}
	name := spec.Name
	pid := cmd.Process.Pid
	go func() {
		waitError := cmd.Wait()
		exitCode := 0
		if waitError != nil {
			var exitErr *exec.ExitError
			if errors.As(waitError, &exitErr) {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
			}
		}
		logFile.Close()
		exit.code = exitCode
		exit.err = waitError
		close(exit.done)
		logger.Info("process exited", "process", name, "pid", pid, "exit_code", exitCode, "error", waitError)
	}()

	handle := &Handle{
		name:       spec.Name,
		logPath:    spec.LogPath,
		process:    cmd.Process,
		stdin:      stdin,
		stdoutFile: stdoutRead,
		exit:       exit,
		logger:     logger,
		metrics:    spec.Metrics,
	}
	if stdoutRead != nil {
		handle.stdout = bufio.NewReader(stdoutRead)
	}
	handle.cleanup = runtime.AddCleanup(handle, func(process *os.Process) {
		process.Signal(unix.SIGTERM)
	}, cmd.Process)

	// A failed write means the child closed its stdin, which for these
	// children means it exited. The handle still reports that exit.
	if len(spec.StdinPayload) > 0 {
		if _, err := stdin.Write(spec.StdinPayload); err != nil {
			logger.Warn("stdin payload not delivered", "process", spec.Name, "pid", pid, "error", err)
			handle.CloseStdin()
		}
	}

	spec.Metrics.ProcessSpawned(spec.Name, nil)
	logger.Info("process started", "process", spec.Name, "pid", pid, "executable", spec.Executable, "log_path", spec.LogPath)
	return handle, nil
}

// Name returns the label the process was spawned with.
func (h *Handle) Name() string { return h.name }

// Pid returns the child's process ID.
func (h *Handle) Pid() int { return h.process.Pid }

// LogPath returns the file receiving the child's stderr.
func (h *Handle) LogPath() string { return h.logPath }

// Done is closed once the child has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.exit.done }

// Alive reports whether the child has not yet been reaped.
func (h *Handle) Alive() bool {
	select {
	case <-h.exit.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code and true once the child has exited.
// A child killed by a signal reports -1.
func (h *Handle) ExitCode() (int, bool) {
	select {
	case <-h.exit.done:
		return h.exit.code, true
	default:
		return 0, false
	}
}

// Stdout returns the child's stdout, or nil unless the process was
// spawned with PipeStdout.
func (h *Handle) Stdout() *bufio.Reader { return h.stdout }

// CloseStdin closes the child's stdin. Safe to call more than once.
func (h *Handle) CloseStdin() {
	h.stdinOnce.Do(func() { h.stdin.Close() })
}

// Close asks the child to terminate with SIGTERM and releases the
// parent's pipe ends. It returns immediately; wait on Done to observe
// the exit. Only the first call signals.
func (h *Handle) Close() error {
	var signalErr error
	h.closeOnce.Do(func() {
		h.cleanup.Stop()
		if h.Alive() {
			if err := h.process.Signal(unix.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
				signalErr = fmt.Errorf("signalling %s (pid %d): %w", h.name, h.process.Pid, err)
			} else {
				h.logger.Info("process terminated", "process", h.name, "pid", h.process.Pid)
			}
			h.metrics.ProcessTerminated(h.name)
		}
		h.CloseStdin()
		if h.stdoutFile != nil {
			h.stdoutFile.Close()
		}
	})
	return signalErr
}

// Kill sends SIGKILL. It is for callers whose grace period after Close
// has run out; it does not wait either.
func (h *Handle) Kill() error {
	if !h.Alive() {
		return nil
	}
	if err := h.process.Signal(unix.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing %s (pid %d): %w", h.name, h.process.Pid, err)
	}
	h.logger.Warn("process killed", "process", h.name, "pid", h.process.Pid)
	return nil
}

// DrainStdout copies whatever remains of a piped stdout to destination
// on a background goroutine, so a chatty child never blocks on a full
// pipe once its readiness has been established. The copy ends when the
// child exits or Close is called. It is a no-op without PipeStdout.
func (h *Handle) DrainStdout(destination io.Writer) {
	if h.stdout == nil {
		return
	}
	go func() {
		io.Copy(destination, h.stdout)
	}()
}
