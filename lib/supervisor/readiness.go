// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bureau-foundation/holoenv/lib/clock"
)

// Readiness markers printed by the conductor.
const (
	// ConductorInitializedMarker appears in the conductor's log once it
	// has finished initializing.
	ConductorInitializedMarker = "Conductor successfully initialized"

	// ConductorReadyMarker appears on the conductor's stdout once its
	// admin interface is listening.
	ConductorReadyMarker = "Conductor ready."
)

var (
	// ErrProcessExited is returned when the watched process exits
	// before the marker appears.
	ErrProcessExited = errors.New("supervisor: process exited before becoming ready")

	// ErrStreamTimeoutRequired is returned by the stream waits when no
	// positive timeout is given.
	ErrStreamTimeoutRequired = errors.New("supervisor: stream readiness timeout must be positive")

	// ErrStreamClosed is returned when the stream ends before the
	// marker appears.
	ErrStreamClosed = errors.New("supervisor: stream closed before marker")
)

// ReadinessTimeout reports that a marker did not appear in time.
type ReadinessTimeout struct {
	// Source is the log path, or "stdout" for stream waits.
	Source string
	Marker string
	Waited time.Duration
}

func (e *ReadinessTimeout) Error() string {
	return fmt.Sprintf("%q did not appear in %s after %s", e.Marker, e.Source, e.Waited)
}

// LogProbe configures AwaitLogMarker.
type LogProbe struct {
	Path   string
	Marker string

	// MaxAttempts is the number of times the file is read. After each
	// miss the probe sleeps Interval, so the total wait before a
	// ReadinessTimeout is MaxAttempts*Interval.
	MaxAttempts int
	Interval    time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Exited, when non-nil, aborts the wait with ErrProcessExited once
	// closed. Pass Handle.Done.
	Exited <-chan struct{}

	Logger *slog.Logger
}

// AwaitLogMarker polls probe.Path until it contains probe.Marker.
// The whole file is read on every attempt; a missing file counts as a
// miss.
func AwaitLogMarker(ctx context.Context, probe LogProbe) error {
	if probe.MaxAttempts <= 0 {
		return fmt.Errorf("supervisor: log probe for %s needs a positive attempt count", probe.Path)
	}
	if probe.Interval <= 0 {
		return fmt.Errorf("supervisor: log probe for %s needs a positive interval", probe.Path)
	}
	if probe.Clock == nil {
		probe.Clock = clock.Real()
	}
	logger := probe.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	for attempt := 1; attempt <= probe.MaxAttempts; attempt++ {
		content, err := os.ReadFile(probe.Path)
		if err == nil && strings.Contains(string(content), probe.Marker) {
			logger.Info("readiness marker found", "path", probe.Path, "marker", probe.Marker, "attempt", attempt)
			return nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading %s: %w", probe.Path, err)
		}
		logger.Debug("waiting for readiness marker", "path", probe.Path, "attempt", attempt, "max_attempts", probe.MaxAttempts)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-probe.Exited:
			return fmt.Errorf("waiting for %q in %s: %w", probe.Marker, probe.Path, ErrProcessExited)
		case <-probe.Clock.After(probe.Interval):
		}
	}
	return &ReadinessTimeout{
		Source: probe.Path,
		Marker: probe.Marker,
		Waited: time.Duration(probe.MaxAttempts) * probe.Interval,
	}
}

// AwaitStreamMarker reads lines from reader until one equals marker.
// A line that only contains the marker does not count. Lines after the
// marker stay buffered in reader.
func AwaitStreamMarker(ctx context.Context, reader *bufio.Reader, marker string, timeout time.Duration) error {
	return ScanStream(ctx, reader, marker, timeout, func(line string) (bool, error) {
		return line == marker, nil
	})
}

// ScanStream calls visit with each line read from reader (without the
// trailing newline) until visit reports done or returns an error.
// label names what is being awaited in timeout errors.
//
// The read happens on a separate goroutine so the timeout and ctx can
// interrupt the wait. After a timeout or cancellation that goroutine
// stays blocked until the stream is closed, and reader must not be used
// again.
func ScanStream(ctx context.Context, reader *bufio.Reader, label string, timeout time.Duration, visit func(line string) (bool, error)) error {
	if timeout <= 0 {
		return ErrStreamTimeoutRequired
	}

	result := make(chan error, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if len(line) > 0 {
				done, visitErr := visit(strings.TrimRight(line, "\r\n"))
				if visitErr != nil {
					result <- visitErr
					return
				}
				if done {
					result <- nil
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
					result <- fmt.Errorf("waiting for %q: %w", label, ErrStreamClosed)
				} else {
					result <- fmt.Errorf("reading stream: %w", err)
				}
				return
			}
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return &ReadinessTimeout{Source: "stdout", Marker: label, Waited: timeout}
	}
}
