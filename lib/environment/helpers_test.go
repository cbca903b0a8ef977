// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/holoenv/lib/codec"
	"github.com/bureau-foundation/holoenv/lib/conductorapi"
	"github.com/bureau-foundation/holoenv/lib/conductorconfig"
	"github.com/bureau-foundation/holoenv/lib/conductortest"
	"github.com/bureau-foundation/holoenv/lib/keystore"
	"github.com/bureau-foundation/holoenv/lib/secret"
	"github.com/bureau-foundation/holoenv/lib/supervisor"
	"github.com/bureau-foundation/holoenv/lib/testutil"
)

// The test binary doubles as the key-store and conductor executables.
// Wrapper scripts set helperVariable (and modeVariable) and exec it.
const (
	helperVariable = "HOLOENV_TEST_HELPER"
	modeVariable   = "HOLOENV_TEST_MODE"
)

// Conductor helper modes.
const (
	modeNormal           = ""
	modeNeverInitialized = "never-initialized"
	modeCrash            = "crash"
)

func TestMain(m *testing.M) {
	switch os.Getenv(helperVariable) {
	case "keystore":
		os.Exit(runKeystoreHelper())
	case "conductor":
		os.Exit(runConductorHelper())
	}
	os.Exit(m.Run())
}

func helperContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), unix.SIGTERM, os.Interrupt)
}

// writePidFile records the helper's pid in its working directory so
// tests can confirm it is gone after teardown.
func writePidFile(name string) {
	os.WriteFile(name+".pid", []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func runKeystoreHelper() int {
	writePidFile("keystore")
	flags := pflag.NewFlagSet("keystore", pflag.ContinueOnError)
	root := flags.String("root", "", "")
	socket := flags.String("socket", "", "")
	flags.Bool("piped", false, "")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	passphrase, err := secret.ReadLine(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	ctx, cancel := helperContext()
	defer cancel()
	err = keystore.Run(ctx, keystore.ServerConfig{
		Root:       *root,
		SocketPath: *socket,
		Passphrase: passphrase,
		WorkFactor: 10,
	}, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runConductorHelper() int {
	writePidFile("conductor")
	mode := os.Getenv(modeVariable)
	if mode == modeCrash {
		fmt.Fprintln(os.Stderr, "conductor: simulated crash")
		return 3
	}

	flags := pflag.NewFlagSet("conductor", pflag.ContinueOnError)
	configPath := flags.String("config-path", "", "")
	flags.Bool("piped", false, "")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	passphrase, err := secret.ReadLine(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	passphrase.Close()

	document, err := conductorconfig.Read(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, cancel := helperContext()
	defer cancel()

	// The real conductor refuses to start without its key-store.
	client, err := keystore.Dial(document.Keystore.ConnectionURL)
	if err == nil {
		_, err = client.Status(ctx)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "conductor: key-store unreachable:", err)
		return 1
	}

	origins := document.AdminInterfaces[0].Driver.AllowedOrigins
	conductor := conductortest.New(conductortest.Options{
		AdminPort:    document.AdminPort(),
		AdminOrigins: &origins,
	})
	defer conductor.Close()
	conductor.HandleZome("demo", "echo", func(call conductorapi.ZomeCall) (any, error) {
		var text string
		if err := codec.Unmarshal(call.Payload, &text); err != nil {
			return nil, err
		}
		return text, nil
	})

	if mode != modeNeverInitialized {
		fmt.Fprintln(os.Stderr, supervisor.ConductorInitializedMarker)
	}
	fmt.Fprintln(os.Stdout, supervisor.ConductorReadyMarker)

	<-ctx.Done()
	return 0
}

// helperScript writes a wrapper that runs this test binary in helper
// mode and returns its path.
func helperScript(t *testing.T, helper, mode string) string {
	t.Helper()
	executable, err := os.Executable()
	if err != nil {
		t.Fatalf("locating test binary: %v", err)
	}
	body := fmt.Sprintf("%s=%s %s=%s exec %q \"$@\"\n", helperVariable, helper, modeVariable, mode, executable)
	return testutil.WriteScript(t, t.TempDir(), helper+".sh", body)
}

// readPid returns the pid a helper recorded in workDir.
func readPid(t *testing.T, workDir, name string) int {
	t.Helper()
	var content []byte
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		content, err = os.ReadFile(filepath.Join(workDir, name+".pid"))
		if err == nil && len(content) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("helper %s never wrote its pid: %v", name, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	pid, err := strconv.Atoi(string(content))
	if err != nil {
		t.Fatalf("parsing %s pid: %v", name, err)
	}
	return pid
}

// requireGone fails unless pid no longer exists.
func requireGone(t *testing.T, name string, pid int) {
	t.Helper()
	if err := unix.Kill(pid, 0); !errors.Is(err, unix.ESRCH) {
		t.Errorf("%s (pid %d) still exists after teardown (kill 0: %v)", name, pid, err)
	}
}
