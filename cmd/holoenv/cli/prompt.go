// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/holoenv/lib/secret"
)

// ErrNoTerminal is returned by PromptPassphrase when stdin is not a
// terminal.
var ErrNoTerminal = errors.New("cli: no terminal available for passphrase prompt")

// PromptPassphrase reads a passphrase from the terminal on stdin with
// echo disabled. The prompt goes to stderr.
func PromptPassphrase(prompt string) (*secret.Buffer, error) {
	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, ErrNoTerminal
	}

	fmt.Fprint(os.Stderr, prompt)
	passphraseBytes, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}

	return secret.NewFromBytes(passphraseBytes)
}
