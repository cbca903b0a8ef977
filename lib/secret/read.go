// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// maxLineLength bounds a passphrase line read from a pipe.
const maxLineLength = 4096

// ReadLine reads one newline-terminated line from r and returns it,
// trimmed of surrounding whitespace, in a Buffer. This is how the
// key-store consumes the passphrase its supervisor writes to stdin.
// The rest of r is left unread beyond what bufio buffered.
func ReadLine(r io.Reader) (*Buffer, error) {
	reader := bufio.NewReaderSize(r, maxLineLength)
	line, err := reader.ReadSlice('\n')
	if err != nil && err != io.EOF {
		Zero(line)
		return nil, fmt.Errorf("reading secret line: %w", err)
	}

	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		Zero(line)
		return nil, fmt.Errorf("secret line is empty")
	}

	buffer, err := NewFromBytes(trimmed)
	Zero(line)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}
