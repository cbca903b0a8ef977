// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logarchive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format selects the compression codec.
type Format string

const (
	FormatZstd Format = "zstd"
	FormatLZ4  Format = "lz4"
)

// ParseFormat accepts "zstd" or "lz4".
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatZstd, FormatLZ4:
		return Format(name), nil
	default:
		return "", fmt.Errorf("unknown log archive format %q", name)
	}
}

// Extension returns the file suffix for archives in format.
func (f Format) Extension() string {
	switch f {
	case FormatZstd:
		return ".tar.zst"
	case FormatLZ4:
		return ".tar.lz4"
	default:
		return ".tar"
	}
}

// Result describes a written archive.
type Result struct {
	Path  string
	Files int
	// Bytes is the uncompressed size of the archived files.
	Bytes int64
}

// Archive writes every regular file under sourceDir into destination
// as a tar stream compressed with format. Entry names are relative to
// sourceDir. A partially written destination is removed on failure.
func Archive(sourceDir, destination string, format Format) (Result, error) {
	file, err := os.Create(destination)
	if err != nil {
		return Result{}, fmt.Errorf("creating archive: %w", err)
	}

	result, err := writeArchive(file, sourceDir, format)
	closeErr := file.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("closing archive: %w", closeErr)
	}
	if err != nil {
		os.Remove(destination)
		return Result{}, err
	}
	result.Path = destination
	return result, nil
}

func writeArchive(output io.Writer, sourceDir string, format Format) (Result, error) {
	compressor, err := newCompressor(output, format)
	if err != nil {
		return Result{}, err
	}

	var result Result
	archive := tar.NewWriter(compressor)
	walkErr := filepath.WalkDir(sourceDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relative)
		if err := archive.WriteHeader(header); err != nil {
			return err
		}
		source, err := os.Open(path)
		if err != nil {
			return err
		}
		// Logs may still be growing; copy exactly the size recorded in
		// the header.
		written, err := io.CopyN(archive, source, header.Size)
		source.Close()
		if err != nil {
			return fmt.Errorf("archiving %s: %w", relative, err)
		}
		result.Files++
		result.Bytes += written
		return nil
	})
	if walkErr != nil {
		compressor.Close()
		return Result{}, fmt.Errorf("walking %s: %w", sourceDir, walkErr)
	}
	if err := archive.Close(); err != nil {
		compressor.Close()
		return Result{}, fmt.Errorf("finishing tar stream: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return Result{}, fmt.Errorf("finishing %s stream: %w", format, err)
	}
	return result, nil
}

func newCompressor(output io.Writer, format Format) (io.WriteCloser, error) {
	switch format {
	case FormatZstd:
		encoder, err := zstd.NewWriter(output, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		return encoder, nil
	case FormatLZ4:
		return lz4.NewWriter(output), nil
	default:
		return nil, fmt.Errorf("unknown log archive format %q", format)
	}
}

// Extract unpacks an archive written by Archive into destinationDir.
func Extract(archivePath, destinationDir string, format Format) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	var reader io.Reader
	switch format {
	case FormatZstd:
		decoder, err := zstd.NewReader(file)
		if err != nil {
			return fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer decoder.Close()
		reader = decoder
	case FormatLZ4:
		reader = lz4.NewReader(file)
	default:
		return fmt.Errorf("unknown log archive format %q", format)
	}

	archive := tar.NewReader(reader)
	for {
		header, err := archive.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}
		name := filepath.FromSlash(header.Name)
		if !filepath.IsLocal(name) || strings.HasPrefix(header.Name, "/") {
			return fmt.Errorf("archive entry %q escapes the destination", header.Name)
		}
		target := filepath.Join(destinationDir, name)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		output, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(output, archive)
		closeErr := output.Close()
		if copyErr != nil {
			return fmt.Errorf("extracting %s: %w", header.Name, copyErr)
		}
		if closeErr != nil {
			return closeErr
		}
	}
}
