// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format is the on-disk container format of an archive.
type Format int

const (
	// FormatTarZstd is a tar stream compressed with zstd.
	FormatTarZstd Format = iota
	// FormatTarLZ4 is a tar stream in an LZ4 frame. Larger than zstd
	// but several times faster to decode.
	FormatTarLZ4
	// FormatTar is an uncompressed tar stream.
	FormatTar
)

func (f Format) String() string {
	switch f {
	case FormatTarZstd:
		return "tar_zstd"
	case FormatTarLZ4:
		return "tar_lz4"
	case FormatTar:
		return "tar"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Extension returns the file name suffix for the format.
func (f Format) Extension() string {
	switch f {
	case FormatTarLZ4:
		return ".tar.lz4"
	case FormatTar:
		return ".tar"
	default:
		return ".tar.zst"
	}
}

// ParseFormat parses a format name as printed by String.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "tar_zstd", "":
		return FormatTarZstd, nil
	case "tar_lz4":
		return FormatTarLZ4, nil
	case "tar":
		return FormatTar, nil
	default:
		return 0, fmt.Errorf("unknown archive format %q (want tar_zstd, tar_lz4 or tar)", name)
	}
}

// UnmarshalText lets configuration files name a format.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// compressor wraps w in the format's compression layer. Closing the
// returned writer flushes the compressed stream but does not close w.
func (f Format) compressor(w io.Writer) (io.WriteCloser, error) {
	switch f {
	case FormatTarZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		return encoder, nil
	case FormatTarLZ4:
		return lz4.NewWriter(w), nil
	case FormatTar:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unsupported archive format %s", f)
	}
}

// decompressor is the inverse of compressor.
func (f Format) decompressor(r io.Reader) (io.ReadCloser, error) {
	switch f {
	case FormatTarZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return decoder.IOReadCloser(), nil
	case FormatTarLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case FormatTar:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported archive format %s", f)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
