// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the stream compression of a transcript file.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

// String returns the configuration name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// extension is the file suffix for transcripts with this compression.
func (c Compression) extension() string {
	switch c {
	case CompressionZstd:
		return ".cbor.zst"
	case CompressionLZ4:
		return ".cbor.lz4"
	default:
		return ".cbor"
	}
}

// ParseCompression parses a configuration name. The empty string
// selects zstd.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unknown transcript compression %q (want zstd, lz4, or none)", name)
	}
}

// compressionForPath infers the compression from a transcript file name.
func compressionForPath(path string) (Compression, error) {
	switch {
	case strings.HasSuffix(path, ".cbor.zst"):
		return CompressionZstd, nil
	case strings.HasSuffix(path, ".cbor.lz4"):
		return CompressionLZ4, nil
	case strings.HasSuffix(path, ".cbor"):
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("transcript %s: unrecognized file extension", path)
	}
}

// streamWriter is a compressing writer. Flush pushes buffered records
// to the underlying file so a crash loses at most the frame in flight.
type streamWriter interface {
	io.Writer
	Flush() error
	Close() error
}

type plainWriter struct{ io.Writer }

func (plainWriter) Flush() error { return nil }
func (plainWriter) Close() error { return nil }

func newStreamWriter(w io.Writer, compression Compression) (streamWriter, error) {
	switch compression {
	case CompressionNone:
		return plainWriter{w}, nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		return encoder, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported transcript compression: %s", compression)
	}
}

func newStreamReader(r io.Reader, compression Compression) (io.Reader, func(), error) {
	switch compression {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return decoder, decoder.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported transcript compression: %s", compression)
	}
}
