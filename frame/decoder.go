// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"bytes"
	"errors"
	"io"
)

// DefaultMaxFrameBytes bounds one client frame. Inline attachments
// arrive base64-encoded inside run frames, so the limit is large.
const DefaultMaxFrameBytes = 64 * 1024 * 1024

// ErrFrameTooLarge is returned when a line exceeds the decoder limit.
var ErrFrameTooLarge = errors.New("frame: frame exceeds maximum size")

const readChunk = 32 * 1024

// Decoder extracts newline-terminated lines from a reader. A trailing
// "\r" is stripped and empty lines are skipped. Not safe for
// concurrent use.
type Decoder struct {
	reader  io.Reader
	limit   int
	buffer  []byte
	chunk   []byte
	scanned int
	err     error
}

// NewDecoder returns a Decoder reading from reader. limit <= 0 uses
// DefaultMaxFrameBytes.
func NewDecoder(reader io.Reader, limit int) *Decoder {
	if limit <= 0 {
		limit = DefaultMaxFrameBytes
	}
	return &Decoder{reader: reader, limit: limit}
}

// Next returns the next non-empty line without its terminator. The
// returned slice is owned by the caller. Returns io.EOF when the
// reader ends; bytes after the last newline are discarded.
func (d *Decoder) Next() ([]byte, error) {
	if d.err == ErrFrameTooLarge {
		return nil, d.err
	}
	for {
		if index := bytes.IndexByte(d.buffer[d.scanned:], '\n'); index >= 0 {
			end := d.scanned + index
			line := d.buffer[:end]
			rest := d.buffer[end+1:]

			if len(line) > d.limit {
				d.err = ErrFrameTooLarge
				return nil, d.err
			}
			line = bytes.TrimSuffix(line, []byte{'\r'})
			result := append([]byte(nil), line...)

			d.buffer = append(d.buffer[:0], rest...)
			d.scanned = 0
			if len(result) == 0 {
				continue
			}
			return result, nil
		}

		d.scanned = len(d.buffer)
		if len(d.buffer) > d.limit {
			d.err = ErrFrameTooLarge
			return nil, d.err
		}
		if d.err != nil {
			return nil, d.err
		}

		if d.chunk == nil {
			d.chunk = make([]byte, readChunk)
		}
		n, err := d.reader.Read(d.chunk)
		d.buffer = append(d.buffer, d.chunk[:n]...)
		if err != nil {
			d.err = err
		}
	}
}

// SetLimit changes the maximum line length for subsequent calls. The
// handshake reads with a small limit and raises it once the client is
// authenticated.
func (d *Decoder) SetLimit(limit int) {
	if limit <= 0 {
		limit = DefaultMaxFrameBytes
	}
	d.limit = limit
}
