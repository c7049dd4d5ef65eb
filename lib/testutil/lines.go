// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// LineReader reads newline-delimited JSON objects from a connection
// on behalf of a test client.
type LineReader struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// NewLineReader wraps conn. The reader owns reads on conn from now on.
func NewLineReader(conn net.Conn) *LineReader {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &LineReader{conn: conn, scanner: scanner}
}

// Next reads one line and decodes it into a generic map, failing the
// test on timeout, EOF, or malformed JSON.
func (r *LineReader) Next(t TB, timeout time.Duration) map[string]any {
	t.Helper()
	line, err := r.read(timeout)
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(line, &frame); err != nil {
		t.Fatalf("decoding frame %q: %v", line, err)
	}
	return frame
}

// TryNext is Next for callers that expect failures, such as a client
// that may be turned away.
func (r *LineReader) TryNext(timeout time.Duration) (map[string]any, error) {
	line, err := r.read(timeout)
	if err != nil {
		return nil, err
	}
	var frame map[string]any
	if err := json.Unmarshal(line, &frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// NextOfType reads frames until one with the given "type" arrives and
// returns it along with every frame skipped on the way.
func (r *LineReader) NextOfType(t TB, frameType string, timeout time.Duration) (map[string]any, []map[string]any) {
	t.Helper()
	var skipped []map[string]any
	for {
		frame := r.Next(t, timeout)
		if frame["type"] == frameType {
			return frame, skipped
		}
		skipped = append(skipped, frame)
	}
}

// RequireEOF fails the test unless the peer closes the connection
// within timeout without sending another frame.
func (r *LineReader) RequireEOF(t TB, timeout time.Duration) {
	t.Helper()
	line, err := r.read(timeout)
	if err == nil {
		t.Fatalf("expected connection close, got frame %q", line)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("connection still open after %v", timeout)
	}
}

func (r *LineReader) read(timeout time.Duration) ([]byte, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil { //nolint:realclock // kernel I/O deadline
		return nil, err
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return r.scanner.Bytes(), nil
}
