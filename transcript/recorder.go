// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bureau-foundation/turnproxy/frame"
	"github.com/bureau-foundation/turnproxy/lib/clock"
	"github.com/bureau-foundation/turnproxy/lib/codec"
)

// Frame directions.
const (
	Inbound  = "in"
	Outbound = "out"
)

// Record is one frame in a transcript.
type Record struct {
	Direction string `cbor:"dir" json:"dir"`

	// At is the record time in unix milliseconds.
	At int64 `cbor:"at" json:"at"`

	// Frame is the redacted frame as decoded JSON. Client lines that
	// were not JSON objects are recorded as {"invalid_bytes": n}.
	Frame map[string]any `cbor:"frame" json:"frame"`
}

// Config configures a Recorder.
type Config struct {
	// Directory receives the transcript file. Created with 0700 if
	// missing.
	Directory string

	Compression Compression

	// Clock stamps records. Nil uses the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Recorder appends frames to one transcript file. All methods are safe
// for concurrent use and no-ops on a nil Recorder.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	stream  streamWriter
	encoder *codec.Encoder
	clock   clock.Clock
	logger  *slog.Logger
	path    string
	failed  bool
	closed  bool
}

// Open creates a transcript file for connectionID.
func Open(config Config, connectionID string) (*Recorder, error) {
	if config.Directory == "" {
		return nil, fmt.Errorf("transcript: directory is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if err := os.MkdirAll(config.Directory, 0o700); err != nil {
		return nil, fmt.Errorf("transcript: creating directory: %w", err)
	}

	name := config.Clock.Now().UTC().Format("20060102T150405Z") + "-" + connectionID + config.Compression.extension()
	path := filepath.Join(config.Directory, name)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	stream, err := newStreamWriter(file, config.Compression)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("transcript: %w", err)
	}

	return &Recorder{
		file:    file,
		stream:  stream,
		encoder: codec.NewEncoder(stream),
		clock:   config.Clock,
		logger:  config.Logger.With("component", "transcript", "path", path),
		path:    path,
	}, nil
}

// Path returns the transcript file path.
func (r *Recorder) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// RecordClient records one raw line received from the client.
func (r *Recorder) RecordClient(line []byte) {
	if r == nil {
		return
	}
	var decoded map[string]any
	if err := json.Unmarshal(line, &decoded); err != nil || decoded == nil {
		decoded = map[string]any{"invalid_bytes": len(line)}
	}
	r.write(Inbound, redact(decoded))
}

// RecordServer records one frame sent to the client. Its signature
// matches [frame.Encoder.Observe].
func (r *Recorder) RecordServer(sent frame.ServerFrame) {
	if r == nil {
		return
	}
	data, err := json.Marshal(sent)
	if err != nil {
		r.fail(fmt.Errorf("encoding %s frame: %w", sent.Type, err))
		return
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		r.fail(fmt.Errorf("decoding %s frame: %w", sent.Type, err))
		return
	}
	r.write(Outbound, redact(decoded))
}

func (r *Recorder) write(direction string, decoded map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed || r.closed {
		return
	}
	record := Record{Direction: direction, At: r.clock.Now().UnixMilli(), Frame: decoded}
	if err := r.encoder.Encode(record); err != nil {
		r.failLocked(fmt.Errorf("encoding record: %w", err))
		return
	}
	if err := r.stream.Flush(); err != nil {
		r.failLocked(fmt.Errorf("flushing: %w", err))
	}
}

func (r *Recorder) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failLocked(err)
}

func (r *Recorder) failLocked(err error) {
	if r.failed {
		return
	}
	r.failed = true
	r.logger.Warn("transcript disabled after write failure", "error", err)
}

// Close finishes the compressed stream and closes the file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	streamErr := r.stream.Close()
	fileErr := r.file.Close()
	if streamErr != nil {
		return fmt.Errorf("transcript: closing stream: %w", streamErr)
	}
	if fileErr != nil {
		return fmt.Errorf("transcript: closing file: %w", fileErr)
	}
	return nil
}
