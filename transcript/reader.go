// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/turnproxy/lib/codec"
)

// Reader iterates the records of a transcript file.
type Reader struct {
	file    *os.File
	release func()
	decoder *codec.Decoder
}

// OpenFile opens a transcript, inferring compression from its name.
func OpenFile(path string) (*Reader, error) {
	compression, err := compressionForPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	stream, release, err := newStreamReader(file, compression)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("transcript: %w", err)
	}
	return &Reader{file: file, release: release, decoder: codec.NewDecoder(stream)}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var record Record
	if err := r.decoder.Decode(&record); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("transcript: decoding record: %w", err)
	}
	return record, nil
}

// All reads every remaining record.
func (r *Reader) All() ([]Record, error) {
	var records []Record
	for {
		record, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
}

// Close releases the decompressor and the file.
func (r *Reader) Close() error {
	r.release()
	return r.file.Close()
}
