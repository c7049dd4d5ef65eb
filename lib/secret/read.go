// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// MaxFileBytes bounds what ReadFromPath will load. Credential files
// and age identities are a few hundred bytes; anything near this size
// is the wrong file.
const MaxFileBytes = 64 << 10

// ReadFromPath reads a secret from a file, trimming surrounding
// whitespace. The heap copy read from disk is zeroed before returning.
func ReadFromPath(path string) (*Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxFileBytes+1))
	defer Zero(data)
	if err != nil {
		return nil, fmt.Errorf("reading secret file %s: %w", path, err)
	}
	if len(data) > MaxFileBytes {
		return nil, fmt.Errorf("secret file %s exceeds %d bytes", path, MaxFileBytes)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret file %s is empty", path)
	}
	return NewFromBytes(trimmed)
}
