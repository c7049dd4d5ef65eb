// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestReadFromPathTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth-secret")
	if err := os.WriteFile(path, []byte("  shared-secret\n"), 0600); err != nil {
		t.Fatal(err)
	}

	buffer, err := ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath failed: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != "shared-secret" {
		t.Errorf("ReadFromPath = %q, want %q", got, "shared-secret")
	}
}

func TestReadFromPathErrors(t *testing.T) {
	directory := t.TempDir()
	blank := filepath.Join(directory, "blank")
	if err := os.WriteFile(blank, []byte(" \n\t"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadFromPath(blank); err == nil {
		t.Error("whitespace-only file: expected error")
	}
	if _, err := ReadFromPath(filepath.Join(directory, "missing")); err == nil {
		t.Error("missing file: expected error")
	}
}

func TestReadFromPathRejectsOversizeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), MaxFileBytes+1), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFromPath(path); err == nil {
		t.Error("oversize file: expected error")
	}
}
