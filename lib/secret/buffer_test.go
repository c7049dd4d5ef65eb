// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewFromBytesMovesSource(t *testing.T) {
	source := []byte(`{"OPENAI_API_KEY":"sk-test"}`)
	want := string(source)

	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes failed: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if buffer.Len() != len(want) {
		t.Errorf("Len() = %d, want %d", buffer.Len(), len(want))
	}
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source byte %d not zeroed", index)
		}
	}
}

func TestNewFromBytesRejectsEmpty(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Error("NewFromBytes(nil) succeeded, want error")
	}
}

func TestWriteTo(t *testing.T) {
	buffer, err := NewFromBytes([]byte("staged"))
	if err != nil {
		t.Fatalf("NewFromBytes failed: %v", err)
	}
	defer buffer.Close()

	var output bytes.Buffer
	written, err := buffer.WriteTo(&output)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if written != 6 || output.String() != "staged" {
		t.Errorf("WriteTo wrote %d bytes %q, want 6 bytes %q", written, output.String(), "staged")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteToPropagatesError(t *testing.T) {
	buffer, err := NewFromBytes([]byte("staged"))
	if err != nil {
		t.Fatalf("NewFromBytes failed: %v", err)
	}
	defer buffer.Close()

	if _, err := buffer.WriteTo(failingWriter{}); err == nil {
		t.Error("expected writer error")
	}
	// The buffer stays usable after a failed write.
	if buffer.String() != "staged" {
		t.Error("contents changed after failed write")
	}
}

func TestCloseIsIdempotentAndPanicsOnAccess(t *testing.T) {
	buffer, err := NewFromBytes([]byte("short-lived"))
	if err != nil {
		t.Fatalf("NewFromBytes failed: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if buffer.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", buffer.Len())
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on Bytes() after Close")
		}
		// The panic must not leave the buffer locked.
		if buffer.Len() != 0 {
			t.Error("Len() after recovered panic")
		}
	}()
	buffer.Bytes()
}
