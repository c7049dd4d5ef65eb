// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEncoderWritesOneLinePerFrame(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer, 0)

	frames := []ServerFrame{
		Ready(),
		Pong(time.UnixMilli(1700000000123)),
		Event(json.RawMessage("{\n  \"type\": \"turn.started\"\n}")),
		Done("th_1"),
		Aborted(),
		Error("a run is already in progress"),
	}
	for _, frame := range frames {
		if err := encoder.Encode(frame); err != nil {
			t.Fatalf("Encode(%s): %v", frame.Type, err)
		}
	}

	lines := strings.Split(strings.TrimSuffix(buffer.String(), "\n"), "\n")
	want := []string{
		`{"type":"ready"}`,
		`{"type":"pong","at":1700000000123}`,
		`{"type":"event","event":{"type":"turn.started"}}`,
		`{"type":"done","threadId":"th_1"}`,
		`{"type":"aborted"}`,
		`{"type":"error","message":"a run is already in progress"}`,
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), buffer.String())
	}
	for index := range want {
		if lines[index] != want[index] {
			t.Errorf("line %d = %s, want %s", index, lines[index], want[index])
		}
	}
}

func TestEncoderConcurrentWritersDoNotInterleave(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer, 0)
	var seen int
	encoder.Observe(func(ServerFrame) { seen++ })

	var wait sync.WaitGroup
	for writer := 0; writer < 8; writer++ {
		wait.Add(1)
		go func() {
			defer wait.Done()
			for index := 0; index < 50; index++ {
				encoder.Encode(Error(strings.Repeat("x", 100)))
			}
		}()
	}
	wait.Wait()

	lines := strings.Split(strings.TrimSuffix(buffer.String(), "\n"), "\n")
	if len(lines) != 400 || seen != 400 {
		t.Fatalf("got %d lines, observed %d, want 400", len(lines), seen)
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Fatalf("interleaved line: %q", line)
		}
	}
}
