// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/turnproxy/frame"
	"github.com/bureau-foundation/turnproxy/lib/clock"
)

func recordAll(t *testing.T, compression Compression) []Record {
	t.Helper()
	directory := t.TempDir()
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	recorder, err := Open(Config{Directory: directory, Compression: compression, Clock: fake}, "conn-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !strings.HasSuffix(recorder.Path(), compression.extension()) {
		t.Errorf("Path() = %q, want suffix %q", recorder.Path(), compression.extension())
	}

	recorder.RecordClient([]byte(`{"type":"auth","token":"s3cret"}`))
	recorder.RecordServer(frame.Ready())
	fake.Advance(250 * time.Millisecond)
	recorder.RecordClient([]byte(`{"type":"run","prompt":"hi","authJson":{"api_key":"sk-live"},"images":["data:image/png;base64,AAAABBBB",{"url":"https://example.com/a.png"}]}`))
	recorder.RecordServer(frame.Event(json.RawMessage(`{"type":"turn.completed"}`)))
	recorder.RecordClient([]byte(`not json`))
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader, err := OpenFile(recorder.Path())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer reader.Close()
	records, err := reader.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	return records
}

func TestRecorderRoundTrip(t *testing.T) {
	t.Parallel()
	for _, compression := range []Compression{CompressionZstd, CompressionLZ4, CompressionNone} {
		t.Run(compression.String(), func(t *testing.T) {
			t.Parallel()
			records := recordAll(t, compression)
			if len(records) != 5 {
				t.Fatalf("got %d records, want 5", len(records))
			}

			directions := []string{Inbound, Outbound, Inbound, Outbound, Inbound}
			for i, record := range records {
				if record.Direction != directions[i] {
					t.Errorf("record %d direction = %q, want %q", i, record.Direction, directions[i])
				}
			}
			if records[0].At != time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli() {
				t.Errorf("record 0 at = %d", records[0].At)
			}
			if records[2].At-records[0].At != 250 {
				t.Errorf("record 2 is %dms after record 0, want 250", records[2].At-records[0].At)
			}
			if records[1].Frame["type"] != "ready" {
				t.Errorf("record 1 = %v, want ready frame", records[1].Frame)
			}
			event, ok := records[3].Frame["event"].(map[string]any)
			if !ok || event["type"] != "turn.completed" {
				t.Errorf("record 3 = %v, want relayed event", records[3].Frame)
			}
		})
	}
}

func TestRecorderRedactsSecrets(t *testing.T) {
	t.Parallel()
	records := recordAll(t, CompressionZstd)

	if records[0].Frame["token"] != redacted {
		t.Errorf("auth token recorded as %v", records[0].Frame["token"])
	}
	run := records[2].Frame
	if run["authJson"] != redacted {
		t.Errorf("authJson recorded as %v", run["authJson"])
	}
	if run["prompt"] != "hi" {
		t.Errorf("prompt = %v, want hi", run["prompt"])
	}
	images, ok := run["images"].([]any)
	if !ok || len(images) != 2 {
		t.Fatalf("images = %v", run["images"])
	}
	if images[0] != "data:image/png;base64,[8 bytes]" {
		t.Errorf("inline image recorded as %v", images[0])
	}
	remote, ok := images[1].(map[string]any)
	if !ok || remote["url"] != "https://example.com/a.png" {
		t.Errorf("remote image recorded as %v", images[1])
	}

	invalid := records[4].Frame
	if len(invalid) != 1 || invalid["invalid_bytes"] == nil {
		t.Errorf("invalid line recorded as %v", invalid)
	}
}

func TestRecorderFileHasNoSecrets(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()
	recorder, err := Open(Config{Directory: directory, Compression: CompressionNone}, "conn-2")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	recorder.RecordClient([]byte(`{"type":"auth","token":"very-secret-token"}`))
	recorder.RecordClient([]byte(`{"type":"run","prompt":"x","authJson":"very-secret-blob"}`))
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(recorder.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, secret := range []string{"very-secret-token", "very-secret-blob"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("transcript contains %q", secret)
		}
	}
	info, err := os.Stat(recorder.Path())
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("transcript mode = %o, want 600", perm)
	}
}

func TestNilRecorder(t *testing.T) {
	t.Parallel()
	var recorder *Recorder
	recorder.RecordClient([]byte(`{"type":"ping"}`))
	recorder.RecordServer(frame.Pong(time.Now()))
	if err := recorder.Close(); err != nil {
		t.Errorf("Close on nil recorder: %v", err)
	}
	if recorder.Path() != "" {
		t.Errorf("Path on nil recorder = %q", recorder.Path())
	}
}

func TestRecordAfterCloseIsIgnored(t *testing.T) {
	t.Parallel()
	recorder, err := Open(Config{Directory: t.TempDir(), Compression: CompressionLZ4}, "conn-3")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	recorder.RecordServer(frame.Ready())
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	recorder.RecordServer(frame.Done("thread_1"))
	if err := recorder.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	reader, err := OpenFile(recorder.Path())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer reader.Close()
	records, err := reader.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}

func TestParseCompression(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]Compression{"": CompressionZstd, "zstd": CompressionZstd, "lz4": CompressionLZ4, "none": CompressionNone} {
		got, err := ParseCompression(name)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression(gzip) succeeded, want error")
	}
	if _, err := OpenFile(filepath.Join(t.TempDir(), "x.json")); err == nil {
		t.Error("OpenFile with unknown extension succeeded, want error")
	}
}
