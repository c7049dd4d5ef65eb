// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/turnproxy/attachment"
	"github.com/bureau-foundation/turnproxy/engine"
	"github.com/bureau-foundation/turnproxy/engine/enginetest"
	"github.com/bureau-foundation/turnproxy/lib/testutil"
	"github.com/bureau-foundation/turnproxy/tool"
)

const frameTimeout = 5 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// recordingTools is a ToolRunner that answers every call with a fixed
// text and records the calls it saw.
type recordingTools struct {
	mu     sync.Mutex
	calls  []tool.Request
	before func(tool.Request)
}

func (r *recordingTools) Execute(ctx context.Context, request tool.Request) engine.ToolOutput {
	if r.before != nil {
		r.before(request)
	}
	r.mu.Lock()
	r.calls = append(r.calls, request)
	r.mu.Unlock()
	return engine.ToolOutput{ID: request.Call.ID, Output: "ran " + request.Call.ID}
}

func (r *recordingTools) Calls() []tool.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tool.Request(nil), r.calls...)
}

// testServer is a started Server plus its scripted engine.
type testServer struct {
	server *Server
	engine *enginetest.Engine
	config ServerConfig
}

// startServer starts a Server on an ephemeral loopback port. modify
// may adjust the config before the server is created.
func startServer(t *testing.T, modify func(*ServerConfig)) *testServer {
	t.Helper()
	scripted := enginetest.New()
	config := ServerConfig{
		ListenAddress: "127.0.0.1:0",
		Engine:        scripted,
		Tools:         &recordingTools{},
		Attachments:   attachment.Config{Directory: t.TempDir()},
		Logger:        discardLogger(),
	}
	if modify != nil {
		modify(&config)
	}
	server, err := NewServer(config)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return &testServer{server: server, engine: scripted, config: config}
}

// testClient is one socket to the server.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	frames *testutil.LineReader
}

// dial connects without reading anything.
func (s *testServer) dial(t *testing.T) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", s.server.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, frames: testutil.NewLineReader(conn)}
}

// connect dials and waits for the ready frame.
func (s *testServer) connect(t *testing.T) *testClient {
	t.Helper()
	client := s.dial(t)
	client.expect("ready")
	return client
}

// send writes one frame. Strings are sent verbatim; anything else is
// encoded as JSON.
func (c *testClient) send(message any) {
	c.t.Helper()
	var line []byte
	switch typed := message.(type) {
	case string:
		line = []byte(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			c.t.Fatalf("encoding frame: %v", err)
		}
		line = encoded
	}
	line = append(line, '\n')
	if _, err := c.conn.Write(line); err != nil {
		c.t.Fatalf("writing frame: %v", err)
	}
}

// next returns the next frame.
func (c *testClient) next() map[string]any {
	c.t.Helper()
	return c.frames.Next(c.t, frameTimeout)
}

// expect reads the next frame and fails unless it has the given type.
func (c *testClient) expect(frameType string) map[string]any {
	c.t.Helper()
	received := c.next()
	if received["type"] != frameType {
		c.t.Fatalf("got frame %v, want type %q", received, frameType)
	}
	return received
}

// until reads until a frame of the given type and returns it with the
// frames skipped on the way.
func (c *testClient) until(frameType string) (map[string]any, []map[string]any) {
	c.t.Helper()
	return c.frames.NextOfType(c.t, frameType, frameTimeout)
}

func runFrame(prompt string) map[string]any {
	return map[string]any{"type": "run", "prompt": prompt}
}
