// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Server frame types.
const (
	TypeReady   = "ready"
	TypePong    = "pong"
	TypeEvent   = "event"
	TypeDone    = "done"
	TypeAborted = "aborted"
	TypeError   = "error"
)

// ServerFrame is one frame sent to the client.
type ServerFrame struct {
	Type string `json:"type"`

	// At is the pong time in unix milliseconds.
	At int64 `json:"at,omitempty"`

	// Event is an engine event relayed verbatim.
	Event json.RawMessage `json:"event,omitempty"`

	// ThreadID names the session a completed run belongs to.
	ThreadID string `json:"threadId,omitempty"`

	Message string `json:"message,omitempty"`
}

// Ready returns the frame sent once a connection is accepted.
func Ready() ServerFrame { return ServerFrame{Type: TypeReady} }

// Pong answers a ping at the given time.
func Pong(at time.Time) ServerFrame { return ServerFrame{Type: TypePong, At: at.UnixMilli()} }

// Event relays one engine event.
func Event(raw json.RawMessage) ServerFrame { return ServerFrame{Type: TypeEvent, Event: raw} }

// Done reports a completed run.
func Done(threadID string) ServerFrame { return ServerFrame{Type: TypeDone, ThreadID: threadID} }

// Aborted reports an aborted run.
func Aborted() ServerFrame { return ServerFrame{Type: TypeAborted} }

// Error reports a failure.
func Error(message string) ServerFrame { return ServerFrame{Type: TypeError, Message: message} }

// deadlineWriter is implemented by net.Conn.
type deadlineWriter interface {
	SetWriteDeadline(t time.Time) error
}

// Encoder writes server frames. Safe for concurrent use; each frame is
// written with a single Write call.
type Encoder struct {
	mu           sync.Mutex
	writer       io.Writer
	writeTimeout time.Duration
	now          func() time.Time
	observer     func(ServerFrame)
}

// NewEncoder returns an Encoder writing to writer. When writer is a
// net.Conn and writeTimeout is positive, each write gets a deadline.
func NewEncoder(writer io.Writer, writeTimeout time.Duration) *Encoder {
	return &Encoder{writer: writer, writeTimeout: writeTimeout, now: time.Now} //nolint:realclock // kernel I/O deadline
}

// Observe registers a function called with every frame after it is
// written successfully. Used by the transcript recorder.
func (e *Encoder) Observe(observer func(ServerFrame)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = observer
}

// Encode writes one frame followed by a newline.
func (e *Encoder) Encode(frame ServerFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("frame: encoding %s frame: %w", frame.Type, err)
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()

	if conn, ok := e.writer.(deadlineWriter); ok && e.writeTimeout > 0 {
		conn.SetWriteDeadline(e.now().Add(e.writeTimeout)) //nolint:realclock // kernel I/O deadline
	}
	if _, err := e.writer.Write(data); err != nil {
		return fmt.Errorf("frame: writing %s frame: %w", frame.Type, err)
	}
	if e.observer != nil {
		e.observer(frame)
	}
	return nil
}
