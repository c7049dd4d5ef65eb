// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/bureau-foundation/turnproxy/engine"
)

// Client message types.
const (
	TypeAuth  = "auth"
	TypeRun   = "run"
	TypeAbort = "abort"
	TypePing  = "ping"
)

// ClientMessage is one decoded client frame: Auth, Run, Abort, or
// Ping.
type ClientMessage interface {
	// Type returns the wire "type" value.
	Type() string
}

// Auth carries the handshake token.
type Auth struct {
	Token string `json:"token"`
}

// Run starts a turn.
type Run struct {
	Prompt   string            `json:"prompt,omitempty"`
	Images   []Image           `json:"images,omitempty"`
	Options  engine.Options    `json:"options"`
	Env      map[string]string `json:"env,omitempty"`
	AuthJSON json.RawMessage   `json:"authJson,omitempty"`
	ThreadID string            `json:"threadId,omitempty"`
}

// Abort cancels the active run.
type Abort struct{}

// Ping asks for a pong.
type Ping struct{}

func (Auth) Type() string  { return TypeAuth }
func (Run) Type() string   { return TypeRun }
func (Abort) Type() string { return TypeAbort }
func (Ping) Type() string  { return TypePing }

// HasInput reports whether the run carries a prompt or any image.
func (r Run) HasInput() bool {
	return r.Prompt != "" || len(r.Images) > 0
}

// Image is one attachment reference. On the wire it is either a bare
// URL string or an object with a "url" field.
type Image struct {
	URL string `json:"url"`
}

// UnmarshalJSON accepts "url" or {"url": "url"}.
func (i *Image) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &i.URL)
	}
	var object struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &object); err != nil {
		return fmt.Errorf("image must be a URL string or an object with a url field: %w", err)
	}
	i.URL = object.URL
	return nil
}

// ProtocolError describes a client frame that could not be decoded.
// The connection reports it and keeps reading.
type ProtocolError struct {
	// Line is the offending frame, truncated for display.
	Line string

	// Reason explains the failure.
	Reason string

	Err error
}

const maxProtocolErrorLine = 200

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %q", e.Reason, e.Line)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func newProtocolError(line []byte, reason string, err error) *ProtocolError {
	shown := line
	if len(shown) > maxProtocolErrorLine {
		shown = shown[:maxProtocolErrorLine]
		// Back off to a rune boundary.
		for len(shown) > 0 && !utf8.Valid(shown) {
			shown = shown[:len(shown)-1]
		}
	}
	return &ProtocolError{Line: string(shown), Reason: reason, Err: err}
}

// DecodeClient parses one client line.
func DecodeClient(line []byte) (ClientMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, newProtocolError(line, "invalid JSON frame", err)
	}

	switch envelope.Type {
	case TypeAuth:
		var message Auth
		if err := json.Unmarshal(line, &message); err != nil {
			return nil, newProtocolError(line, "invalid auth frame", err)
		}
		return message, nil
	case TypeRun:
		var message Run
		if err := json.Unmarshal(line, &message); err != nil {
			return nil, newProtocolError(line, "invalid run frame", err)
		}
		return message, nil
	case TypeAbort:
		return Abort{}, nil
	case TypePing:
		return Ping{}, nil
	case "":
		return nil, newProtocolError(line, "frame has no type", nil)
	}
	return nil, newProtocolError(line, fmt.Sprintf("unknown frame type %q", envelope.Type), nil)
}
