// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrStreamClosed is returned by Stream methods after Close.
var ErrStreamClosed = errors.New("engine: stream closed")

// Engine starts sessions and runs streamed turns.
type Engine interface {
	// StartSession creates a new engine session (thread) and returns
	// its id.
	StartSession(ctx context.Context, options Options, env map[string]string) (string, error)

	// RunTurn starts a streamed turn. The returned Stream stays bound
	// to ctx: cancelling it unblocks Next and ends the turn. The
	// caller must Close the stream.
	RunTurn(ctx context.Context, request TurnRequest) (Stream, error)
}

// Stream is one in-flight turn.
type Stream interface {
	// Next returns the next event. Returns io.EOF when the engine
	// ends the stream, whether or not a terminal event was seen.
	Next() (Event, error)

	// SubmitToolOutputs answers the most recent ActionRequired event.
	// Subsequent Next calls read the engine's continuation. The
	// submission is bound to the context the turn was started with.
	SubmitToolOutputs(outputs []ToolOutput) error

	// Close releases the stream. Idempotent.
	Close() error
}

// Options are the per-run engine settings a client may supply. Unset
// fields are omitted so the engine applies its own defaults.
type Options struct {
	Model                string `json:"model,omitempty"`
	SandboxMode          string `json:"sandboxMode,omitempty"`
	ApprovalPolicy       string `json:"approvalPolicy,omitempty"`
	WorkingDirectory     string `json:"workingDirectory,omitempty"`
	ModelReasoningEffort string `json:"modelReasoningEffort,omitempty"`
	NetworkAccessEnabled *bool  `json:"networkAccessEnabled,omitempty"`
	WebSearchEnabled     *bool  `json:"webSearchEnabled,omitempty"`
	SkipGitRepoCheck     *bool  `json:"skipGitRepoCheck,omitempty"`
}

// Input item types.
const (
	InputText       = "text"
	InputLocalImage = "local_image"
	InputImageURL   = "image_url"
)

// Input is one item of turn input.
type Input struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

// TurnRequest describes one streamed turn.
type TurnRequest struct {
	SessionID string
	Input     []Input
	Options   Options

	// Env is the run's environment: client overrides plus the staged
	// credential's variables. It is used to resolve the engine bearer
	// token and is never sent to the engine.
	Env map[string]string
}

// ToolCall is one tool invocation requested by the engine.
type ToolCall struct {
	ID   string
	Kind string

	// Arguments is the raw arguments value: a JSON object, or a JSON
	// string holding an encoded object.
	Arguments json.RawMessage
}

// ToolOutput answers the ToolCall with the same ID.
type ToolOutput struct {
	ID     string `json:"tool_call_id"`
	Output string `json:"output"`
}
