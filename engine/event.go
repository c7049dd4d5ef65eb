// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Engine event names as they appear on the wire.
const (
	NameSessionStarted   = "thread.started"
	NameTurnStarted      = "turn.started"
	NameContentDelta     = "item.delta"
	NameContentCompleted = "item.completed"
	NameActionRequired   = "turn.requires_action"
	NameTurnCompleted    = "turn.completed"
	NameTurnFailed       = "turn.failed"
	NameError            = "error"
)

// Event is one engine event. The set of implementations is closed.
type Event interface {
	// Raw is the event's JSON exactly as the engine sent it.
	Raw() json.RawMessage

	// Accept calls the Handler method for the concrete kind.
	Accept(handler Handler) error

	sealed()
}

// Handler has one method per event kind.
type Handler interface {
	SessionStarted(SessionStarted) error
	TurnStarted(TurnStarted) error
	ContentDelta(ContentDelta) error
	ContentCompleted(ContentCompleted) error
	ActionRequired(ActionRequired) error
	TurnCompleted(TurnCompleted) error
	TurnFailed(TurnFailed) error
	Unrecognized(Unrecognized) error
}

type raw json.RawMessage

func (r raw) Raw() json.RawMessage { return json.RawMessage(r) }
func (raw) sealed()                {}

// SessionStarted reports the id of the session the turn runs in.
type SessionStarted struct {
	raw
	SessionID string
}

// TurnStarted opens a turn.
type TurnStarted struct {
	raw
	RunID string
}

// ContentDelta carries incremental output for one item.
type ContentDelta struct {
	raw
	ItemID string
	Delta  string
}

// ContentCompleted carries a finished output item.
type ContentCompleted struct {
	raw
	Item json.RawMessage
}

// ActionRequired pauses the turn until outputs for every call are
// submitted.
type ActionRequired struct {
	raw
	RunID string
	Calls []ToolCall
}

// TurnCompleted ends the turn successfully.
type TurnCompleted struct {
	raw
	RunID string
	Usage json.RawMessage
}

// TurnFailed ends the turn with an engine-reported failure. Both
// turn.failed and error events decode to TurnFailed.
type TurnFailed struct {
	raw
	Message string
}

// Unrecognized is any event this package does not know. It is
// relayed but otherwise ignored.
type Unrecognized struct {
	raw
	Name string
}

func (e SessionStarted) Accept(h Handler) error   { return h.SessionStarted(e) }
func (e TurnStarted) Accept(h Handler) error      { return h.TurnStarted(e) }
func (e ContentDelta) Accept(h Handler) error     { return h.ContentDelta(e) }
func (e ContentCompleted) Accept(h Handler) error { return h.ContentCompleted(e) }
func (e ActionRequired) Accept(h Handler) error   { return h.ActionRequired(e) }
func (e TurnCompleted) Accept(h Handler) error    { return h.TurnCompleted(e) }
func (e TurnFailed) Accept(h Handler) error       { return h.TurnFailed(e) }
func (e Unrecognized) Accept(h Handler) error     { return h.Unrecognized(e) }

// IsTerminal reports whether event ends the turn.
func IsTerminal(event Event) bool {
	switch event.(type) {
	case TurnCompleted, TurnFailed:
		return true
	}
	return false
}

// Wire payloads. Field names follow the engine's JSON.
type (
	wireSessionStarted struct {
		ThreadID string `json:"thread_id"`
	}
	wireTurn struct {
		RunID string          `json:"run_id"`
		Usage json.RawMessage `json:"usage,omitempty"`
	}
	wireDelta struct {
		ItemID string `json:"item_id"`
		Delta  string `json:"delta"`
	}
	wireItem struct {
		Item json.RawMessage `json:"item"`
	}
	wireRequiresAction struct {
		RunID          string `json:"run_id"`
		RequiredAction *struct {
			Type              string `json:"type"`
			SubmitToolOutputs struct {
				ToolCalls []struct {
					ID       string `json:"id"`
					Type     string `json:"type"`
					Function struct {
						Name      string          `json:"name"`
						Arguments json.RawMessage `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"submit_tool_outputs"`
		} `json:"required_action"`
	}
	wireFailure struct {
		Message string `json:"message"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	wireType struct {
		Type string `json:"type"`
	}
)

// Decode parses one engine event. name is the SSE event name; when it
// is empty the payload's "type" field names the event. data must be a
// JSON object and is retained as the event's Raw value.
func Decode(name string, data []byte) (Event, error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) || len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("engine event %q: payload is not a JSON object", name)
	}
	body := raw(append([]byte(nil), data...))

	if name == "" {
		var typed wireType
		if err := json.Unmarshal(data, &typed); err != nil {
			return nil, fmt.Errorf("engine event: reading type: %w", err)
		}
		name = typed.Type
	}

	switch name {
	case NameSessionStarted:
		var wire wireSessionStarted
		if err := decodeInto(name, data, &wire); err != nil {
			return nil, err
		}
		if wire.ThreadID == "" {
			return nil, fmt.Errorf("engine event %s: missing thread_id", name)
		}
		return SessionStarted{raw: body, SessionID: wire.ThreadID}, nil

	case NameTurnStarted:
		var wire wireTurn
		if err := decodeInto(name, data, &wire); err != nil {
			return nil, err
		}
		return TurnStarted{raw: body, RunID: wire.RunID}, nil

	case NameContentDelta:
		var wire wireDelta
		if err := decodeInto(name, data, &wire); err != nil {
			return nil, err
		}
		return ContentDelta{raw: body, ItemID: wire.ItemID, Delta: wire.Delta}, nil

	case NameContentCompleted:
		var wire wireItem
		if err := decodeInto(name, data, &wire); err != nil {
			return nil, err
		}
		return ContentCompleted{raw: body, Item: wire.Item}, nil

	case NameActionRequired:
		return decodeActionRequired(body, data)

	case NameTurnCompleted:
		var wire wireTurn
		if err := decodeInto(name, data, &wire); err != nil {
			return nil, err
		}
		return TurnCompleted{raw: body, RunID: wire.RunID, Usage: wire.Usage}, nil

	case NameTurnFailed, NameError:
		var wire wireFailure
		if err := decodeInto(name, data, &wire); err != nil {
			return nil, err
		}
		message := wire.Message
		if wire.Error != nil && wire.Error.Message != "" {
			message = wire.Error.Message
		}
		if message == "" {
			message = "engine reported a failure without a message"
		}
		return TurnFailed{raw: body, Message: message}, nil
	}

	return Unrecognized{raw: body, Name: name}, nil
}

func decodeActionRequired(body raw, data []byte) (Event, error) {
	var wire wireRequiresAction
	if err := decodeInto(NameActionRequired, data, &wire); err != nil {
		return nil, err
	}
	if wire.RequiredAction == nil {
		return nil, fmt.Errorf("engine event %s: missing required_action", NameActionRequired)
	}
	if wire.RequiredAction.Type != "submit_tool_outputs" {
		return nil, fmt.Errorf("engine event %s: unsupported action type %q", NameActionRequired, wire.RequiredAction.Type)
	}

	wireCalls := wire.RequiredAction.SubmitToolOutputs.ToolCalls
	calls := make([]ToolCall, 0, len(wireCalls))
	for index, call := range wireCalls {
		if call.ID == "" {
			return nil, fmt.Errorf("engine event %s: tool call %d has no id", NameActionRequired, index)
		}
		calls = append(calls, ToolCall{
			ID:        call.ID,
			Kind:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return ActionRequired{raw: body, RunID: wire.RunID, Calls: calls}, nil
}

func decodeInto(name string, data []byte, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("engine event %s: %w", name, err)
	}
	return nil
}
