// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package enginetest provides a scripted in-memory engine.Engine.
//
// Each call to RunTurn consumes the next queued Turn. A Turn is a list
// of segments: the first segment is streamed immediately, and each
// SubmitToolOutputs call advances to the next segment, the way a real
// engine continues a turn after tool outputs arrive.
//
//	scripted := enginetest.New()
//	scripted.Enqueue(
//		enginetest.Segment(
//			enginetest.TurnStarted("run_1"),
//			enginetest.ActionRequired("run_1", enginetest.Call("c1", "shell", `{"command":"pwd"}`)),
//		),
//		enginetest.Segment(enginetest.TurnCompleted("run_1")),
//	)
package enginetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/turnproxy/engine"
)

// Step is one scripted stream action.
type Step struct {
	event engine.Event
	gate  <-chan struct{}
	hang  bool
	err   error
}

// Emit returns a step that yields event.
func Emit(event engine.Event) Step { return Step{event: event} }

// Gate returns a step that blocks Next until gate is closed, then
// continues with the following step. Cancelling the turn's context
// unblocks it with the context's error.
func Gate(gate <-chan struct{}) Step { return Step{gate: gate} }

// Hang returns a step that blocks until the turn's context is
// cancelled.
func Hang() Step { return Step{hang: true} }

// Fail returns a step whose Next returns err.
func Fail(err error) Step { return Step{err: err} }

// Segment groups steps streamed between two tool submissions. Plain
// events may be passed directly.
func Segment(items ...any) []Step {
	steps := make([]Step, 0, len(items))
	for _, item := range items {
		switch typed := item.(type) {
		case Step:
			steps = append(steps, typed)
		case engine.Event:
			steps = append(steps, Emit(typed))
		default:
			panic(fmt.Sprintf("enginetest: Segment item %T is neither Step nor engine.Event", item))
		}
	}
	return steps
}

// Submission records one SubmitToolOutputs call.
type Submission struct {
	SessionID string
	Outputs   []engine.ToolOutput
}

// Engine is a scripted engine.Engine. Safe for concurrent use.
type Engine struct {
	mu            sync.Mutex
	turns         [][][]Step
	sessions      []string
	requests      []engine.TurnRequest
	submissions   []Submission
	closedStreams int

	// StartSessionErr, when set, fails every StartSession call.
	StartSessionErr error
}

// New returns an Engine with nothing queued.
func New() *Engine { return &Engine{} }

// Enqueue appends one turn made of the given segments.
func (e *Engine) Enqueue(segments ...[]Step) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = append(e.turns, segments)
}

// StartSession returns a fresh "thread_<uuid>" id.
func (e *Engine) StartSession(ctx context.Context, options engine.Options, env map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.StartSessionErr != nil {
		return "", e.StartSessionErr
	}
	id := "thread_" + uuid.NewString()
	e.sessions = append(e.sessions, id)
	return id, nil
}

// RunTurn streams the next queued turn.
func (e *Engine) RunTurn(ctx context.Context, request engine.TurnRequest) (engine.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, request)
	if len(e.turns) == 0 {
		return nil, errors.New("enginetest: no scripted turn queued")
	}
	segments := e.turns[0]
	e.turns = e.turns[1:]
	return &stream{ctx: ctx, owner: e, sessionID: request.SessionID, segments: segments}, nil
}

// Sessions returns every session id StartSession created.
func (e *Engine) Sessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sessions...)
}

// Requests returns every TurnRequest received, in order.
func (e *Engine) Requests() []engine.TurnRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.TurnRequest(nil), e.requests...)
}

// Submissions returns every SubmitToolOutputs call, in order.
func (e *Engine) Submissions() []Submission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Submission(nil), e.submissions...)
}

// ClosedStreams counts streams that were closed.
func (e *Engine) ClosedStreams() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closedStreams
}

type stream struct {
	ctx       context.Context
	owner     *Engine
	sessionID string
	segments  [][]Step
	segment   int
	position  int
	closed    bool
}

func (s *stream) Next() (engine.Event, error) {
	if s.closed {
		return nil, engine.ErrStreamClosed
	}
	for {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		if s.segment >= len(s.segments) || s.position >= len(s.segments[s.segment]) {
			return nil, io.EOF
		}
		step := s.segments[s.segment][s.position]
		s.position++

		switch {
		case step.hang:
			<-s.ctx.Done()
			return nil, s.ctx.Err()
		case step.gate != nil:
			select {
			case <-step.gate:
			case <-s.ctx.Done():
				return nil, s.ctx.Err()
			}
		case step.err != nil:
			return nil, step.err
		default:
			return step.event, nil
		}
	}
}

func (s *stream) SubmitToolOutputs(outputs []engine.ToolOutput) error {
	if s.closed {
		return engine.ErrStreamClosed
	}
	if err := s.ctx.Err(); err != nil {
		return err
	}
	s.owner.mu.Lock()
	s.owner.submissions = append(s.owner.submissions, Submission{
		SessionID: s.sessionID,
		Outputs:   append([]engine.ToolOutput(nil), outputs...),
	})
	s.owner.mu.Unlock()

	s.segment++
	s.position = 0
	return nil
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.owner.mu.Lock()
	s.owner.closedStreams++
	s.owner.mu.Unlock()
	return nil
}

// Event constructors. Each builds the wire JSON a real engine sends
// and decodes it, so Raw values are realistic.

// SessionStarted returns a thread.started event.
func SessionStarted(sessionID string) engine.Event {
	return mustDecode(engine.NameSessionStarted, map[string]any{"thread_id": sessionID})
}

// TurnStarted returns a turn.started event.
func TurnStarted(runID string) engine.Event {
	return mustDecode(engine.NameTurnStarted, map[string]any{"run_id": runID})
}

// Delta returns an item.delta event.
func Delta(itemID, text string) engine.Event {
	return mustDecode(engine.NameContentDelta, map[string]any{"item_id": itemID, "delta": text})
}

// Message returns an item.completed event carrying an agent message.
func Message(text string) engine.Event {
	return mustDecode(engine.NameContentCompleted, map[string]any{
		"item": map[string]any{"type": "agent_message", "text": text},
	})
}

// ToolCall is a call passed to ActionRequired.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Call builds a ToolCall whose arguments travel as a JSON-encoded
// string, the common engine form.
func Call(id, name, arguments string) ToolCall {
	return ToolCall{ID: id, Name: name, Arguments: arguments}
}

// ActionRequired returns a turn.requires_action event.
func ActionRequired(runID string, calls ...ToolCall) engine.Event {
	wireCalls := make([]map[string]any, 0, len(calls))
	for _, call := range calls {
		wireCalls = append(wireCalls, map[string]any{
			"id":   call.ID,
			"type": "function",
			"function": map[string]any{
				"name":      call.Name,
				"arguments": call.Arguments,
			},
		})
	}
	return mustDecode(engine.NameActionRequired, map[string]any{
		"run_id": runID,
		"required_action": map[string]any{
			"type":                "submit_tool_outputs",
			"submit_tool_outputs": map[string]any{"tool_calls": wireCalls},
		},
	})
}

// TurnCompleted returns a turn.completed event.
func TurnCompleted(runID string) engine.Event {
	return mustDecode(engine.NameTurnCompleted, map[string]any{"run_id": runID})
}

// TurnFailed returns a turn.failed event.
func TurnFailed(message string) engine.Event {
	return mustDecode(engine.NameTurnFailed, map[string]any{"error": map[string]any{"message": message}})
}

// Custom returns an event of an arbitrary name, decoded the way the
// engine client would.
func Custom(name string, payload map[string]any) engine.Event {
	return mustDecode(name, payload)
}

func mustDecode(name string, payload map[string]any) engine.Event {
	body := map[string]any{"type": name}
	for key, value := range payload {
		body[key] = value
	}
	data, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("enginetest: encoding %s: %v", name, err))
	}
	event, err := engine.Decode(name, data)
	if err != nil {
		panic(fmt.Sprintf("enginetest: decoding %s: %v", name, err))
	}
	return event
}
