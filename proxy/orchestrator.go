// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/bureau-foundation/turnproxy/attachment"
	"github.com/bureau-foundation/turnproxy/credential"
	"github.com/bureau-foundation/turnproxy/engine"
	"github.com/bureau-foundation/turnproxy/frame"
	"github.com/bureau-foundation/turnproxy/lib/clock"
	"github.com/bureau-foundation/turnproxy/tool"
)

// ToolRunner executes one tool call. *tool.Executor implements it.
type ToolRunner interface {
	Execute(ctx context.Context, request tool.Request) engine.ToolOutput
}

// FrameWriter sends server frames. *frame.Encoder implements it.
type FrameWriter interface {
	Encode(frame frame.ServerFrame) error
}

// runState is a stage of one run.
type runState int

const (
	stateIdle runState = iota
	stateStarting
	stateStreaming
	stateToolPending
	stateCompleting
	stateAborting
	stateFailed
)

func (s runState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStarting:
		return "starting"
	case stateStreaming:
		return "streaming"
	case stateToolPending:
		return "tool_pending"
	case stateCompleting:
		return "completing"
	case stateAborting:
		return "aborting"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("runState(%d)", int(s))
	}
}

var (
	errStreamEnded  = errors.New("engine stream ended before the turn completed")
	errNoToolCalls  = errors.New("engine requested tool action with no tool calls")
	errRunCancelled = errors.New("run cancelled")
)

// turnFailedError carries the engine's own failure message through to
// the client unchanged.
type turnFailedError struct{ message string }

func (e *turnFailedError) Error() string { return e.message }

// orchestrator drives the runs of one connection. Runs never overlap:
// the connection loop starts one only when none is active.
type orchestrator struct {
	engine       engine.Engine
	tools        ToolRunner
	materializer *attachment.Materializer
	injector     *credential.Injector
	sessions     *SessionRegistry
	frames       FrameWriter
	clock        clock.Clock
	logger       *slog.Logger
}

// execute runs one turn to a terminal frame. Engine calls are bound to
// the cancellation's context. Tool commands are bound to ctx, the
// connection's context, so an abort lets a command finish but a
// disconnect kills it. The returned frame is done, aborted, or error,
// and every resource the run acquired is released before it returns.
func (o *orchestrator) execute(ctx context.Context, request frame.Run, cancellation *Cancellation, logger *slog.Logger) frame.ServerFrame {
	started := o.clock.Now()
	run := &turn{
		orchestrator: o,
		ctx:          ctx,
		cancellation: cancellation,
		request:      request,
		logger:       logger,
		state:        stateIdle,
	}
	defer run.cleanup()

	err := run.drive()
	aborted := cancellation.Finish()

	switch {
	case aborted:
		run.transition(stateAborting)
		logger.Info("run aborted", "duration", o.clock.Now().Sub(started))
		return frame.Aborted()

	case err == nil:
		logger.Info("run completed", "thread_id", o.sessions.Current(), "duration", o.clock.Now().Sub(started))
		return frame.Done(o.sessions.Current())

	default:
		run.transition(stateFailed)
		logger.Warn("run failed", "error", err, "state", run.state, "duration", o.clock.Now().Sub(started))
		return frame.Error(err.Error())
	}
}

// turn is the state of one run. It is the engine.Handler for the
// events of its stream.
type turn struct {
	orchestrator *orchestrator
	ctx          context.Context
	cancellation *Cancellation
	request      frame.Run
	logger       *slog.Logger

	state       runState
	attachments *attachment.Set
	stream      engine.Stream
	env         map[string]string

	pending   []engine.ToolCall
	completed bool
}

func (t *turn) transition(next runState) {
	if t.state == next {
		return
	}
	t.logger.Debug("run state", "from", t.state, "to", next)
	t.state = next
}

func (t *turn) drive() error {
	t.transition(stateStarting)
	if err := t.start(); err != nil {
		return err
	}

	t.transition(stateStreaming)
	for {
		if t.cancellation.Aborted() {
			return errRunCancelled
		}
		event, err := t.stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errStreamEnded
			}
			return fmt.Errorf("reading engine stream: %w", err)
		}
		if err := t.orchestrator.frames.Encode(frame.Event(event.Raw())); err != nil {
			return err
		}
		if err := event.Accept(t); err != nil {
			return err
		}
		if t.completed {
			t.transition(stateCompleting)
			return nil
		}
		if t.pending != nil {
			if err := t.resolveTools(); err != nil {
				return err
			}
		}
	}
}

// start prepares inputs and opens the engine stream.
func (t *turn) start() error {
	o := t.orchestrator
	request := t.request

	urls := make([]string, len(request.Images))
	for i, image := range request.Images {
		urls[i] = image.URL
	}
	attachments, err := o.materializer.Materialize(urls)
	if err != nil {
		return err
	}
	t.attachments = attachments

	if hasCredential(request.AuthJSON) {
		if _, err := o.injector.Stage(request.AuthJSON); err != nil {
			return err
		}
	}

	t.env = make(map[string]string, len(request.Env)+1)
	maps.Copy(t.env, request.Env)
	maps.Copy(t.env, o.injector.Environment())

	streamCtx := t.cancellation.Context()
	sessionID, err := o.sessions.Resolve(streamCtx, request.ThreadID, request.Options, t.env)
	if err != nil {
		return err
	}
	t.logger = t.logger.With("thread_id", sessionID)

	var input []engine.Input
	if request.Prompt != "" {
		input = append(input, engine.Input{Type: engine.InputText, Text: request.Prompt})
	}
	input = append(input, attachments.Inputs()...)

	if t.cancellation.Aborted() {
		return errRunCancelled
	}
	stream, err := o.engine.RunTurn(streamCtx, engine.TurnRequest{
		SessionID: sessionID,
		Input:     input,
		Options:   request.Options,
		Env:       t.env,
	})
	if err != nil {
		return fmt.Errorf("starting turn: %w", err)
	}
	t.stream = stream
	return nil
}

// resolveTools runs the pending calls in order and submits every
// output in one batch.
func (t *turn) resolveTools() error {
	t.transition(stateToolPending)
	calls := t.pending
	t.pending = nil

	outputs := make([]engine.ToolOutput, 0, len(calls))
	for _, call := range calls {
		if t.cancellation.Aborted() {
			return errRunCancelled
		}
		t.logger.Info("executing tool call", "call_id", call.ID, "kind", call.Kind)
		outputs = append(outputs, t.orchestrator.tools.Execute(t.ctx, tool.Request{
			Call:             call,
			WorkingDirectory: t.request.Options.WorkingDirectory,
			Env:              t.request.Env,
		}))
	}
	if t.cancellation.Aborted() {
		return errRunCancelled
	}
	if err := t.stream.SubmitToolOutputs(outputs); err != nil {
		return fmt.Errorf("submitting tool outputs: %w", err)
	}
	t.transition(stateStreaming)
	return nil
}

func (t *turn) cleanup() {
	if t.stream != nil {
		if err := t.stream.Close(); err != nil {
			t.logger.Warn("closing engine stream", "error", err)
		}
	}
	t.attachments.Cleanup()
	t.cancellation.Release()
}

func hasCredential(blob []byte) bool {
	return len(blob) > 0 && string(blob) != "null"
}

func (t *turn) SessionStarted(event engine.SessionStarted) error {
	t.orchestrator.sessions.Adopt(event.SessionID)
	return nil
}

func (t *turn) TurnStarted(engine.TurnStarted) error { return nil }

func (t *turn) ContentDelta(engine.ContentDelta) error { return nil }

func (t *turn) ContentCompleted(engine.ContentCompleted) error { return nil }

func (t *turn) ActionRequired(event engine.ActionRequired) error {
	if len(event.Calls) == 0 {
		return errNoToolCalls
	}
	t.pending = event.Calls
	return nil
}

func (t *turn) TurnCompleted(engine.TurnCompleted) error {
	t.completed = true
	return nil
}

func (t *turn) TurnFailed(event engine.TurnFailed) error {
	message := event.Message
	if message == "" {
		message = "engine reported the turn failed"
	}
	return &turnFailedError{message: message}
}

func (t *turn) Unrecognized(event engine.Unrecognized) error {
	t.logger.Debug("relaying unrecognized engine event", "name", event.Name)
	return nil
}
