// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/turnproxy/attachment"
	"github.com/bureau-foundation/turnproxy/credential"
	"github.com/bureau-foundation/turnproxy/engine"
	"github.com/bureau-foundation/turnproxy/engine/enginetest"
	"github.com/bureau-foundation/turnproxy/frame"
	"github.com/bureau-foundation/turnproxy/lib/clock"
	"github.com/bureau-foundation/turnproxy/tool"
)

// frameLog is a FrameWriter that keeps every frame.
type frameLog struct {
	mu     sync.Mutex
	frames []frame.ServerFrame
}

func (l *frameLog) Encode(sent frame.ServerFrame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, sent)
	return nil
}

func (l *frameLog) eventTypes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var types []string
	for _, sent := range l.frames {
		var event struct {
			Type string `json:"type"`
		}
		json.Unmarshal(sent.Event, &event)
		types = append(types, event.Type)
	}
	return types
}

type orchestratorHarness struct {
	orchestrator *orchestrator
	engine       *enginetest.Engine
	tools        *recordingTools
	frames       *frameLog
	injector     *credential.Injector
	attachments  string
}

func newOrchestratorHarness(t *testing.T) *orchestratorHarness {
	t.Helper()
	scripted := enginetest.New()
	tools := &recordingTools{}
	frames := &frameLog{}
	attachments := t.TempDir()
	injector := credential.NewInjector(credential.InjectorConfig{Directory: t.TempDir(), Logger: discardLogger()})
	t.Cleanup(func() { injector.Close() })
	return &orchestratorHarness{
		orchestrator: &orchestrator{
			engine:       scripted,
			tools:        tools,
			materializer: attachment.NewMaterializer(attachment.Config{Directory: attachments, Logger: discardLogger()}),
			injector:     injector,
			sessions:     NewSessionRegistry(scripted),
			frames:       frames,
			clock:        clock.Fake(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
			logger:       discardLogger(),
		},
		engine:      scripted,
		tools:       tools,
		frames:      frames,
		injector:    injector,
		attachments: attachments,
	}
}

func (h *orchestratorHarness) execute(request frame.Run) frame.ServerFrame {
	return h.executeWith(request, NewCancellation(context.Background()))
}

func (h *orchestratorHarness) executeWith(request frame.Run, cancellation *Cancellation) frame.ServerFrame {
	return h.orchestrator.execute(context.Background(), request, cancellation, discardLogger())
}

func TestOrchestratorCompletes(t *testing.T) {
	t.Parallel()
	h := newOrchestratorHarness(t)
	h.engine.Enqueue(enginetest.Segment(
		enginetest.SessionStarted("thread_announced"),
		enginetest.TurnStarted("run_1"),
		enginetest.Message("hi"),
		enginetest.TurnCompleted("run_1"),
	))

	terminal := h.execute(frame.Run{Prompt: "hello"})
	if terminal.Type != frame.TypeDone || terminal.ThreadID != "thread_announced" {
		t.Errorf("terminal = %+v, want done for thread_announced", terminal)
	}
	want := []string{"thread.started", "turn.started", "item.completed", "turn.completed"}
	if got := h.frames.eventTypes(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("relayed events = %v, want %v", got, want)
	}
	if h.engine.ClosedStreams() != 1 {
		t.Errorf("stream not closed")
	}
}

func TestOrchestratorZeroCallActionFails(t *testing.T) {
	t.Parallel()
	h := newOrchestratorHarness(t)
	h.engine.Enqueue(enginetest.Segment(
		enginetest.TurnStarted("run_1"),
		enginetest.ActionRequired("run_1"),
		enginetest.TurnCompleted("run_1"),
	))

	terminal := h.execute(frame.Run{Prompt: "tools?"})
	if terminal.Type != frame.TypeError || terminal.Message != errNoToolCalls.Error() {
		t.Errorf("terminal = %+v, want %q", terminal, errNoToolCalls)
	}
	if len(h.engine.Submissions()) != 0 {
		t.Errorf("empty tool batch was submitted")
	}
}

func TestOrchestratorStreamEndsEarly(t *testing.T) {
	t.Parallel()
	h := newOrchestratorHarness(t)
	h.engine.Enqueue(enginetest.Segment(enginetest.TurnStarted("run_1")))

	terminal := h.execute(frame.Run{Prompt: "x"})
	if terminal.Type != frame.TypeError || terminal.Message != errStreamEnded.Error() {
		t.Errorf("terminal = %+v, want %q", terminal, errStreamEnded)
	}
}

func TestOrchestratorEngineError(t *testing.T) {
	t.Parallel()
	h := newOrchestratorHarness(t)
	h.engine.Enqueue(enginetest.Segment(enginetest.TurnStarted("run_1"), enginetest.Fail(errors.New("connection reset"))))

	terminal := h.execute(frame.Run{Prompt: "x"})
	if terminal.Type != frame.TypeError || !strings.Contains(terminal.Message, "connection reset") {
		t.Errorf("terminal = %+v", terminal)
	}
}

func TestOrchestratorEngineFailureRemovesAttachments(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		last enginetest.Step
	}{
		{"turn failed", enginetest.Emit(enginetest.TurnFailed("model overloaded"))},
		{"stream error", enginetest.Fail(errors.New("connection reset"))},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			h := newOrchestratorHarness(t)
			h.engine.Enqueue(enginetest.Segment(enginetest.TurnStarted("run_1"), test.last))
			image := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))

			terminal := h.execute(frame.Run{Prompt: "describe", Images: []frame.Image{{URL: image}}})
			if terminal.Type != frame.TypeError {
				t.Fatalf("terminal = %+v, want error", terminal)
			}

			var staged string
			for _, input := range h.engine.Requests()[0].Input {
				if input.Type == "local_image" {
					staged = input.Path
				}
			}
			if filepath.Dir(staged) != h.attachments {
				t.Fatalf("engine saw image path %q, want a file in %s", staged, h.attachments)
			}
			entries, err := os.ReadDir(h.attachments)
			if err != nil || len(entries) != 0 {
				t.Errorf("attachment directory after failed run: %v, %v", entries, err)
			}
		})
	}
}

func TestOrchestratorSessionStartFailure(t *testing.T) {
	t.Parallel()
	h := newOrchestratorHarness(t)
	h.engine.StartSessionErr = errors.New("unauthorized")

	terminal := h.execute(frame.Run{Prompt: "x"})
	if terminal.Type != frame.TypeError || !strings.Contains(terminal.Message, "starting engine session: unauthorized") {
		t.Errorf("terminal = %+v", terminal)
	}
	if len(h.engine.Requests()) != 0 {
		t.Errorf("turn started without a session")
	}
}

func TestOrchestratorBadAttachment(t *testing.T) {
	t.Parallel()
	h := newOrchestratorHarness(t)
	good := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png"))

	terminal := h.execute(frame.Run{Images: []frame.Image{{URL: good}, {URL: "data:image/png;base64,"}}})
	if terminal.Type != frame.TypeError || !strings.HasPrefix(terminal.Message, "attachment 1:") {
		t.Errorf("terminal = %+v, want attachment 1 error", terminal)
	}
	entries, _ := os.ReadDir(h.attachments)
	if len(entries) != 0 {
		t.Errorf("attachment files left behind: %v", entries)
	}
}

func TestOrchestratorStagesCredential(t *testing.T) {
	t.Parallel()
	h := newOrchestratorHarness(t)
	h.engine.Enqueue(enginetest.Segment(enginetest.TurnCompleted("run_1")))

	terminal := h.execute(frame.Run{
		Prompt:   "with credentials",
		Env:      map[string]string{"TEAM": "blue"},
		AuthJSON: json.RawMessage(`{"api_key": "sk-test"}`),
	})
	if terminal.Type != frame.TypeDone {
		t.Fatalf("terminal = %+v", terminal)
	}

	env := h.engine.Requests()[0].Env
	if env["TEAM"] != "blue" {
		t.Errorf("client env lost: %v", env)
	}
	home := env[credential.DefaultHomeEnv]
	if home == "" {
		t.Fatalf("env %v has no %s", env, credential.DefaultHomeEnv)
	}
	data, err := os.ReadFile(filepath.Join(home, credential.AuthFileName))
	if err != nil {
		t.Fatalf("reading staged credential: %v", err)
	}
	if string(data) != `{"api_key":"sk-test"}` {
		t.Errorf("staged credential = %s", data)
	}
}

func TestOrchestratorToolsUseRunContext(t *testing.T) {
	t.Parallel()
	h := newOrchestratorHarness(t)
	h.engine.Enqueue(
		enginetest.Segment(enginetest.ActionRequired("run_1", enginetest.Call("call_1", "shell", `{"command":"ls"}`))),
		enginetest.Segment(enginetest.TurnCompleted("run_1")),
	)

	terminal := h.execute(frame.Run{
		Prompt:  "x",
		Env:     map[string]string{"LANG": "C"},
		Options: engine.Options{WorkingDirectory: "/srv/project"},
	})
	if terminal.Type != frame.TypeDone {
		t.Fatalf("terminal = %+v", terminal)
	}
	calls := h.tools.Calls()
	if len(calls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(calls))
	}
	if calls[0].WorkingDirectory != "/srv/project" || calls[0].Env["LANG"] != "C" {
		t.Errorf("tool request = %+v", calls[0])
	}
}

func TestOrchestratorAbortBetweenToolCalls(t *testing.T) {
	t.Parallel()
	h := newOrchestratorHarness(t)
	h.engine.Enqueue(
		enginetest.Segment(enginetest.ActionRequired("run_1",
			enginetest.Call("call_1", "shell", `{"command":"one"}`),
			enginetest.Call("call_2", "shell", `{"command":"two"}`),
		)),
		enginetest.Segment(enginetest.TurnCompleted("run_1")),
	)
	cancellation := NewCancellation(context.Background())
	h.tools.before = func(request tool.Request) {
		if request.Call.ID == "call_1" {
			cancellation.Abort()
		}
	}

	terminal := h.executeWith(frame.Run{Prompt: "x"}, cancellation)
	if terminal.Type != frame.TypeAborted {
		t.Errorf("terminal = %+v, want aborted", terminal)
	}
	if calls := h.tools.Calls(); len(calls) != 1 {
		t.Errorf("tool calls after abort = %d, want only the first", len(calls))
	}
	if len(h.engine.Submissions()) != 0 {
		t.Errorf("outputs submitted after abort")
	}
	if cancellation.Abort() {
		t.Error("Abort succeeded after the run finished")
	}
}

func TestOrchestratorAbortBeforeStart(t *testing.T) {
	t.Parallel()
	h := newOrchestratorHarness(t)
	cancellation := NewCancellation(context.Background())
	cancellation.Abort()

	terminal := h.executeWith(frame.Run{Prompt: "x"}, cancellation)
	if terminal.Type != frame.TypeAborted {
		t.Errorf("terminal = %+v, want aborted", terminal)
	}
	if len(h.engine.Requests()) != 0 {
		t.Errorf("turn started after abort")
	}
}
