// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// RemoteConfig configures a Remote engine client.
type RemoteConfig struct {
	// BaseURL is the engine's root URL, e.g. "http://127.0.0.1:8080".
	BaseURL string

	// HTTPClient defaults to a client without an overall timeout,
	// since streamed turns may run for a long time.
	HTTPClient *http.Client

	// Tokens resolves the bearer token per call.
	Tokens TokenSource

	// RequestTimeout bounds non-streaming calls. Default 60s.
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// Remote is an Engine reached over HTTP and Server-Sent Events.
type Remote struct {
	baseURL        *url.URL
	httpClient     *http.Client
	tokens         TokenSource
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewRemote validates config and returns a client.
func NewRemote(config RemoteConfig) (*Remote, error) {
	baseURL, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("engine: parsing base URL: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("engine: base URL %q must be http or https", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	requestTimeout := config.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Remote{
		baseURL:        baseURL,
		httpClient:     httpClient,
		tokens:         config.Tokens,
		requestTimeout: requestTimeout,
		logger:         logger.With("component", "engine"),
	}, nil
}

// StartSession creates a thread.
func (remote *Remote) StartSession(ctx context.Context, options Options, env map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, remote.requestTimeout)
	defer cancel()

	response, err := remote.post(ctx, remote.endpoint("threads"), map[string]any{"options": options}, env, false)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	var thread struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(response.Body, 1<<20)).Decode(&thread); err != nil {
		return "", fmt.Errorf("engine: decoding thread: %w", err)
	}
	if thread.ID == "" {
		return "", fmt.Errorf("engine: thread response has no id")
	}
	remote.logger.Debug("session started", "session_id", thread.ID)
	return thread.ID, nil
}

// RunTurn opens the streamed run.
func (remote *Remote) RunTurn(ctx context.Context, request TurnRequest) (Stream, error) {
	if request.SessionID == "" {
		return nil, fmt.Errorf("engine: turn request has no session id")
	}
	body := map[string]any{
		"input":   request.Input,
		"options": request.Options,
		"stream":  true,
	}
	response, err := remote.post(ctx, remote.endpoint("threads", request.SessionID, "runs"), body, request.Env, true)
	if err != nil {
		return nil, err
	}
	return &remoteStream{
		ctx:       ctx,
		remote:    remote,
		sessionID: request.SessionID,
		env:       request.Env,
		body:      response.Body,
		scanner:   newSSEScanner(response.Body),
	}, nil
}

func (remote *Remote) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments)+1)
	escaped = append(escaped, "v1")
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return remote.baseURL.String() + "/" + strings.Join(escaped, "/")
}

// post sends a JSON body. On success the caller closes the response
// body; on error it is already closed.
func (remote *Remote) post(ctx context.Context, endpoint string, payload any, env map[string]string, streaming bool) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("engine: marshaling request: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("engine: creating request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if streaming {
		request.Header.Set("Accept", "text/event-stream")
	}
	if token := remote.tokens.Resolve(env); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := remote.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("engine: sending request: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		defer response.Body.Close()
		return nil, readAPIError(response)
	}
	return response, nil
}

// APIError is a non-2xx engine response.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (err *APIError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("engine: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("engine: HTTP %d: %s", err.StatusCode, err.Message)
}

// readAPIError parses {"error":{"type","message"}}, falling back to
// the raw body.
func readAPIError(response *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))

	var wire struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Error.Message != "" {
		return &APIError{StatusCode: response.StatusCode, Type: wire.Error.Type, Message: wire.Error.Message}
	}
	return &APIError{StatusCode: response.StatusCode, Message: strings.TrimSpace(string(body))}
}

// remoteStream reads one run's SSE body. SubmitToolOutputs swaps in
// the continuation body.
type remoteStream struct {
	ctx       context.Context
	remote    *Remote
	sessionID string
	env       map[string]string

	mu      sync.Mutex
	body    io.ReadCloser
	scanner *sseScanner
	runID   string
	closed  bool
}

func (stream *remoteStream) Next() (Event, error) {
	stream.mu.Lock()
	scanner := stream.scanner
	closed := stream.closed
	stream.mu.Unlock()
	if closed {
		return nil, ErrStreamClosed
	}

	for scanner.Next() {
		sse := scanner.Event()
		event, err := Decode(sse.Name, []byte(sse.Data))
		if err != nil {
			return nil, err
		}
		switch typed := event.(type) {
		case TurnStarted:
			stream.setRunID(typed.RunID)
		case ActionRequired:
			stream.setRunID(typed.RunID)
		}
		return event, nil
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := stream.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		stream.mu.Lock()
		closed = stream.closed
		stream.mu.Unlock()
		if closed {
			return nil, ErrStreamClosed
		}
		return nil, fmt.Errorf("engine: reading stream: %w", err)
	}
	return nil, io.EOF
}

func (stream *remoteStream) setRunID(runID string) {
	if runID == "" {
		return
	}
	stream.mu.Lock()
	stream.runID = runID
	stream.mu.Unlock()
}

func (stream *remoteStream) SubmitToolOutputs(outputs []ToolOutput) error {
	stream.mu.Lock()
	runID := stream.runID
	closed := stream.closed
	stream.mu.Unlock()
	if closed {
		return ErrStreamClosed
	}
	if runID == "" {
		return errors.New("engine: no run id to submit tool outputs to")
	}

	endpoint := stream.remote.endpoint("threads", stream.sessionID, "runs", runID, "submit_tool_outputs")
	response, err := stream.remote.post(stream.ctx, endpoint, map[string]any{
		"tool_outputs": outputs,
		"stream":       true,
	}, stream.env, true)
	if err != nil {
		return err
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	if stream.closed {
		response.Body.Close()
		return ErrStreamClosed
	}
	previous := stream.body
	stream.body = response.Body
	stream.scanner = newSSEScanner(response.Body)
	previous.Close()
	return nil
}

func (stream *remoteStream) Close() error {
	stream.mu.Lock()
	defer stream.mu.Unlock()
	if stream.closed {
		return nil
	}
	stream.closed = true
	return stream.body.Close()
}
