// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"fmt"
	"sync"

	"github.com/bureau-foundation/turnproxy/engine"
)

// SessionRegistry holds the engine session a connection's runs share.
// The id lives as long as the connection and is never shared with
// another one.
type SessionRegistry struct {
	engine engine.Engine

	// mu is held across StartSession so two runs never start two
	// sessions.
	mu sync.Mutex
	id string
}

// NewSessionRegistry returns an empty registry backed by eng.
func NewSessionRegistry(eng engine.Engine) *SessionRegistry {
	return &SessionRegistry{engine: eng}
}

// Resolve returns the session a run should use. A non-empty resumeID
// is adopted as is; the engine validates it when the turn starts.
// Otherwise the current session is reused, or a new one is started.
func (r *SessionRegistry) Resolve(ctx context.Context, resumeID string, options engine.Options, env map[string]string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if resumeID != "" {
		r.id = resumeID
		return r.id, nil
	}
	if r.id != "" {
		return r.id, nil
	}
	id, err := r.engine.StartSession(ctx, options, env)
	if err != nil {
		return "", fmt.Errorf("starting engine session: %w", err)
	}
	r.id = id
	return id, nil
}

// Adopt records a session id the engine announced mid-stream.
func (r *SessionRegistry) Adopt(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = id
}

// Current returns the session id, or "" before the first run.
func (r *SessionRegistry) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Forget drops the session id.
func (r *SessionRegistry) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = ""
}
