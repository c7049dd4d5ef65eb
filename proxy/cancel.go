// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"sync"
)

// Cancellation is the abort signal shared by one run. The run's engine
// stream is bound to Context; Abort cancels it. Tool commands are not
// bound to it and run to completion.
type Cancellation struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	aborted  bool
	finished bool
}

// NewCancellation returns a Cancellation whose context is derived
// from parent.
func NewCancellation(parent context.Context) *Cancellation {
	ctx, cancel := context.WithCancel(parent)
	return &Cancellation{ctx: ctx, cancel: cancel}
}

// Context is cancelled by Abort, by Release, or when the parent ends.
func (c *Cancellation) Context() context.Context { return c.ctx }

// Abort requests cancellation. Returns false without effect if the run
// already finished or was already aborted.
func (c *Cancellation) Abort() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted || c.finished {
		return false
	}
	c.aborted = true
	c.cancel()
	return true
}

// Aborted reports whether Abort took effect.
func (c *Cancellation) Aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

// Finish marks the run terminal and reports whether it was aborted
// first. Abort is a no-op afterwards.
func (c *Cancellation) Finish() (aborted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = true
	return c.aborted
}

// Release cancels the context without marking the run aborted.
func (c *Cancellation) Release() { c.cancel() }
