// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock for tests. Time moves only through
// Advance, and due callbacks run synchronously inside it. Safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*scheduled
	changed *sync.Cond
}

type scheduled struct {
	at       time.Time
	callback func()
	settled  bool // fired or stopped
}

// Fake returns a FakeClock frozen at initial.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f for the Advance call that reaches now+d. A
// non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mu.Lock()
	entry := &scheduled{at: c.now.Add(d), callback: f}
	c.pending = append(c.pending, entry)
	c.changed.Broadcast()
	c.mu.Unlock()

	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if entry.settled {
			return false
		}
		entry.settled = true
		return true
	}}
}

// Advance moves the clock forward by d and runs every callback that
// comes due, earliest first. Callbacks must not call Advance.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*scheduled
	c.pending = slices.DeleteFunc(c.pending, func(entry *scheduled) bool {
		if entry.settled {
			return true
		}
		if entry.at.After(c.now) {
			return false
		}
		entry.settled = true
		due = append(due, entry)
		return true
	})
	c.mu.Unlock()

	slices.SortStableFunc(due, func(a, b *scheduled) int { return a.at.Compare(b.at) })
	for _, entry := range due {
		entry.callback()
	}
}

// WaitForTimers blocks until at least n callbacks are pending, so a
// test can advance past a timer another goroutine is about to set.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.countLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of callbacks that have neither fired
// nor been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countLocked()
}

func (c *FakeClock) countLocked() int {
	count := 0
	for _, entry := range c.pending {
		if !entry.settled {
			count++
		}
	}
	return count
}
