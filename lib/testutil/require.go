// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch, failing the test if
// none arrives within timeout or ch is closed.
//
//	id := testutil.RequireReceive(t, started, 5*time.Second, "tool call never started")
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, context ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock // test hang prevention
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed", describe(context))
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing received within %v", describe(context), timeout)
	}
	var zero T
	return zero
}

// RequireSend delivers value on ch, failing the test if no receiver
// takes it within timeout.
func RequireSend[T any](t TB, ch chan<- T, value T, timeout time.Duration, context ...any) {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock // test hang prevention
	defer timer.Stop()
	select {
	case ch <- value:
	case <-timer.C:
		t.Fatalf("%s: send not accepted within %v", describe(context), timeout)
	}
}

// RequireClosed waits for ch to close, failing the test after timeout.
//
//	testutil.RequireClosed(t, shutdownDone, 5*time.Second, "shutdown")
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, context ...any) {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock // test hang prevention
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("%s: not closed within %v", describe(context), timeout)
	}
}

// describe renders optional failure context: nothing, a single value,
// or a format string and its arguments.
func describe(context []any) string {
	switch {
	case len(context) == 0:
		return "waiting on channel"
	case len(context) == 1:
		return fmt.Sprint(context[0])
	}
	if format, ok := context[0].(string); ok {
		return fmt.Sprintf(format, context[1:]...)
	}
	return fmt.Sprint(context...)
}
