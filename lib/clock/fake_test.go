// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"

	"github.com/bureau-foundation/turnproxy/lib/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresInDeadlineOrder(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)

	var order []string
	fake.AfterFunc(3*time.Second, func() { order = append(order, "late") })
	fake.AfterFunc(time.Second, func() { order = append(order, "early") })
	fake.AfterFunc(10*time.Second, func() { order = append(order, "never") })

	fake.Advance(2 * time.Second)
	if len(order) != 1 || order[0] != "early" {
		t.Fatalf("after 2s order = %v, want [early]", order)
	}
	fake.Advance(time.Second)
	if len(order) != 2 || order[1] != "late" {
		t.Fatalf("after 3s order = %v, want [early late]", order)
	}
	if !fake.Now().Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("Now = %v", fake.Now())
	}
	if fake.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", fake.PendingCount())
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)

	calls := 0
	timer := fake.AfterFunc(time.Second, func() { calls++ })
	if fake.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", fake.PendingCount())
	}
	if !timer.Stop() {
		t.Error("Stop on a pending timer returned false")
	}
	fake.Advance(2 * time.Second)
	if calls != 0 {
		t.Errorf("stopped callback ran %d times", calls)
	}
	if timer.Stop() {
		t.Error("second Stop returned true")
	}
}

func TestFakeAfterFuncNonPositiveRunsImmediately(t *testing.T) {
	t.Parallel()
	ran := false
	timer := Fake(epoch).AfterFunc(0, func() { ran = true })
	if !ran {
		t.Error("callback did not run")
	}
	if timer.Stop() {
		t.Error("Stop after an immediate run returned true")
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)

	fired := make(chan struct{})
	go fake.AfterFunc(time.Minute, func() { close(fired) })

	fake.WaitForTimers(1)
	fake.Advance(time.Minute)
	testutil.RequireClosed(t, fired, 5*time.Second, "callback never ran")
}
