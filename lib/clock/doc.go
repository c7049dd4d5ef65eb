// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that needs the current time or a timeout takes a [Clock]
// instead of calling the time package. Production wiring uses [Real];
// tests use [Fake], which only moves when Advance is called:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	server := proxy.NewServer(proxy.ServerConfig{Clock: fake, ...})
//	// ... connect a client that never authenticates ...
//	fake.WaitForTimers(1)
//	fake.Advance(5 * time.Second) // handshake timer fires
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
