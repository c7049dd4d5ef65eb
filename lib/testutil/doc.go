// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for turnproxy packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with a wall-clock fallback) so
// individual tests never block forever on a channel. [UniqueID]
// produces distinguishable identifiers without reading the clock.
// [LineReader] reads newline-delimited frames off a net.Conn with a
// deadline, which is how every socket-level proxy test observes the
// server.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
