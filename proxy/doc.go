// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proxy serves the turnproxy socket protocol: one client at a
// time drives conversational turns against an [engine.Engine], and the
// proxy resolves the tool calls the engine requests along the way.
//
// [Server] listens on TCP and holds a single connection slot. A socket
// that arrives while the slot is taken receives one error frame and is
// closed. When an auth token is configured ([DeriveToken]), the first
// frame must carry it; any handshake failure closes the socket without
// a reply.
//
// Each connection is served by one loop goroutine that owns all of its
// state. A reader goroutine feeds it decoded client frames, and at most
// one run goroutine executes a turn and reports its terminal frame
// back. The loop clears the active run before writing that frame, so
// "done", "aborted" and "error" always mean the connection is ready
// for the next run.
//
// A run moves through starting, streaming and tool_pending until it
// completes, fails, or is aborted. Engine events are relayed verbatim
// as they arrive. Tool calls in one batch run sequentially and their
// outputs are submitted together in call order. [Cancellation] carries
// the abort signal: it cancels the engine stream but lets a running
// tool command finish.
//
// [SessionRegistry] keeps the engine session for the life of the
// connection, so consecutive runs continue the same conversation
// unless the client names another one.
package proxy
