// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is the proxy's view of the remote execution engine.
//
// The contract has three calls: start a session ([Engine.StartSession]),
// run a streamed turn against it ([Engine.RunTurn]), and feed tool
// results back into the in-flight turn ([Stream.SubmitToolOutputs]).
// A turn is consumed by pulling [Event] values from [Stream.Next]
// until a terminal event arrives; cancelling the context passed to
// RunTurn unblocks a pending Next.
//
// Events form a closed sum type. Consumers that need to branch on the
// kind implement [Handler] and call [Event.Accept], so adding a kind
// breaks compilation of every consumer instead of silently falling
// into a default case. Every event keeps the exact JSON the engine
// sent ([Event.Raw]) so it can be relayed to a client verbatim.
//
// [Remote] implements the contract over HTTP with Server-Sent Events:
//
//	POST /v1/threads                                    -> {"id": ...}
//	POST /v1/threads/{id}/runs                          -> text/event-stream
//	POST /v1/threads/{id}/runs/{run}/submit_tool_outputs -> text/event-stream
//
// Package enginetest provides a scripted in-memory engine for tests.
package engine
