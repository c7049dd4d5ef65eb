// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tool executes the tool calls an engine requests mid-turn.
//
// Only whitelisted kinds run; every one of them is a shell command.
// Arguments are validated against a JSON schema before anything is
// started. Commands run in their own process group with a sanitized
// environment, a bounded timeout, and bounded captured output.
//
// [Executor.Execute] never returns an error. Validation failures,
// non-zero exits, timeouts, start failures, and panics all become the
// text of the returned output, so the engine sees what went wrong and
// the turn continues.
package tool
