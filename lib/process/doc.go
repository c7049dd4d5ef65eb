// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for turnproxy binaries.
// [Fatal] is the one place that writes raw text to stderr, for errors
// that happen before (or after) the structured logger exists, and it
// picks the exit code from whether the error was marked with [Usage].
package process
