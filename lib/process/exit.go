// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes. Usage errors follow the sysexits-ish convention of 2 so
// supervisors can tell a bad invocation from a runtime failure.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// usageError marks an error caused by the invocation itself: bad
// flags, a config file that does not validate, a malformed environment
// override.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// Usage wraps err so [ExitCode] reports [ExitUsage]. A nil err stays
// nil.
func Usage(err error) error {
	if err == nil {
		return nil
	}
	return &usageError{err: err}
}

// ExitCode maps an error returned from run() to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var usage *usageError
	if errors.As(err, &usage) {
		return ExitUsage
	}
	return ExitFailure
}

// Fatal writes "error: err" to stderr and exits with [ExitCode].
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

func report(w io.Writer, err error) int {
	fmt.Fprintf(w, "error: %v\n", err)
	return ExitCode(err)
}
