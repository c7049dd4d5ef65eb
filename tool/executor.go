// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/turnproxy/engine"
)

// DefaultKinds are the tool kinds routed to the shell runner.
var DefaultKinds = []string{"shell", "bash", "local_shell", "exec_command"}

const (
	DefaultShell          = "/bin/sh"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxTimeout     = 10 * time.Minute
	DefaultMaxOutputBytes = 64 * 1024

	// waitDelay bounds how long Wait keeps reading output after the
	// process group is killed; orphaned grandchildren may hold the
	// pipe open.
	waitDelay = 2 * time.Second
)

// passthroughVariables are copied from the proxy's environment into
// every command's environment.
var passthroughVariables = []string{
	"PATH",
	"HOME",
	"USER",
	"LANG",
	"LC_ALL",
	"TZ",
	"TERM",
	"TMPDIR",
	"SHELL",
}

// Config configures an Executor. Zero fields take the defaults above.
type Config struct {
	Kinds            []string
	Shell            string
	WorkingDirectory string
	DefaultTimeout   time.Duration
	MaxTimeout       time.Duration
	MaxOutputBytes   int
	Logger           *slog.Logger
}

// Executor runs tool calls.
type Executor struct {
	kinds            []string
	shell            string
	workingDirectory string
	defaultTimeout   time.Duration
	maxTimeout       time.Duration
	maxOutputBytes   int
	logger           *slog.Logger
	getenv           func(string) string
}

// NewExecutor returns an Executor.
func NewExecutor(config Config) *Executor {
	executor := &Executor{
		kinds:            config.Kinds,
		shell:            config.Shell,
		workingDirectory: config.WorkingDirectory,
		defaultTimeout:   config.DefaultTimeout,
		maxTimeout:       config.MaxTimeout,
		maxOutputBytes:   config.MaxOutputBytes,
		logger:           config.Logger,
		getenv:           os.Getenv,
	}
	if len(executor.kinds) == 0 {
		executor.kinds = DefaultKinds
	}
	if executor.shell == "" {
		executor.shell = DefaultShell
	}
	if executor.defaultTimeout <= 0 {
		executor.defaultTimeout = DefaultTimeout
	}
	if executor.maxTimeout <= 0 {
		executor.maxTimeout = DefaultMaxTimeout
	}
	if executor.maxTimeout < executor.defaultTimeout {
		executor.maxTimeout = executor.defaultTimeout
	}
	if executor.maxOutputBytes <= 0 {
		executor.maxOutputBytes = DefaultMaxOutputBytes
	}
	if executor.logger == nil {
		executor.logger = slog.Default()
	}
	executor.logger = executor.logger.With("component", "tool")
	return executor
}

// Request is one call plus the run context it executes in.
type Request struct {
	Call engine.ToolCall

	// WorkingDirectory is the run's workingDirectory option, used
	// when the call does not name one.
	WorkingDirectory string

	// Env overrides the sanitized environment.
	Env map[string]string
}

// Execute runs the call and returns its output. It never fails: every
// problem is reported in the output text.
func (e *Executor) Execute(ctx context.Context, request Request) (output engine.ToolOutput) {
	output.ID = request.Call.ID
	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Error("tool execution panicked", "call_id", request.Call.ID, "panic", recovered)
			output.Output = fmt.Sprintf("tool execution panicked: %v", recovered)
		}
	}()

	if !slices.Contains(e.kinds, request.Call.Kind) {
		e.logger.Warn("unsupported tool requested", "call_id", request.Call.ID, "kind", request.Call.Kind)
		output.Output = "unsupported tool: " + request.Call.Kind
		return output
	}

	arguments, err := parseArguments(request.Call.Arguments)
	if err != nil {
		output.Output = err.Error()
		return output
	}
	output.Output = e.runShell(ctx, request, arguments)
	return output
}

func (e *Executor) runShell(ctx context.Context, request Request, arguments shellArguments) string {
	timeout := e.defaultTimeout
	if arguments.Timeout > 0 {
		timeout = min(arguments.Timeout, e.maxTimeout)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var command *exec.Cmd
	if arguments.Argv != nil {
		command = exec.CommandContext(runCtx, arguments.Argv[0], arguments.Argv[1:]...)
	} else {
		command = exec.CommandContext(runCtx, e.shell, "-c", arguments.Script)
	}
	command.Dir = e.resolveDirectory(arguments.Workdir, request.WorkingDirectory)
	command.Env = e.environment(request.Env)
	command.Stdin = nil
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	command.Cancel = func() error {
		return unix.Kill(-command.Process.Pid, unix.SIGKILL)
	}
	command.WaitDelay = waitDelay

	captured := &cappedBuffer{limit: e.maxOutputBytes}
	command.Stdout = captured
	command.Stderr = captured

	logger := e.logger.With("call_id", request.Call.ID, "kind", request.Call.Kind)
	started := time.Now() //nolint:realclock // process runtime, bounded by the context deadline
	err := command.Run()
	duration := time.Since(started) //nolint:realclock // pairs with started

	switch {
	case err == nil:
		logger.Info("tool command finished", "duration", duration)
		return captured.String()

	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		logger.Warn("tool command timed out", "timeout", timeout)
		return withOutput(fmt.Sprintf("command timed out after %s", timeout), captured)

	case ctx.Err() != nil:
		logger.Warn("tool command cancelled", "error", ctx.Err())
		return withOutput("command cancelled", captured)
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		logger.Info("tool command failed", "duration", duration, "state", exitError.ProcessState.String())
		return withOutput(fmt.Sprintf("command failed (%s)", exitError.ProcessState.String()), captured)
	}
	logger.Warn("tool command did not start", "error", err)
	return fmt.Sprintf("failed to start command: %v", err)
}

func withOutput(summary string, captured *cappedBuffer) string {
	if text := captured.String(); text != "" {
		return summary + "\n" + text
	}
	return summary
}

// resolveDirectory picks the call's workdir, else the run's, else the
// executor default. A relative call workdir is taken relative to the
// run's or default directory.
func (e *Executor) resolveDirectory(callDirectory, runDirectory string) string {
	base := runDirectory
	if base == "" {
		base = e.workingDirectory
	}
	if callDirectory == "" {
		return base
	}
	if filepath.IsAbs(callDirectory) || base == "" {
		return callDirectory
	}
	return filepath.Join(base, callDirectory)
}

func (e *Executor) environment(overrides map[string]string) []string {
	merged := make(map[string]string, len(passthroughVariables)+len(overrides))
	for _, name := range passthroughVariables {
		if value := e.getenv(name); value != "" {
			merged[name] = value
		}
	}
	for name, value := range overrides {
		merged[name] = value
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	env := make([]string, 0, len(names))
	for _, name := range names {
		env = append(env, name+"="+merged[name])
	}
	return env
}
