// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"errors"
	"log/slog"
	"time"

	"github.com/bureau-foundation/turnproxy/attachment"
	"github.com/bureau-foundation/turnproxy/credential"
	"github.com/bureau-foundation/turnproxy/engine"
	"github.com/bureau-foundation/turnproxy/frame"
	"github.com/bureau-foundation/turnproxy/lib/clock"
	"github.com/bureau-foundation/turnproxy/transcript"
)

const (
	DefaultHandshakeTimeout  = 5 * time.Second
	DefaultMaxHandshakeBytes = 4096
	DefaultWriteTimeout      = 30 * time.Second

	// rejectWriteTimeout bounds the best-effort error frame written to
	// a socket turned away because the slot is taken.
	rejectWriteTimeout = time.Second
)

// ServerConfig holds configuration for creating a Server.
type ServerConfig struct {
	// ListenAddress is the TCP host:port to listen on. Port 0 picks
	// an ephemeral port; see Server.Addr.
	ListenAddress string

	// Engine runs turns. Required.
	Engine engine.Engine

	// Tools executes tool calls. Required.
	Tools ToolRunner

	// AuthToken is the token clients must send in their first frame
	// (see DeriveToken). Empty disables authentication.
	AuthToken string

	HandshakeTimeout  time.Duration
	MaxHandshakeBytes int

	// MaxFrameBytes bounds client frames after the handshake.
	MaxFrameBytes int

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// Attachments and Credentials configure the per-connection
	// materializer and credential injector. Their Logger fields are
	// replaced with the connection's logger.
	Attachments attachment.Config
	Credentials credential.InjectorConfig

	// Transcript enables per-connection transcripts when non-nil.
	Transcript *transcript.Config

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c *ServerConfig) applyDefaults() error {
	if c.ListenAddress == "" {
		return errors.New("listen address is required")
	}
	if c.Engine == nil {
		return errors.New("engine is required")
	}
	if c.Tools == nil {
		return errors.New("tool runner is required")
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.MaxHandshakeBytes <= 0 {
		c.MaxHandshakeBytes = DefaultMaxHandshakeBytes
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = frame.DefaultMaxFrameBytes
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}
