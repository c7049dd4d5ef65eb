// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/bureau-foundation/turnproxy/attachment"
	"github.com/bureau-foundation/turnproxy/credential"
	"github.com/bureau-foundation/turnproxy/frame"
	"github.com/bureau-foundation/turnproxy/lib/netutil"
	"github.com/bureau-foundation/turnproxy/transcript"
)

const (
	errRunInProgress = "a run is already in progress"
	errEmptyRun      = "run requires a prompt or at least one image"
)

// inbound is one item from the reader goroutine: a decoded message, a
// protocol error the connection survives, or a fatal read error.
type inbound struct {
	message frame.ClientMessage
	err     error
	fatal   error
}

// activeRun is the run currently owned by a connection.
type activeRun struct {
	id           string
	cancellation *Cancellation
}

// runResult is what a run goroutine reports to the loop.
type runResult struct {
	run      *activeRun
	terminal frame.ServerFrame
}

// connection owns one accepted socket. All fields below are touched
// only by the serve goroutine, except where noted.
type connection struct {
	id     string
	server *Server
	conn   net.Conn
	logger *slog.Logger

	decoder    *frame.Decoder
	encoder    *frame.Encoder
	transcript *transcript.Recorder

	sessions     *SessionRegistry
	injector     *credential.Injector
	orchestrator *orchestrator

	active *activeRun

	// closing is closed when serve stops consuming from the reader.
	closing chan struct{}
}

func newConnection(server *Server, conn net.Conn) *connection {
	id := uuid.NewString()
	logger := server.logger.With("connection", id, "remote", conn.RemoteAddr().String())
	return &connection{
		id:      id,
		server:  server,
		conn:    conn,
		logger:  logger,
		decoder: frame.NewDecoder(conn, server.config.MaxFrameBytes),
		encoder: frame.NewEncoder(conn, server.config.WriteTimeout),
		closing: make(chan struct{}),
	}
}

// setup builds the per-connection components once the client is
// authenticated.
func (c *connection) setup() {
	config := c.server.config

	if config.Transcript != nil {
		transcriptConfig := *config.Transcript
		transcriptConfig.Logger = c.logger
		if transcriptConfig.Clock == nil {
			transcriptConfig.Clock = config.Clock
		}
		recorder, err := transcript.Open(transcriptConfig, c.id)
		if err != nil {
			c.logger.Warn("transcript disabled", "error", err)
		} else {
			c.transcript = recorder
			c.encoder.Observe(recorder.RecordServer)
		}
	}

	attachmentConfig := config.Attachments
	attachmentConfig.Logger = c.logger
	credentialConfig := config.Credentials
	credentialConfig.Logger = c.logger

	c.sessions = NewSessionRegistry(config.Engine)
	c.injector = credential.NewInjector(credentialConfig)
	c.orchestrator = &orchestrator{
		engine:       config.Engine,
		tools:        config.Tools,
		materializer: attachment.NewMaterializer(attachmentConfig),
		injector:     c.injector,
		sessions:     c.sessions,
		frames:       c.encoder,
		clock:        config.Clock,
		logger:       c.logger,
	}
}

// serve runs the connection loop until the client disconnects, a
// fatal error occurs, or ctx is cancelled. Runs and their tool
// commands live under a context that ends with the connection, so a
// dead client never holds the slot behind a running command.
func (c *connection) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.setup()
	defer c.teardown()

	messages := make(chan inbound)
	results := make(chan runResult)
	go c.readLoop(messages)

	if err := c.encoder.Encode(frame.Ready()); err != nil {
		c.logger.Warn("writing ready frame", "error", err)
		return
	}
	c.logger.Info("client connected")

	for {
		select {
		case item := <-messages:
			if item.fatal != nil {
				c.closeForError(item.fatal)
				c.drain(results, cancel)
				return
			}
			c.handle(ctx, item, results)

		case result := <-results:
			c.finishRun(result)

		case <-ctx.Done():
			c.logger.Info("closing connection for shutdown")
			c.drain(results, cancel)
			return
		}
	}
}

func (c *connection) handle(ctx context.Context, item inbound, results chan<- runResult) {
	if item.err != nil {
		var protocolError *frame.ProtocolError
		if errors.As(item.err, &protocolError) {
			c.logger.Warn("protocol error", "reason", protocolError.Reason)
		}
		c.send(frame.Error(item.err.Error()))
		return
	}

	switch message := item.message.(type) {
	case frame.Ping:
		c.send(frame.Pong(c.server.config.Clock.Now()))

	case frame.Abort:
		if c.active == nil {
			c.logger.Debug("abort with no active run ignored")
			return
		}
		if c.active.cancellation.Abort() {
			c.logger.Info("abort requested", "run", c.active.id)
		}

	case frame.Run:
		c.startRun(ctx, message, results)

	case frame.Auth:
		c.logger.Debug("auth frame after handshake ignored")
	}
}

func (c *connection) startRun(ctx context.Context, request frame.Run, results chan<- runResult) {
	if c.active != nil {
		c.send(frame.Error(errRunInProgress))
		return
	}
	if !request.HasInput() {
		c.send(frame.Error(errEmptyRun))
		return
	}

	run := &activeRun{id: uuid.NewString(), cancellation: NewCancellation(ctx)}
	c.active = run
	logger := c.logger.With("run", run.id)
	logger.Info("run started", "images", len(request.Images), "resume", request.ThreadID != "")

	go func() {
		var terminal frame.ServerFrame
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("run panicked", "panic", recovered)
				run.cancellation.Finish()
				terminal = frame.Error(fmt.Sprintf("internal error: %v", recovered))
			}
			results <- runResult{run: run, terminal: terminal}
		}()
		terminal = c.orchestrator.execute(ctx, request, run.cancellation, logger)
	}()
}

// finishRun clears the active run and then writes its terminal frame,
// so a client reacting to the frame can start the next run at once.
func (c *connection) finishRun(result runResult) {
	if c.active == result.run {
		c.active = nil
	}
	c.send(result.terminal)
}

// drain aborts the active run, if any, then cancels the connection
// context so a running tool command is killed rather than waited out,
// and waits for the run to release its resources. The abort comes
// first so the run reports aborted and submits nothing. Its terminal
// frame is not written.
func (c *connection) drain(results <-chan runResult, cancel context.CancelFunc) {
	if c.active == nil {
		cancel()
		return
	}
	c.active.cancellation.Abort()
	cancel()
	result := <-results
	c.logger.Info("run ended with connection", "run", result.run.id, "terminal", result.terminal.Type)
	c.active = nil
}

func (c *connection) send(sent frame.ServerFrame) {
	err := c.encoder.Encode(sent)
	switch {
	case err == nil:
	case netutil.IsDisconnect(err):
		c.logger.Debug("client gone before frame was written", "type", sent.Type)
	case netutil.IsTimeout(err):
		c.logger.Warn("client stalled, frame write timed out", "type", sent.Type)
		c.conn.Close()
	default:
		c.logger.Warn("writing frame", "type", sent.Type, "error", err)
	}
}

func (c *connection) closeForError(err error) {
	switch {
	case netutil.IsDisconnect(err):
		c.logger.Info("client disconnected")
	case errors.Is(err, frame.ErrFrameTooLarge):
		c.logger.Warn("closing connection: frame too large", "limit", c.server.config.MaxFrameBytes)
		c.send(frame.Error(fmt.Sprintf("frame exceeds %d bytes", c.server.config.MaxFrameBytes)))
	default:
		c.logger.Warn("closing connection after read error", "error", err)
	}
}

// readLoop decodes client frames until the socket fails.
func (c *connection) readLoop(messages chan<- inbound) {
	for {
		line, err := c.decoder.Next()
		if err != nil {
			select {
			case messages <- inbound{fatal: err}:
			case <-c.closing:
			}
			return
		}
		c.transcript.RecordClient(line)
		message, err := frame.DecodeClient(line)
		select {
		case messages <- inbound{message: message, err: err}:
		case <-c.closing:
			return
		}
	}
}

func (c *connection) teardown() {
	close(c.closing)
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("closing socket", "error", err)
	}
	if c.injector != nil {
		if err := c.injector.Close(); err != nil {
			c.logger.Warn("releasing staged credential", "error", err)
		}
	}
	if c.sessions != nil {
		c.sessions.Forget()
	}
	if err := c.transcript.Close(); err != nil {
		c.logger.Warn("closing transcript", "error", err)
	}
	c.logger.Info("connection closed")
}
