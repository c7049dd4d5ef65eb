// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/turnproxy/frame"
)

const errSlotTaken = "another client is already connected"

// connectionSlot admits one connection at a time.
type connectionSlot struct {
	holder atomic.Pointer[connection]
}

// claim occupies the slot for c. Returns false if another connection
// holds it.
func (s *connectionSlot) claim(c *connection) bool {
	return s.holder.CompareAndSwap(nil, c)
}

// release frees the slot if c holds it.
func (s *connectionSlot) release(c *connection) {
	s.holder.CompareAndSwap(c, nil)
}

// Server accepts client connections on TCP and serves one at a time.
type Server struct {
	config    ServerConfig
	handshake handshake
	logger    *slog.Logger

	listener net.Listener
	slot     connectionSlot

	// ctx is cancelled by Shutdown; every connection derives from it.
	ctx    context.Context
	cancel context.CancelFunc

	connections sync.WaitGroup
	acceptDone  chan struct{}
}

// NewServer validates config and returns a Server that is not yet
// listening.
func NewServer(config ServerConfig) (*Server, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config: config,
		handshake: handshake{
			token:    config.AuthToken,
			timeout:  config.HandshakeTimeout,
			maxBytes: config.MaxHandshakeBytes,
			clock:    config.Clock,
		},
		logger:     config.Logger.With("component", "proxy"),
		ctx:        ctx,
		cancel:     cancel,
		acceptDone: make(chan struct{}),
	}, nil
}

// Start listens and begins accepting connections in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.listener = listener
	s.logger.Info("proxy server started",
		"address", listener.Addr().String(),
		"auth", s.config.AuthToken != "",
	)
	go s.acceptLoop()
	return nil
}

// Addr returns the listen address. Valid after Start.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Error("accept failed", "error", err)
			}
			return
		}

		c := newConnection(s, conn)
		if !s.slot.claim(c) {
			s.reject(conn)
			continue
		}
		s.connections.Add(1)
		go func() {
			defer s.connections.Done()
			defer s.slot.release(c)
			s.handle(c)
		}()
	}
}

// reject turns away a socket that arrived while the slot is held.
func (s *Server) reject(conn net.Conn) {
	s.logger.Warn("rejecting connection: slot in use", "remote", conn.RemoteAddr().String())
	encoder := frame.NewEncoder(conn, rejectWriteTimeout)
	if err := encoder.Encode(frame.Error(errSlotTaken)); err != nil {
		s.logger.Debug("writing rejection frame", "error", err)
	}
	conn.Close()
}

func (s *Server) handle(c *connection) {
	if s.config.AuthToken != "" {
		if err := s.handshake.authenticate(c.conn, c.decoder, s.config.MaxFrameBytes); err != nil {
			c.logger.Warn("authentication failed", "error", err)
			c.conn.Close()
			return
		}
		c.logger.Debug("client authenticated")
	}
	c.serve(s.ctx)
}

// Shutdown stops accepting, closes the active connection after
// aborting its run, and waits for it to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down proxy server")
	var err error
	if s.listener != nil {
		if closeErr := s.listener.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = closeErr
		}
		<-s.acceptDone
	}
	s.cancel()

	if holder := s.slot.holder.Load(); holder != nil {
		// Unblocks a handshake still waiting on the client.
		holder.conn.SetReadDeadline(time.Now()) //nolint:realclock // kernel I/O deadline
	}

	done := make(chan struct{})
	go func() {
		s.connections.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, fmt.Errorf("waiting for connection to close: %w", ctx.Err()))
	}
}
