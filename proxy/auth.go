// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/turnproxy/frame"
	"github.com/bureau-foundation/turnproxy/lib/clock"
	"github.com/bureau-foundation/turnproxy/lib/secret"
)

const (
	// authSalt versions the token derivation. Changing it invalidates
	// every deployed client token.
	authSalt = "turnproxy.auth.v1"

	authLabel = "turnproxy-client"
)

var (
	errHandshakeTimeout = errors.New("auth handshake timed out")
	errWrongFrame       = errors.New("first frame is not an auth frame")
	errTokenMismatch    = errors.New("auth token mismatch")
)

// DeriveToken computes the handshake token clients must present for
// the shared secret.
func DeriveToken(sharedSecret *secret.Buffer) string {
	key := hkdf.Extract(sha256.New, sharedSecret.Bytes(), []byte(authSalt))
	defer clear(key)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(authLabel))
	return hex.EncodeToString(mac.Sum(nil))
}

// handshake bounds the auth exchange at the start of a connection.
type handshake struct {
	token    string
	timeout  time.Duration
	maxBytes int
	clock    clock.Clock
}

// authenticate reads the first frame and checks its token. Any failure
// means the caller must close conn without writing a frame. On success
// the decoder limit is raised to maxFrameBytes.
func (h handshake) authenticate(conn net.Conn, decoder *frame.Decoder, maxFrameBytes int) error {
	var timedOut atomic.Bool
	timer := h.clock.AfterFunc(h.timeout, func() {
		timedOut.Store(true)
		conn.Close()
	})
	defer timer.Stop()

	decoder.SetLimit(h.maxBytes)
	line, err := decoder.Next()
	if timedOut.Load() {
		return errHandshakeTimeout
	}
	if err != nil {
		return fmt.Errorf("reading auth frame: %w", err)
	}
	if !timer.Stop() && timedOut.Load() {
		return errHandshakeTimeout
	}

	message, err := frame.DecodeClient(line)
	if err != nil {
		return err
	}
	auth, ok := message.(frame.Auth)
	if !ok {
		return fmt.Errorf("%w (got %s)", errWrongFrame, message.Type())
	}
	if !hmac.Equal([]byte(auth.Token), []byte(h.token)) {
		return errTokenMismatch
	}

	decoder.SetLimit(maxFrameBytes)
	return nil
}
