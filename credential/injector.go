// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/turnproxy/lib/sealed"
	"github.com/bureau-foundation/turnproxy/lib/secret"
)

// DefaultHomeEnv is the variable pointed at the staged directory.
const DefaultHomeEnv = "CODEX_HOME"

// AuthFileName is the file written inside the staged directory.
const AuthFileName = "auth.json"

// InjectorConfig configures an Injector.
type InjectorConfig struct {
	// HomeEnv defaults to DefaultHomeEnv.
	HomeEnv string

	// Directory is the parent of staged directories. Empty uses
	// os.TempDir().
	Directory string

	// Identity decrypts sealed blobs. Borrowed, not closed. Nil
	// rejects sealed blobs.
	Identity *secret.Buffer

	Logger *slog.Logger
}

// Injector stages one credential at a time for a connection. Not safe
// for concurrent use; the connection's run goroutine owns it.
type Injector struct {
	homeEnv   string
	directory string
	identity  *secret.Buffer
	logger    *slog.Logger

	staged string
}

// NewInjector returns an Injector with nothing staged.
func NewInjector(config InjectorConfig) *Injector {
	homeEnv := config.HomeEnv
	if homeEnv == "" {
		homeEnv = DefaultHomeEnv
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{
		homeEnv:   homeEnv,
		directory: config.Directory,
		identity:  config.Identity,
		logger:    logger.With("component", "credential"),
	}
}

// Stage replaces the staged credential with blob and returns the
// environment additions that point at it. The previous credential is
// released first, even if staging the new one fails.
//
// blob is a JSON object (written compacted), a JSON string (written
// verbatim), or a JSON string holding armored age ciphertext
// (decrypted with the configured identity).
func (i *Injector) Stage(blob json.RawMessage) (map[string]string, error) {
	i.release()

	contents, err := i.decodeBlob(blob)
	if err != nil {
		return nil, err
	}
	defer contents.Close()

	directory, err := os.MkdirTemp(i.directory, "turnproxy-credential-*")
	if err != nil {
		return nil, fmt.Errorf("creating credential directory: %w", err)
	}
	if err := os.Chmod(directory, 0o700); err != nil {
		os.RemoveAll(directory)
		return nil, fmt.Errorf("restricting credential directory: %w", err)
	}

	if err := writeSecretFile(filepath.Join(directory, AuthFileName), contents); err != nil {
		os.RemoveAll(directory)
		return nil, err
	}

	i.staged = directory
	i.logger.Debug("credential staged", "directory", directory)
	return i.Environment(), nil
}

// Environment returns the additions for the staged credential, or an
// empty map when nothing is staged.
func (i *Injector) Environment() map[string]string {
	if i.staged == "" {
		return map[string]string{}
	}
	return map[string]string{i.homeEnv: i.staged}
}

// Close releases the staged credential. Idempotent.
func (i *Injector) Close() error {
	i.release()
	return nil
}

func (i *Injector) release() {
	if i.staged == "" {
		return
	}
	directory := i.staged
	i.staged = ""
	if err := os.RemoveAll(directory); err != nil {
		i.logger.Warn("removing staged credential failed", "directory", directory, "error", err)
	}
}

func (i *Injector) decodeBlob(blob json.RawMessage) (*secret.Buffer, error) {
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) == 0 {
		return nil, errors.New("authJson is empty")
	}

	switch trimmed[0] {
	case '{':
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return nil, fmt.Errorf("authJson is not valid JSON: %w", err)
		}
		buffer, err := secret.NewFromBytes(compact.Bytes())
		if err != nil {
			return nil, fmt.Errorf("protecting credential: %w", err)
		}
		return buffer, nil

	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, fmt.Errorf("authJson is not a valid JSON string: %w", err)
		}
		if text == "" {
			return nil, errors.New("authJson is empty")
		}
		if sealed.IsSealed(text) {
			if i.identity == nil {
				return nil, errors.New("authJson is sealed but no age identity is configured")
			}
			buffer, err := sealed.Decrypt(text, i.identity)
			if err != nil {
				return nil, fmt.Errorf("unsealing authJson: %w", err)
			}
			return buffer, nil
		}
		buffer, err := secret.NewFromBytes([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("protecting credential: %w", err)
		}
		return buffer, nil
	}
	return nil, errors.New("authJson must be a JSON object or string")
}

func writeSecretFile(path string, contents *secret.Buffer) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", AuthFileName, err)
	}
	if _, err := contents.WriteTo(file); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", AuthFileName, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", AuthFileName, err)
	}
	return nil
}
