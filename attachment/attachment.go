// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attachment

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/turnproxy/engine"
)

// Attachment is one materialized image reference.
type Attachment struct {
	// Index is the position in the run request's image list.
	Index int

	// URL is set for remote attachments.
	URL string

	// Path, MIMEType, Size, and Digest are set for inline attachments.
	// Digest is the hex BLAKE3-256 of the decoded bytes.
	Path     string
	MIMEType string
	Size     int64
	Digest   string

	once   sync.Once
	remove func(string) error
	logger *slog.Logger
}

// IsRemote reports whether the attachment is a pass-through URL.
func (a *Attachment) IsRemote() bool { return a.Path == "" }

// Input returns the engine input item for the attachment.
func (a *Attachment) Input() engine.Input {
	if a.IsRemote() {
		return engine.Input{Type: engine.InputImageURL, URL: a.URL}
	}
	return engine.Input{Type: engine.InputLocalImage, Path: a.Path}
}

// Cleanup deletes the temp file. Only the first call does anything;
// remote attachments have nothing to delete. Failures are logged.
func (a *Attachment) Cleanup() {
	a.once.Do(func() {
		if a.IsRemote() {
			return
		}
		if err := a.remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.logger.Warn("removing attachment failed", "index", a.Index, "path", a.Path, "error", err)
		}
	})
}

// Set is the attachments of one run.
type Set struct {
	Attachments []*Attachment
}

// Inputs returns the engine input items in request order.
func (s *Set) Inputs() []engine.Input {
	if s == nil {
		return nil
	}
	inputs := make([]engine.Input, 0, len(s.Attachments))
	for _, attachment := range s.Attachments {
		inputs = append(inputs, attachment.Input())
	}
	return inputs
}

// Cleanup removes every file in the set. Safe to call more than once
// and on a nil Set.
func (s *Set) Cleanup() {
	if s == nil {
		return
	}
	for _, attachment := range s.Attachments {
		attachment.Cleanup()
	}
}

// Config configures a Materializer.
type Config struct {
	// Directory receives temp files. Empty uses os.TempDir().
	Directory string

	Logger *slog.Logger
}

// Materializer decodes image references into a Set.
type Materializer struct {
	directory string
	logger    *slog.Logger
	remove    func(string) error
}

// NewMaterializer returns a Materializer.
func NewMaterializer(config Config) *Materializer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{
		directory: config.Directory,
		logger:    logger.With("component", "attachment"),
		remove:    os.Remove,
	}
}

// Materialize processes urls in order. On error every file already
// written is removed and the error names the failing index.
func (m *Materializer) Materialize(urls []string) (*Set, error) {
	set := &Set{Attachments: make([]*Attachment, 0, len(urls))}
	for index, url := range urls {
		attachment, err := m.materializeOne(index, url)
		if err != nil {
			set.Cleanup()
			return nil, fmt.Errorf("attachment %d: %w", index, err)
		}
		set.Attachments = append(set.Attachments, attachment)
	}
	return set, nil
}

func (m *Materializer) materializeOne(index int, url string) (*Attachment, error) {
	attachment := &Attachment{Index: index, remove: m.remove, logger: m.logger}

	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		attachment.URL = url
		return attachment, nil
	case strings.HasPrefix(lower, "data:"):
	case url == "":
		return nil, errors.New("empty image reference")
	default:
		scheme, _, _ := strings.Cut(url, ":")
		if len(scheme) > 16 {
			scheme = scheme[:16]
		}
		return nil, fmt.Errorf("unsupported image URL scheme %q", scheme)
	}

	mimeType, data, err := ParseDataURL(url)
	if err != nil {
		return nil, err
	}

	// CreateTemp opens with mode 0600.
	file, err := os.CreateTemp(m.directory, "turnproxy-attachment-*"+extensionFor(mimeType))
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	path := file.Name()
	if _, err := file.Write(data); err != nil {
		file.Close()
		m.remove(path)
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		m.remove(path)
		return nil, fmt.Errorf("closing temp file: %w", err)
	}

	digest := blake3.Sum256(data)
	attachment.Path = path
	attachment.MIMEType = mimeType
	attachment.Size = int64(len(data))
	attachment.Digest = hex.EncodeToString(digest[:])

	m.logger.Debug("attachment materialized",
		"index", index,
		"mime_type", mimeType,
		"size", attachment.Size,
		"blake3", attachment.Digest,
	)
	return attachment, nil
}
