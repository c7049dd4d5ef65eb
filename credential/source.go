// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bureau-foundation/turnproxy/lib/secret"
)

// Source looks up named secrets. Names are kebab-case
// ("auth-secret"); each source maps them to its own key format.
type Source interface {
	// Get returns the secret or nil when the source does not hold it.
	// The buffer is owned by the source and valid until Close.
	Get(name string) *secret.Buffer

	// Close releases every buffer the source handed out.
	Close() error
}

// envKey converts "auth-secret" to "AUTH_SECRET".
func envKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// bufferCache is a name-keyed set of buffers released together.
type bufferCache struct {
	mu      sync.Mutex
	buffers map[string]*secret.Buffer
}

func (c *bufferCache) lookup(name string, load func() *secret.Buffer) *secret.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buffer, ok := c.buffers[name]; ok {
		return buffer
	}
	buffer := load()
	if buffer == nil {
		return nil
	}
	if c.buffers == nil {
		c.buffers = make(map[string]*secret.Buffer)
	}
	c.buffers[name] = buffer
	return buffer
}

func (c *bufferCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, buffer := range c.buffers {
		buffer.Close()
		delete(c.buffers, name)
	}
	return nil
}

// EnvSource reads secrets from environment variables named Prefix
// plus the upper-snake form of the name: with Prefix "TURNPROXY_",
// Get("auth-secret") reads TURNPROXY_AUTH_SECRET. The value briefly
// touches the heap during the lookup; the cached copy is protected.
type EnvSource struct {
	Prefix string

	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)

	cache bufferCache
}

// Get retrieves a secret from the environment.
func (s *EnvSource) Get(name string) *secret.Buffer {
	return s.cache.lookup(name, func() *secret.Buffer {
		lookup := s.Lookup
		if lookup == nil {
			lookup = os.LookupEnv
		}
		value, ok := lookup(s.Prefix + envKey(name))
		if !ok || strings.TrimSpace(value) == "" {
			return nil
		}
		buffer, err := secret.NewFromBytes([]byte(strings.TrimSpace(value)))
		if err != nil {
			return nil
		}
		return buffer
	})
}

// Close releases cached buffers.
func (s *EnvSource) Close() error { return s.cache.Close() }

// FileSource reads secrets from a key=value file, one per line, keys
// in upper-snake form. Lines starting with # are comments. The file is
// read once on first Get; a missing file holds no secrets.
//
//	AUTH_SECRET=correct-horse-battery-staple
//	ENGINE_TOKEN=sk-...
type FileSource struct {
	Path string

	once    sync.Once
	secrets map[string]*secret.Buffer
	mu      sync.Mutex
}

// Get retrieves a secret from the file.
func (s *FileSource) Get(name string) *secret.Buffer {
	s.once.Do(s.load)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secrets[envKey(name)]
}

// Close releases every buffer loaded from the file.
func (s *FileSource) Close() error {
	s.once.Do(func() {})
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, buffer := range s.secrets {
		buffer.Close()
		delete(s.secrets, key)
	}
	return nil
}

func (s *FileSource) load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets = make(map[string]*secret.Buffer)
	if s.Path == "" {
		return
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return
	}
	defer secret.Zero(data)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		key, value, ok := bytes.Cut(line, []byte("="))
		if !ok || len(bytes.TrimSpace(key)) == 0 {
			continue
		}
		value = bytes.TrimSpace(value)
		if len(value) == 0 {
			continue
		}
		buffer, err := secret.NewFromBytes(append([]byte(nil), value...))
		if err != nil {
			continue
		}
		s.secrets[string(bytes.TrimSpace(key))] = buffer
	}
}

// SystemdSource reads secrets from systemd's credentials directory,
// one file per name (see systemd.exec LoadCredential=). Directory
// defaults to $CREDENTIALS_DIRECTORY.
type SystemdSource struct {
	Directory string

	cache bufferCache
}

// Get retrieves a secret from the credentials directory.
func (s *SystemdSource) Get(name string) *secret.Buffer {
	return s.cache.lookup(name, func() *secret.Buffer {
		directory := s.Directory
		if directory == "" {
			directory = os.Getenv("CREDENTIALS_DIRECTORY")
		}
		if directory == "" || strings.ContainsAny(name, `/\`) {
			return nil
		}
		buffer, err := secret.ReadFromPath(filepath.Join(directory, name))
		if err != nil {
			return nil
		}
		return buffer
	})
}

// Close releases cached buffers.
func (s *SystemdSource) Close() error { return s.cache.Close() }

// Chain tries each source in order.
type Chain struct {
	Sources []Source
}

// Get returns the first non-nil secret.
func (c *Chain) Get(name string) *secret.Buffer {
	for _, source := range c.Sources {
		if value := source.Get(name); value != nil {
			return value
		}
	}
	return nil
}

// Close closes every source.
func (c *Chain) Close() error {
	for _, source := range c.Sources {
		source.Close()
	}
	return nil
}

// DefaultChain returns the production lookup order: systemd
// credentials, then secretFile (if non-empty), then environment
// variables with envPrefix.
func DefaultChain(secretFile, envPrefix string) *Chain {
	sources := []Source{&SystemdSource{}}
	if secretFile != "" {
		sources = append(sources, &FileSource{Path: secretFile})
	}
	sources = append(sources, &EnvSource{Prefix: envPrefix})
	return &Chain{Sources: sources}
}
