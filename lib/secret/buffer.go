// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer holds sensitive data in locked, dump-excluded memory outside
// the Go heap. A Buffer must not be copied after creation.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// lockedRegion maps size bytes of anonymous memory, pins it with mlock,
// and excludes it from core dumps. A failure at any step unwinds the
// steps before it.
func lockedRegion(size int) ([]byte, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(data)
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}
	return data, nil
}

// releaseRegion zeroes data and returns it to the kernel.
func releaseRegion(data []byte) error {
	Zero(data)
	return errors.Join(
		wrap("munlock", unix.Munlock(data)),
		wrap("munmap", unix.Munmap(data)),
	)
}

func wrap(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("secret: %s: %w", operation, err)
}

// NewFromBytes moves source into a new protected buffer. source is
// zeroed in place whether or not the call succeeds. The caller must
// Close the result.
func NewFromBytes(source []byte) (*Buffer, error) {
	defer Zero(source)
	if len(source) == 0 {
		return nil, errors.New("secret: cannot create buffer from empty source")
	}
	data, err := lockedRegion(len(source))
	if err != nil {
		return nil, err
	}
	copy(data, source)
	return &Buffer{data: data}, nil
}

// view locks the buffer and returns the protected bytes. The caller
// must have deferred the unlock before calling, which also covers the
// panic on a closed buffer.
func (b *Buffer) view() []byte {
	b.mu.Lock()
	if b.closed {
		panic("secret: access to closed buffer")
	}
	return b.data
}

// Bytes returns the secret data. The slice points into the protected
// region and must not outlive the Buffer. Panics after Close.
func (b *Buffer) Bytes() []byte {
	defer b.mu.Unlock()
	return b.view()
}

// String returns a heap copy of the secret, for APIs that insist on
// strings (HTTP headers, environment values). Panics after Close.
func (b *Buffer) String() string {
	defer b.mu.Unlock()
	return string(b.view())
}

// Len returns the size of the secret, or 0 after Close.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// WriteTo writes the secret to writer without an intermediate heap
// copy. Implements io.WriterTo.
func (b *Buffer) WriteTo(writer io.Writer) (int64, error) {
	defer b.mu.Unlock()
	written, err := writer.Write(b.view())
	return int64(written), err
}

// Close zeroes, unlocks, and unmaps the memory. Idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	data := b.data
	b.data = nil
	return releaseRegion(data)
}

// Zero overwrites data with zeros.
func Zero(data []byte) {
	clear(data)
}
