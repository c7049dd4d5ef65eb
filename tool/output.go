// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"fmt"
	"sync"
)

// cappedBuffer keeps the first limit bytes written and counts the
// rest. Writes past the cap still report success.
type cappedBuffer struct {
	mu      sync.Mutex
	limit   int
	data    []byte
	dropped int64
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - len(b.data)
	if room > len(p) {
		room = len(p)
	}
	if room > 0 {
		b.data = append(b.data, p[:room]...)
	}
	b.dropped += int64(len(p) - max(room, 0))
	return len(p), nil
}

// String returns the captured output with a truncation marker when
// bytes were dropped.
func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dropped == 0 {
		return string(b.data)
	}
	return fmt.Sprintf("%s\n[output truncated: %d bytes omitted]", b.data, b.dropped)
}
