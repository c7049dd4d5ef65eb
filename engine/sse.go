// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxSSELine bounds one SSE line. Content items (file diffs, command
// output) can be large, so this is generous.
const maxSSELine = 16 * 1024 * 1024

// sseEvent is one Server-Sent Event.
type sseEvent struct {
	// Name is the "event:" field; empty for the default event type.
	Name string

	// Data joins the event's "data:" lines with newlines.
	Data string
}

// sseScanner reads Server-Sent Events per the W3C specification:
// events are separated by blank lines, "data:" lines accumulate,
// comments (":") and unknown fields are ignored.
type sseScanner struct {
	reader  *bufio.Reader
	current sseEvent
	err     error
}

func newSSEScanner(reader io.Reader) *sseScanner {
	return &sseScanner{reader: bufio.NewReaderSize(reader, 64*1024)}
}

// Next advances to the next event. After it returns false, Err
// distinguishes a clean end of stream from a failure.
func (scanner *sseScanner) Next() bool {
	if scanner.err != nil {
		return false
	}
	scanner.current = sseEvent{}

	var dataLines []string
	var name string
	hasData := false

	for {
		line, err := scanner.readLine()
		if err != nil {
			scanner.err = err
			// A final event without a trailing blank line still counts.
			if err == io.EOF && hasData {
				scanner.current = sseEvent{Name: name, Data: strings.Join(dataLines, "\n")}
				return true
			}
			return false
		}

		if line == "" {
			if hasData {
				scanner.current = sseEvent{Name: name, Data: strings.Join(dataLines, "\n")}
				return true
			}
			name = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if hasColon {
			value = strings.TrimPrefix(value, " ")
		} else {
			field, value = line, ""
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			name = value
		}
	}
}

// readLine returns one line without its terminator. A final line
// without a newline is returned before io.EOF.
func (scanner *sseScanner) readLine() (string, error) {
	var builder strings.Builder
	for {
		fragment, isPrefix, err := scanner.reader.ReadLine()
		if err != nil {
			if builder.Len() > 0 && err == io.EOF {
				return builder.String(), nil
			}
			return "", err
		}
		if builder.Len()+len(fragment) > maxSSELine {
			return "", fmt.Errorf("engine: SSE line exceeds %d bytes", maxSSELine)
		}
		builder.Write(fragment)
		if !isPrefix {
			return builder.String(), nil
		}
	}
}

// Event returns the event parsed by the last successful Next.
func (scanner *sseScanner) Event() sseEvent {
	return scanner.current
}

// Err returns the error that stopped scanning, or nil at a clean EOF.
func (scanner *sseScanner) Err() error {
	if scanner.err == io.EOF {
		return nil
	}
	return scanner.err
}
