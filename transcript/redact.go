// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"fmt"
	"strings"
)

const redacted = "[redacted]"

// redact rewrites a decoded client or server frame in place so it can
// be written to disk.
func redact(frame map[string]any) map[string]any {
	switch frame["type"] {
	case "auth":
		if _, ok := frame["token"]; ok {
			frame["token"] = redacted
		}
	case "run":
		if value, ok := frame["authJson"]; ok && value != nil {
			frame["authJson"] = redacted
		}
		if images, ok := frame["images"].([]any); ok {
			for i, image := range images {
				images[i] = redactImage(image)
			}
		}
	}
	return frame
}

func redactImage(image any) any {
	switch value := image.(type) {
	case string:
		return summarizeDataURL(value)
	case map[string]any:
		if url, ok := value["url"].(string); ok {
			value["url"] = summarizeDataURL(url)
		}
		return value
	default:
		return image
	}
}

// summarizeDataURL replaces an inline payload with its length. Remote
// URLs pass through.
func summarizeDataURL(url string) string {
	if len(url) < 5 || !strings.EqualFold(url[:5], "data:") {
		return url
	}
	header, payload, found := strings.Cut(url, ",")
	if !found {
		return fmt.Sprintf("[inline image: %d bytes]", len(url))
	}
	return fmt.Sprintf("%s,[%d bytes]", header, len(payload))
}
