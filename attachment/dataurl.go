// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attachment

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
)

// ParseDataURL decodes data:<mime>[;param...];base64,<payload>. Only
// base64 payloads are accepted. A missing MIME type defaults to
// application/octet-stream.
func ParseDataURL(url string) (string, []byte, error) {
	if len(url) < len("data:") || !strings.EqualFold(url[:len("data:")], "data:") {
		return "", nil, errors.New("not a data URL")
	}
	rest := url[len("data:"):]
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URL has no comma separating header and payload")
	}

	parameters := strings.Split(header, ";")
	if !strings.EqualFold(parameters[len(parameters)-1], "base64") {
		return "", nil, errors.New("data URL is not base64-encoded")
	}
	mimeType := strings.ToLower(strings.TrimSpace(parameters[0]))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", nil, errors.New("data URL payload is empty")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients strip padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", nil, fmt.Errorf("decoding data URL payload: %w", err)
		}
	}
	if len(data) == 0 {
		return "", nil, errors.New("data URL payload is empty")
	}
	return mimeType, data, nil
}

// imageExtensions maps common image types to the extension engines
// expect. It is consulted before the platform MIME table, which maps
// image/jpeg to ".jfif" on some systems.
var imageExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/bmp":     ".bmp",
	"image/svg+xml": ".svg",
	"image/tiff":    ".tiff",
	"image/heic":    ".heic",
	"image/avif":    ".avif",
}

// extensionFor returns the temp file extension for a MIME type.
func extensionFor(mimeType string) string {
	if extension, ok := imageExtensions[mimeType]; ok {
		return extension
	}
	if extensions, err := mime.ExtensionsByType(mimeType); err == nil && len(extensions) > 0 {
		return extensions[0]
	}
	return ".bin"
}
