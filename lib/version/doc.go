// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for turnproxy
// binaries.
//
// Release builds inject values with -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/turnproxy/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Plain `go build` binaries still report their commit through the VCS
// stamp in debug.BuildInfo.
package version
