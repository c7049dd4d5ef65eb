// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript records every frame crossing a client connection
// to a compressed CBOR log.
//
// A transcript file is a stream of CBOR-encoded [Record] values, one
// per frame, wrapped in a single zstd or lz4 stream (or left
// uncompressed). The file extension names the compression, so
// [OpenFile] needs no side channel to read it back.
//
// Frames are redacted before they are encoded: the auth handshake
// token and inline credential blobs never reach disk, and inline image
// payloads are replaced by their size. Recording is best effort. The
// first write failure is logged and disables the recorder; the
// connection it observes is never affected.
package transcript
