// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package frame implements the client wire protocol: newline-delimited
// UTF-8 JSON objects over a byte stream.
//
// [Decoder] splits incoming bytes into lines and enforces a maximum
// frame size. [DecodeClient] turns one line into a [ClientMessage]
// ([Auth], [Run], [Abort], or [Ping]). [Encoder] writes server frames,
// one JSON object per line, serialized so concurrent writers never
// interleave.
//
// A malformed or unknown client message is a [*ProtocolError]: the
// connection answers with one error frame and keeps reading. A frame
// over the size limit is [ErrFrameTooLarge], which ends the connection
// because the stream can no longer be resynchronized.
package frame
