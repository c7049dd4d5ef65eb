// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides turnproxy's standard CBOR encoding
// configuration.
//
// turnproxy speaks JSON on every external interface: the client
// socket, the engine HTTP API, and configuration files. CBOR is used
// only for data the proxy writes for itself, currently the
// per-connection transcript records. Keeping the modes here means
// every writer and reader of those records agrees on the encoding.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so
// identical records produce identical bytes. The decoder caps nesting
// depth and container sizes and rejects duplicate map keys.
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
//
// Types serialized only as CBOR carry `cbor` struct tags. Types that
// also appear as JSON carry `json` tags, which fxamacker/cbor reads
// as a fallback. Never put both on one field.
package codec
