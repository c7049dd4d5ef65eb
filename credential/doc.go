// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential handles the two kinds of secret material the
// proxy touches.
//
// The [Source] implementations look up named secrets owned by the
// proxy operator: the handshake's shared secret and the fallback
// engine token. Sources are tried in order through a [Chain]; the
// production chain is the systemd credentials directory, then an
// optional key=value file, then TURNPROXY_-prefixed environment
// variables. Values live in [secret.Buffer] memory.
//
// The [Injector] stages a credential blob supplied by the client in a
// run request. The blob is written to auth.json in a private temp
// directory, and the engine call's environment points at that
// directory through a configurable variable (CODEX_HOME by default).
// A staged credential lasts until it is replaced or the connection
// closes. Blobs may arrive age-encrypted to the proxy's identity.
package credential
