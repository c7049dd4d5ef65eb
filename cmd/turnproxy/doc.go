// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Turnproxy listens on TCP for one client at a time. The client sends
// newline-delimited JSON run requests; turnproxy streams the engine's
// events back verbatim, runs any shell tool calls the engine asks for,
// and reports done, aborted, or error when the turn ends.
//
// Configuration comes from an optional YAML or JSONC file (--config or
// TURNPROXY_CONFIG), then TURNPROXY_* environment variables, then
// flags. With --auth the client's first frame must carry a token
// derived from the auth-secret credential.
//
// Usage:
//
//	turnproxy [--config FILE] [--host HOST] [--port PORT] [--auth]
//	          [--engine-url URL] [--workdir DIR] [--log-level LEVEL]
//	turnproxy keygen --output IDENTITY
//	turnproxy seal --recipient AGE1KEY [--in CREDENTIAL.json]
//
// keygen creates the age identity named by credentials.age_identity_file
// and prints its public key. seal encrypts a credential JSON file to
// that key and prints a JSON string to send as a run's authJson; the
// proxy decrypts it when staging.
package main
