// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads turnproxy's configuration.
//
// Values are layered, each layer overriding the previous one:
//
//  1. [Default] values.
//  2. An optional file named by --config or TURNPROXY_CONFIG. The
//     format follows the extension: .yaml/.yml is YAML, .json/.jsonc is
//     JSON with comments and trailing commas allowed.
//  3. TURNPROXY_* environment variables ([Config.ApplyEnvironment]).
//  4. Command line flags that were explicitly set
//     ([Config.ApplyFlags]).
//
// Path fields in the file may reference ${VAR} or ${VAR:-default}.
// [Config.Validate] reports every range error at once.
package config
