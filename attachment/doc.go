// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package attachment turns the image references of a run request into
// engine inputs.
//
// Inline data URLs ("data:image/png;base64,...") are decoded into
// private temp files that live for the duration of one run. Remote
// http(s) URLs pass through untouched. A [Set] owns every file it
// created; [Set.Cleanup] removes each one exactly once and never
// fails, so it can run on every exit path of a run.
package attachment
