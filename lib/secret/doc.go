// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds sensitive bytes (credential blobs, the auth
// handshake secret, age identities) in memory that the Go runtime never
// sees.
//
// [Buffer] memory comes from an anonymous mmap, is locked against swap
// with mlock, and is excluded from core dumps with MADV_DONTDUMP. Close
// zeroes, unlocks, and unmaps it; any access afterwards panics.
//
// [NewFromBytes] moves bytes into protected memory and zeroes the
// source. [ReadFromPath] does the same for a trimmed secret file of at
// most [MaxFileBytes].
//
// [Buffer.WriteTo] moves the contents to a writer (a staged credential
// file, for example) without an intermediate heap copy.
//
// Depends on golang.org/x/sys/unix only.
package secret
