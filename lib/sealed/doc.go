// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for credential
// blobs sent to the proxy. It wraps filippo.io/age for the operations
// turnproxy needs: generate x25519 keypairs, encrypt to one or more
// recipients, and decrypt with the proxy's identity.
//
// Ciphertext travels as ASCII-armored text ("-----BEGIN AGE ENCRYPTED
// FILE-----") so it can sit in a JSON string field of a run request.
// [IsSealed] recognizes that form. Identities and decrypted plaintext
// are returned as [secret.Buffer] values backed by mmap memory outside
// the Go heap.
//
// Depends on lib/secret for secure memory allocation.
package sealed
