// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/turnproxy/lib/secret"
)

// armorHeader opens every armored age ciphertext.
const armorHeader = "-----BEGIN AGE ENCRYPTED FILE-----"

// Keypair holds an age x25519 keypair. The private key lives in a
// secret.Buffer; the public key is safe to publish.
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... identity.
	PrivateKey *secret.Buffer

	// PublicKey is the age1... recipient string.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// The identity's string form is on the heap and will be collected;
	// the mmap buffer is the durable copy.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// IsSealed reports whether blob is an armored age ciphertext.
func IsSealed(blob string) bool {
	return strings.HasPrefix(strings.TrimSpace(blob), armorHeader)
}

// MaxPlaintextBytes bounds a decrypted blob. Credential blobs are a
// few kilobytes; a larger plaintext is refused rather than buffered.
const MaxPlaintextBytes = 1 << 20

func parseRecipients(keys []string) ([]age.Recipient, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	recipients := make([]age.Recipient, len(keys))
	for index, key := range keys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients[index] = recipient
	}
	return recipients, nil
}

// Encrypt seals plaintext to the given age1... recipients and returns
// armored ciphertext.
func Encrypt(plaintext []byte, recipientKeys []string) (string, error) {
	recipients, err := parseRecipients(recipientKeys)
	if err != nil {
		return "", err
	}

	var ciphertext strings.Builder
	armored := armor.NewWriter(&ciphertext)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("encrypting: %w", err)
	}
	// Both layers buffer: the age stream's final chunk and the armor
	// footer are only written on Close, innermost first.
	if err := errors.Join(writer.Close(), armored.Close()); err != nil {
		return "", fmt.Errorf("finalizing ciphertext: %w", err)
	}
	return ciphertext.String(), nil
}

// Decrypt opens armored ciphertext with the identities in privateKey,
// which may hold a bare AGE-SECRET-KEY-1... line or an age-keygen
// identity file (comments allowed). privateKey is borrowed.
//
// The caller must Close the returned buffer.
func Decrypt(ciphertext string, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identities, err := age.ParseIdentities(bytes.NewReader(privateKey.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	armored := armor.NewReader(strings.NewReader(strings.TrimSpace(ciphertext)))
	reader, err := age.Decrypt(armored, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(io.LimitReader(reader, MaxPlaintextBytes+1))
	switch {
	case err != nil:
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	case len(plaintext) > MaxPlaintextBytes:
		secret.Zero(plaintext)
		return nil, fmt.Errorf("decrypted plaintext exceeds %d bytes", MaxPlaintextBytes)
	case len(plaintext) == 0:
		return nil, errors.New("decrypted plaintext is empty")
	}
	// NewFromBytes zeroes plaintext on every path.
	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}

// LoadIdentity reads an age identity file and checks that it parses.
// The caller must Close the returned buffer.
func LoadIdentity(path string) (*secret.Buffer, error) {
	buffer, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("reading age identity: %w", err)
	}
	if _, err := age.ParseIdentities(bytes.NewReader(buffer.Bytes())); err != nil {
		buffer.Close()
		return nil, fmt.Errorf("parsing age identity %s: %w", path, err)
	}
	return buffer, nil
}
