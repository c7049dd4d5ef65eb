// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func generate(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func TestGenerateKeypair(t *testing.T) {
	keypair := generate(t)

	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("private key lacks AGE-SECRET-KEY-1 prefix")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", keypair.PublicKey)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	keypair := generate(t)

	plaintext := `{"tokens":{"access_token":"abc"}}`
	ciphertext, err := Encrypt([]byte(plaintext), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !IsSealed(ciphertext) {
		t.Fatalf("ciphertext is not armored: %q", ciphertext)
	}
	if strings.Contains(ciphertext, "access_token") {
		t.Error("ciphertext contains plaintext")
	}

	decrypted, err := Decrypt(ciphertext, keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	defer decrypted.Close()
	if decrypted.String() != plaintext {
		t.Errorf("decrypted = %q, want %q", decrypted.String(), plaintext)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	sender := generate(t)
	other := generate(t)

	ciphertext, err := Encrypt([]byte("payload"), []string{sender.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(ciphertext, other.PrivateKey); err == nil {
		t.Fatal("Decrypt with the wrong identity succeeded")
	}
}

func TestEncryptRequiresRecipient(t *testing.T) {
	if _, err := Encrypt([]byte("x"), nil); err == nil {
		t.Fatal("Encrypt with no recipients succeeded")
	}
	if _, err := Encrypt([]byte("x"), []string{"not-a-key"}); err == nil {
		t.Fatal("Encrypt with an invalid recipient succeeded")
	}
}

func TestIsSealed(t *testing.T) {
	cases := map[string]bool{
		"-----BEGIN AGE ENCRYPTED FILE-----\nabc\n": true,
		"  \n-----BEGIN AGE ENCRYPTED FILE-----":    true,
		`{"api_key":"x"}`:                          false,
		"":                                         false,
	}
	for input, want := range cases {
		if got := IsSealed(input); got != want {
			t.Errorf("IsSealed(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestLoadIdentityAcceptsKeygenFormat(t *testing.T) {
	keypair := generate(t)

	path := filepath.Join(t.TempDir(), "identity.txt")
	contents := "# created: 2026-01-01T00:00:00Z\n# public key: " + keypair.PublicKey + "\n" + keypair.PrivateKey.String() + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	identity, err := LoadIdentity(path)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	defer identity.Close()

	ciphertext, err := Encrypt([]byte("hello"), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	decrypted, err := Decrypt(ciphertext, identity)
	if err != nil {
		t.Fatalf("Decrypt with loaded identity: %v", err)
	}
	defer decrypted.Close()
	if decrypted.String() != "hello" {
		t.Errorf("decrypted = %q", decrypted.String())
	}
}

func TestLoadIdentityRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.txt")
	if err := os.WriteFile(path, []byte("not an identity\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadIdentity(path); err == nil {
		t.Fatal("LoadIdentity accepted garbage")
	}
}

func TestDecryptRejectsOversizePlaintext(t *testing.T) {
	keypair := generate(t)
	ciphertext, err := Encrypt(make([]byte, MaxPlaintextBytes+1), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(ciphertext, keypair.PrivateKey); err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("Decrypt = %v, want size error", err)
	}
}
