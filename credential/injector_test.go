// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/turnproxy/lib/sealed"
)

func readStaged(t *testing.T, env map[string]string) string {
	t.Helper()
	directory, ok := env[DefaultHomeEnv]
	if !ok {
		t.Fatalf("environment %v lacks %s", env, DefaultHomeEnv)
	}
	data, err := os.ReadFile(filepath.Join(directory, AuthFileName))
	if err != nil {
		t.Fatalf("reading staged credential: %v", err)
	}
	return string(data)
}

func TestStageObjectBlob(t *testing.T) {
	t.Parallel()

	injector := NewInjector(InjectorConfig{Directory: t.TempDir()})
	defer injector.Close()

	env, err := injector.Stage(json.RawMessage(`{ "tokens": { "access_token": "abc" } }`))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if got := readStaged(t, env); got != `{"tokens":{"access_token":"abc"}}` {
		t.Errorf("auth.json = %s", got)
	}

	directory := env[DefaultHomeEnv]
	info, err := os.Stat(directory)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Errorf("directory mode = %v, want 0700", info.Mode().Perm())
	}
	fileInfo, err := os.Stat(filepath.Join(directory, AuthFileName))
	if err != nil {
		t.Fatal(err)
	}
	if fileInfo.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %v, want 0600", fileInfo.Mode().Perm())
	}
	if injector.Environment()[DefaultHomeEnv] != directory {
		t.Error("Environment does not report the staged directory")
	}
}

func TestStageStringBlobVerbatim(t *testing.T) {
	t.Parallel()

	injector := NewInjector(InjectorConfig{Directory: t.TempDir(), HomeEnv: "AGENT_HOME"})
	defer injector.Close()

	env, err := injector.Stage(json.RawMessage(`"{\"api_key\": \"k\"}\n"`))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(env["AGENT_HOME"], AuthFileName))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{\"api_key\": \"k\"}\n" {
		t.Errorf("auth.json = %q", data)
	}
}

func TestStageReplacesPrevious(t *testing.T) {
	t.Parallel()

	injector := NewInjector(InjectorConfig{Directory: t.TempDir()})
	defer injector.Close()

	first, err := injector.Stage(json.RawMessage(`{"n":1}`))
	if err != nil {
		t.Fatal(err)
	}
	second, err := injector.Stage(json.RawMessage(`{"n":2}`))
	if err != nil {
		t.Fatal(err)
	}
	if first[DefaultHomeEnv] == second[DefaultHomeEnv] {
		t.Fatal("replacement reused the directory")
	}
	if _, err := os.Stat(first[DefaultHomeEnv]); !os.IsNotExist(err) {
		t.Errorf("previous credential survived replacement: %v", err)
	}
	if readStaged(t, second) != `{"n":2}` {
		t.Error("second credential not staged")
	}
}

func TestStageFailureReleasesPrevious(t *testing.T) {
	t.Parallel()

	injector := NewInjector(InjectorConfig{Directory: t.TempDir()})
	defer injector.Close()

	first, err := injector.Stage(json.RawMessage(`{"n":1}`))
	if err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{`42`, `null`, `""`, `{"broken":`, ``} {
		if _, err := injector.Stage(json.RawMessage(bad)); err == nil {
			t.Errorf("Stage(%q) succeeded", bad)
		}
	}
	if _, err := os.Stat(first[DefaultHomeEnv]); !os.IsNotExist(err) {
		t.Error("failed Stage left the previous credential staged")
	}
	if len(injector.Environment()) != 0 {
		t.Errorf("Environment after failure = %v", injector.Environment())
	}
}

func TestCloseRemovesDirectory(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	injector := NewInjector(InjectorConfig{Directory: parent})
	if _, err := injector.Stage(json.RawMessage(`{"a":"b"}`)); err != nil {
		t.Fatal(err)
	}
	injector.Close()
	injector.Close()

	entries, _ := os.ReadDir(parent)
	if len(entries) != 0 {
		t.Errorf("%d entries left after Close", len(entries))
	}
}

func TestStageSealedBlob(t *testing.T) {
	t.Parallel()

	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer keypair.Close()

	ciphertext, err := sealed.Encrypt([]byte(`{"OPENAI_API_KEY":"sk-sealed"}`), []string{keypair.PublicKey})
	if err != nil {
		t.Fatal(err)
	}
	blob, _ := json.Marshal(ciphertext)

	injector := NewInjector(InjectorConfig{Directory: t.TempDir(), Identity: keypair.PrivateKey})
	defer injector.Close()
	env, err := injector.Stage(blob)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if got := readStaged(t, env); got != `{"OPENAI_API_KEY":"sk-sealed"}` {
		t.Errorf("auth.json = %s", got)
	}

	withoutIdentity := NewInjector(InjectorConfig{Directory: t.TempDir()})
	defer withoutIdentity.Close()
	if _, err := withoutIdentity.Stage(blob); err == nil || !strings.Contains(err.Error(), "no age identity") {
		t.Errorf("Stage without identity = %v", err)
	}
}
