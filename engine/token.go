// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/turnproxy/lib/secret"
)

// tokenEnvironmentVariables are checked in order in the run
// environment before any credential file.
var tokenEnvironmentVariables = []string{"OPENAI_API_KEY", "TURNPROXY_ENGINE_TOKEN"}

// TokenSource resolves the bearer token for one engine call.
//
// Resolution order: a token variable in the run environment, then the
// auth.json inside the directory named by HomeEnv in the run
// environment (the staged credential), then Fallback.
type TokenSource struct {
	// HomeEnv names the variable that points at a staged credential
	// directory, usually CODEX_HOME.
	HomeEnv string

	// Fallback is the proxy's own engine token, if configured. The
	// TokenSource borrows it; the owner closes it.
	Fallback *secret.Buffer
}

// Resolve returns the token for a call made with env, or "" when no
// token is available.
func (source TokenSource) Resolve(env map[string]string) string {
	for _, name := range tokenEnvironmentVariables {
		if value := strings.TrimSpace(env[name]); value != "" {
			return value
		}
	}

	if source.HomeEnv != "" {
		if directory := env[source.HomeEnv]; directory != "" {
			if token := tokenFromAuthFile(filepath.Join(directory, "auth.json")); token != "" {
				return token
			}
		}
	}

	if source.Fallback != nil && source.Fallback.Len() > 0 {
		return source.Fallback.String()
	}
	return ""
}

// tokenFromAuthFile reads an auth.json credential. API keys win over
// OAuth access tokens.
func tokenFromAuthFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	defer secret.Zero(data)

	var auth struct {
		OpenAIAPIKey string `json:"OPENAI_API_KEY"`
		APIKey       string `json:"api_key"`
		Tokens       struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	if json.Unmarshal(data, &auth) != nil {
		return ""
	}
	for _, candidate := range []string{auth.OpenAIAPIKey, auth.APIKey, auth.Tokens.AccessToken} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	return ""
}
