// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable turnproxy reads.
const EnvPrefix = "TURNPROXY_"

// ConfigEnv names the environment variable holding the config path.
const ConfigEnv = EnvPrefix + "CONFIG"

// Config is the complete turnproxy configuration.
type Config struct {
	Listen      ListenConfig      `yaml:"listen" json:"listen"`
	Auth        AuthConfig        `yaml:"auth" json:"auth"`
	Engine      EngineConfig      `yaml:"engine" json:"engine"`
	Tools       ToolsConfig       `yaml:"tools" json:"tools"`
	Attachments AttachmentsConfig `yaml:"attachments" json:"attachments"`
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`
	Transcript  TranscriptConfig  `yaml:"transcript" json:"transcript"`
	Limits      LimitsConfig      `yaml:"limits" json:"limits"`
}

// ListenConfig is the TCP listen address.
type ListenConfig struct {
	// Host defaults to 127.0.0.1. Binding anything else without auth
	// exposes the tool executor to the network.
	Host string `yaml:"host" json:"host"`

	// Port defaults to 9400. Zero picks an ephemeral port.
	Port int `yaml:"port" json:"port"`
}

// Address returns host:port.
func (l ListenConfig) Address() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// AuthConfig controls the shared-secret handshake.
type AuthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// SecretName is the credential name looked up through the
	// credential source chain.
	SecretName string `yaml:"secret_name" json:"secret_name"`

	// SecretFile is an optional key=value credential file consulted
	// after the systemd credentials directory.
	SecretFile string `yaml:"secret_file" json:"secret_file"`

	HandshakeTimeout  Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
	MaxHandshakeBytes int      `yaml:"max_handshake_bytes" json:"max_handshake_bytes"`
}

// EngineConfig locates the execution engine.
type EngineConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`

	// TokenName is the credential name of the fallback bearer token.
	TokenName string `yaml:"token_name" json:"token_name"`

	// RequestTimeout bounds non-streaming calls (session creation).
	// Streamed turns are bounded only by cancellation.
	RequestTimeout Duration `yaml:"request_timeout" json:"request_timeout"`
}

// ToolsConfig configures local tool execution.
type ToolsConfig struct {
	Kinds            []string `yaml:"kinds" json:"kinds"`
	Shell            string   `yaml:"shell" json:"shell"`
	WorkingDirectory string   `yaml:"working_directory" json:"working_directory"`
	DefaultTimeout   Duration `yaml:"default_timeout" json:"default_timeout"`
	MaxTimeout       Duration `yaml:"max_timeout" json:"max_timeout"`
	MaxOutputBytes   int      `yaml:"max_output_bytes" json:"max_output_bytes"`
}

// AttachmentsConfig configures inline attachment materialization.
type AttachmentsConfig struct {
	// Directory receives temp files. Empty means os.TempDir().
	Directory string `yaml:"directory" json:"directory"`
}

// CredentialsConfig configures per-connection credential staging.
type CredentialsConfig struct {
	// HomeEnv is the variable pointed at the staged directory.
	HomeEnv string `yaml:"home_env" json:"home_env"`

	// Directory is the parent of staged credential directories. Empty
	// means os.TempDir().
	Directory string `yaml:"directory" json:"directory"`

	// AgeIdentityFile decrypts sealed credential blobs. Empty rejects
	// sealed blobs.
	AgeIdentityFile string `yaml:"age_identity_file" json:"age_identity_file"`
}

// TranscriptConfig configures the per-connection frame log.
type TranscriptConfig struct {
	// Directory receives one file per connection. Empty disables
	// transcripts.
	Directory string `yaml:"directory" json:"directory"`

	// Compression is "zstd", "lz4", or "none".
	Compression string `yaml:"compression" json:"compression"`
}

// LimitsConfig bounds socket I/O.
type LimitsConfig struct {
	MaxFrameBytes int      `yaml:"max_frame_bytes" json:"max_frame_bytes"`
	WriteTimeout  Duration `yaml:"write_timeout" json:"write_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Host: "127.0.0.1", Port: 9400},
		Auth: AuthConfig{
			Enabled:           false,
			SecretName:        "auth-secret",
			HandshakeTimeout:  Duration(5 * time.Second),
			MaxHandshakeBytes: 4096,
		},
		Engine: EngineConfig{
			BaseURL:        "http://127.0.0.1:8080",
			TokenName:      "engine-token",
			RequestTimeout: Duration(60 * time.Second),
		},
		Tools: ToolsConfig{
			Kinds:          []string{"shell", "bash", "local_shell", "exec_command"},
			Shell:          "/bin/sh",
			DefaultTimeout: Duration(30 * time.Second),
			MaxTimeout:     Duration(10 * time.Minute),
			MaxOutputBytes: 64 * 1024,
		},
		Credentials: CredentialsConfig{HomeEnv: "CODEX_HOME"},
		Transcript:  TranscriptConfig{Compression: "zstd"},
		Limits: LimitsConfig{
			MaxFrameBytes: 64 * 1024 * 1024,
			WriteTimeout:  Duration(30 * time.Second),
		},
	}
}

// Load returns Default overlaid with the file at path. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported extension (want .yaml, .yml, .json, or .jsonc)", path)
	}
	return nil
}

// ApplyEnvironment overlays TURNPROXY_* variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnvironment(lookup func(string) (string, bool)) error {
	var errs []error

	stringVar := func(name string, target *string) {
		if value, ok := lookup(EnvPrefix + name); ok && value != "" {
			*target = value
		}
	}
	intVar := func(name string, target *int) {
		value, ok := lookup(EnvPrefix + name)
		if !ok || value == "" {
			return
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*target = parsed
	}
	boolVar := func(name string, target *bool) {
		value, ok := lookup(EnvPrefix + name)
		if !ok || value == "" {
			return
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*target = parsed
	}

	stringVar("HOST", &c.Listen.Host)
	intVar("PORT", &c.Listen.Port)
	boolVar("AUTH", &c.Auth.Enabled)
	stringVar("SECRET_FILE", &c.Auth.SecretFile)
	stringVar("ENGINE_URL", &c.Engine.BaseURL)
	stringVar("WORKDIR", &c.Tools.WorkingDirectory)
	stringVar("HOME_ENV", &c.Credentials.HomeEnv)
	stringVar("AGE_IDENTITY", &c.Credentials.AgeIdentityFile)
	stringVar("TRANSCRIPT_DIR", &c.Transcript.Directory)

	return errors.Join(errs...)
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	for _, field := range []*string{
		&c.Auth.SecretFile,
		&c.Tools.WorkingDirectory,
		&c.Attachments.Directory,
		&c.Credentials.Directory,
		&c.Credentials.AgeIdentityFile,
		&c.Transcript.Directory,
	} {
		*field = expandVars(*field)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen.Host == "" {
		errs = append(errs, fmt.Errorf("listen.host is required"))
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}

	if c.Auth.SecretName == "" {
		errs = append(errs, fmt.Errorf("auth.secret_name is required"))
	}
	if c.Auth.HandshakeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("auth.handshake_timeout must be positive"))
	}
	if c.Auth.MaxHandshakeBytes <= 0 {
		errs = append(errs, fmt.Errorf("auth.max_handshake_bytes must be positive"))
	}

	if parsed, err := url.Parse(c.Engine.BaseURL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("engine.base_url %q must be an absolute http(s) URL", c.Engine.BaseURL))
	}
	if c.Engine.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.request_timeout must be positive"))
	}

	if len(c.Tools.Kinds) == 0 {
		errs = append(errs, fmt.Errorf("tools.kinds must name at least one kind"))
	}
	if c.Tools.Shell == "" {
		errs = append(errs, fmt.Errorf("tools.shell is required"))
	}
	if c.Tools.DefaultTimeout <= 0 {
		errs = append(errs, fmt.Errorf("tools.default_timeout must be positive"))
	}
	if c.Tools.MaxTimeout < c.Tools.DefaultTimeout {
		errs = append(errs, fmt.Errorf("tools.max_timeout (%s) is below tools.default_timeout (%s)", c.Tools.MaxTimeout, c.Tools.DefaultTimeout))
	}
	if c.Tools.MaxOutputBytes <= 0 {
		errs = append(errs, fmt.Errorf("tools.max_output_bytes must be positive"))
	}

	if c.Credentials.HomeEnv == "" {
		errs = append(errs, fmt.Errorf("credentials.home_env is required"))
	}

	switch c.Transcript.Compression {
	case "zstd", "lz4", "none":
	default:
		errs = append(errs, fmt.Errorf("transcript.compression %q must be one of: zstd, lz4, none", c.Transcript.Compression))
	}

	if c.Limits.MaxFrameBytes < c.Auth.MaxHandshakeBytes {
		errs = append(errs, fmt.Errorf("limits.max_frame_bytes must be at least auth.max_handshake_bytes"))
	}
	if c.Limits.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("limits.write_timeout must be positive"))
	}

	return errors.Join(errs...)
}
