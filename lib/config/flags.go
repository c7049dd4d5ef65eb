// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags holds the command line overrides registered by RegisterFlags.
type Flags struct {
	set *pflag.FlagSet

	host             string
	port             int
	auth             bool
	secretFile       string
	engineURL        string
	workingDirectory string
	toolTimeout      time.Duration
	ageIdentity      string
	transcriptDir    string
	compression      string
}

// RegisterFlags adds the configuration flags to flagSet. Defaults shown
// in --help come from Default(); only flags the user sets override
// the file and environment layers.
func RegisterFlags(flagSet *pflag.FlagSet) *Flags {
	defaults := Default()
	flags := &Flags{set: flagSet}

	flagSet.StringVar(&flags.host, "host", defaults.Listen.Host, "listen host ("+EnvPrefix+"HOST)")
	flagSet.IntVar(&flags.port, "port", defaults.Listen.Port, "listen port ("+EnvPrefix+"PORT)")
	flagSet.BoolVar(&flags.auth, "auth", defaults.Auth.Enabled, "require the shared-secret handshake ("+EnvPrefix+"AUTH)")
	flagSet.StringVar(&flags.secretFile, "secret-file", "", "key=value file holding the auth-secret credential")
	flagSet.StringVar(&flags.engineURL, "engine-url", defaults.Engine.BaseURL, "execution engine base URL ("+EnvPrefix+"ENGINE_URL)")
	flagSet.StringVar(&flags.workingDirectory, "workdir", "", "default working directory for tool commands")
	flagSet.DurationVar(&flags.toolTimeout, "tool-timeout", defaults.Tools.DefaultTimeout.Std(), "default tool command timeout")
	flagSet.StringVar(&flags.ageIdentity, "age-identity", "", "age identity file for sealed credential blobs")
	flagSet.StringVar(&flags.transcriptDir, "transcript-dir", "", "write per-connection transcripts to this directory")
	flagSet.StringVar(&flags.compression, "transcript-compression", defaults.Transcript.Compression, "transcript compression: zstd, lz4, or none")
	return flags
}

// ApplyFlags overlays every flag the user explicitly set.
func (c *Config) ApplyFlags(flags *Flags) {
	changed := flags.set.Changed
	if changed("host") {
		c.Listen.Host = flags.host
	}
	if changed("port") {
		c.Listen.Port = flags.port
	}
	if changed("auth") {
		c.Auth.Enabled = flags.auth
	}
	if changed("secret-file") {
		c.Auth.SecretFile = flags.secretFile
	}
	if changed("engine-url") {
		c.Engine.BaseURL = flags.engineURL
	}
	if changed("workdir") {
		c.Tools.WorkingDirectory = flags.workingDirectory
	}
	if changed("tool-timeout") {
		c.Tools.DefaultTimeout = Duration(flags.toolTimeout)
		if c.Tools.MaxTimeout < c.Tools.DefaultTimeout {
			c.Tools.MaxTimeout = c.Tools.DefaultTimeout
		}
	}
	if changed("age-identity") {
		c.Credentials.AgeIdentityFile = flags.ageIdentity
	}
	if changed("transcript-dir") {
		c.Transcript.Directory = flags.transcriptDir
	}
	if changed("transcript-compression") {
		c.Transcript.Compression = flags.compression
	}
}
