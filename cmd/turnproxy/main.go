// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/turnproxy/attachment"
	"github.com/bureau-foundation/turnproxy/credential"
	"github.com/bureau-foundation/turnproxy/engine"
	"github.com/bureau-foundation/turnproxy/lib/clock"
	"github.com/bureau-foundation/turnproxy/lib/config"
	"github.com/bureau-foundation/turnproxy/lib/process"
	"github.com/bureau-foundation/turnproxy/lib/sealed"
	"github.com/bureau-foundation/turnproxy/lib/secret"
	"github.com/bureau-foundation/turnproxy/lib/version"
	"github.com/bureau-foundation/turnproxy/proxy"
	"github.com/bureau-foundation/turnproxy/tool"
	"github.com/bureau-foundation/turnproxy/transcript"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "keygen":
			return runKeygen(os.Args[2:], os.Stdout)
		case "seal":
			return runSeal(os.Args[2:], os.Stdin, os.Stdout)
		}
	}

	flagSet := pflag.NewFlagSet("turnproxy", pflag.ContinueOnError)
	configPath := flagSet.String("config", os.Getenv(config.ConfigEnv), "YAML or JSONC config file ("+config.ConfigEnv+")")
	logLevel := flagSet.String("log-level", "info", "log level: debug, info, warn, or error")
	showVersion := flagSet.Bool("version", false, "print version information and exit")
	overrides := config.RegisterFlags(flagSet)
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return process.Usage(err)
	}

	if *showVersion {
		version.Print("turnproxy")
		return nil
	}

	logger, err := newLogger(os.Stderr, *logLevel)
	if err != nil {
		return process.Usage(err)
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnvironment(os.LookupEnv); err != nil {
		return process.Usage(fmt.Errorf("invalid environment: %w", err))
	}
	cfg.ApplyFlags(overrides)
	if err := cfg.Validate(); err != nil {
		return process.Usage(fmt.Errorf("invalid config: %w", err))
	}

	logger.Info("starting turnproxy",
		"version", version.Info(),
		"config", *configPath,
		"engine", cfg.Engine.BaseURL,
	)

	// Credential sources in priority order: systemd credentials, the
	// key=value secret file, then TURNPROXY_-prefixed environment.
	credentials := credential.DefaultChain(cfg.Auth.SecretFile, config.EnvPrefix)
	defer credentials.Close()

	var authToken string
	if cfg.Auth.Enabled {
		sharedSecret := credentials.Get(cfg.Auth.SecretName)
		if sharedSecret == nil {
			return fmt.Errorf("auth is enabled but credential %q was not found", cfg.Auth.SecretName)
		}
		authToken = proxy.DeriveToken(sharedSecret)
	} else if cfg.Listen.Host != "127.0.0.1" && cfg.Listen.Host != "localhost" && cfg.Listen.Host != "::1" {
		logger.Warn("listening on a non-loopback address without auth", "host", cfg.Listen.Host)
	}

	var identity *secret.Buffer
	if cfg.Credentials.AgeIdentityFile != "" {
		identity, err = sealed.LoadIdentity(cfg.Credentials.AgeIdentityFile)
		if err != nil {
			return err
		}
		defer identity.Close()
	}

	remote, err := engine.NewRemote(engine.RemoteConfig{
		BaseURL: cfg.Engine.BaseURL,
		Tokens: engine.TokenSource{
			HomeEnv:  cfg.Credentials.HomeEnv,
			Fallback: credentials.Get(cfg.Engine.TokenName),
		},
		RequestTimeout: cfg.Engine.RequestTimeout.Std(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("configuring engine client: %w", err)
	}

	executor := tool.NewExecutor(tool.Config{
		Kinds:            cfg.Tools.Kinds,
		Shell:            cfg.Tools.Shell,
		WorkingDirectory: cfg.Tools.WorkingDirectory,
		DefaultTimeout:   cfg.Tools.DefaultTimeout.Std(),
		MaxTimeout:       cfg.Tools.MaxTimeout.Std(),
		MaxOutputBytes:   cfg.Tools.MaxOutputBytes,
		Logger:           logger,
	})

	var transcriptConfig *transcript.Config
	if cfg.Transcript.Directory != "" {
		compression, err := transcript.ParseCompression(cfg.Transcript.Compression)
		if err != nil {
			return err
		}
		transcriptConfig = &transcript.Config{Directory: cfg.Transcript.Directory, Compression: compression}
		logger.Info("recording transcripts", "directory", cfg.Transcript.Directory, "compression", compression)
	}

	server, err := proxy.NewServer(proxy.ServerConfig{
		ListenAddress:     cfg.Listen.Address(),
		Engine:            remote,
		Tools:             executor,
		AuthToken:         authToken,
		HandshakeTimeout:  cfg.Auth.HandshakeTimeout.Std(),
		MaxHandshakeBytes: cfg.Auth.MaxHandshakeBytes,
		MaxFrameBytes:     cfg.Limits.MaxFrameBytes,
		WriteTimeout:      cfg.Limits.WriteTimeout.Std(),
		Attachments:       attachment.Config{Directory: cfg.Attachments.Directory},
		Credentials: credential.InjectorConfig{
			HomeEnv:   cfg.Credentials.HomeEnv,
			Directory: cfg.Credentials.Directory,
			Identity:  identity,
		},
		Transcript: transcriptConfig,
		Clock:      clock.Real(),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// newLogger writes text to a terminal and JSON otherwise.
func newLogger(output *os.File, level string) (*slog.Logger, error) {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	options := &slog.HandlerOptions{Level: parsed}

	if term.IsTerminal(int(output.Fd())) {
		return slog.New(slog.NewTextHandler(output, options)), nil
	}
	return slog.New(slog.NewJSONHandler(output, options)), nil
}
