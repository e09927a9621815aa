// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/turnwise-dev/turnwise/internal/config"
	"github.com/turnwise-dev/turnwise/internal/provider"
	"github.com/turnwise-dev/turnwise/internal/provider/anthropic"
	"github.com/turnwise-dev/turnwise/internal/provider/openai"
	"github.com/turnwise-dev/turnwise/internal/secrets"
	"github.com/turnwise-dev/turnwise/internal/session"
	"github.com/turnwise-dev/turnwise/internal/store"
	"github.com/turnwise-dev/turnwise/internal/store/sqlite"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

// NewRootCmd creates the root turnwise command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "turnwise",
		Short:         "turnwise — bounded agent session loop",
		Long:          "turnwise runs bounded, turn-based sessions between a prompt and a tool-calling model backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newInitCmd(),
		newRunCmd(),
		newResumeCmd(),
		newServeCmd(),
		newSessionsCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

// newLogger builds the CLI logger. Verbose switches to debug level.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig resolves the config path (flag, else the default location,
// bootstrapped on first use) and loads it with keyring resolution.
func loadConfig(cmd *cobra.Command, log *slog.Logger) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		config.Bootstrap(defaultPath, log)
		path = defaultPath
	}

	config.WarnInsecurePermissions(path, log)
	return config.Load(path, secrets.NewKeyringStore(), log)
}

// buildBackend constructs the configured generation backend.
func buildBackend(cfg *config.Config) (provider.Generator, error) {
	pc, ok := cfg.Providers[cfg.Session.Provider]
	if !ok {
		return nil, twerr.Errorf(twerr.CodeConfigValidateInvalidValue,
			"no provider config for %q", cfg.Session.Provider)
	}

	switch cfg.Session.Provider {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:    pc.APIKey,
			BaseURL:   pc.Endpoint,
			Model:     pc.Model,
			MaxTokens: pc.MaxTokens,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey:    pc.APIKey,
			BaseURL:   pc.Endpoint,
			Model:     pc.Model,
			MaxTokens: pc.MaxTokens,
		})
	default:
		return nil, twerr.Errorf(twerr.CodeConfigValidateInvalidValue,
			"unknown provider %q", cfg.Session.Provider)
	}
}

// buildStore constructs the configured session store.
func buildStore(cfg *config.Config) (store.SessionStore, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return sqlite.New(cfg.Storage.Path)
	}
}

// sessionDefaults maps config defaults onto a session config.
func sessionDefaults(cfg *config.Config) session.Config {
	return session.Config{
		SystemPrompt: cfg.Session.SystemPrompt,
		MaxTurns:     cfg.Session.MaxTurns,
		TokenLimit:   cfg.Session.TokenLimit,
		CallTimeout:  time.Duration(cfg.Session.CallTimeoutSeconds) * time.Second,
	}
}
