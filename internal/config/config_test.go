// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turnwise-dev/turnwise/internal/config"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "turnwise.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", nil, discard())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8420", cfg.Server.Listen)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "turnwise.db", cfg.Storage.Path)
	assert.Equal(t, "anthropic", cfg.Session.Provider)
	assert.Equal(t, 50, cfg.Session.MaxTurns)
	assert.Equal(t, 0, cfg.Session.TokenLimit)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: "0.0.0.0:9000"
providers:
  anthropic:
    api_key: "sk-test"
    model: "claude-sonnet-4-5"
session:
  provider: anthropic
  max_turns: 12
  token_limit: 4000
storage:
  backend: memory
`)

	cfg, err := config.Load(path, nil, discard())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	assert.Equal(t, 12, cfg.Session.MaxTurns)
	assert.Equal(t, 4000, cfg.Session.TokenLimit)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	require.Contains(t, cfg.Providers, "anthropic")
	assert.Equal(t, "sk-test", cfg.Providers["anthropic"].APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil, discard())
	require.Error(t, err)
	assert.Equal(t, twerr.CodeConfigLoadReadFailure, twerr.CodeOf(err))
}

func TestLoad_CollectsAllValidationErrors(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: "not-an-address"
session:
  provider: "llama-at-home"
  max_turns: -1
storage:
  backend: "postgres"
`)

	_, err := config.Load(path, nil, discard())
	require.Error(t, err)
	assert.Equal(t, twerr.CodeConfigValidateInvalidValue, twerr.CodeOf(err))
	for _, fragment := range []string{"server.listen", "session.provider", "max_turns", "storage.backend"} {
		assert.Contains(t, err.Error(), fragment)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TURNWISE_SESSION_MAX_TURNS", "7")

	cfg, err := config.Load("", nil, discard())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Session.MaxTurns)
}

func TestBootstrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "turnwise.yaml")

	written := config.Bootstrap(path, discard())
	assert.Equal(t, path, written)

	// Second call is a no-op.
	assert.Empty(t, config.Bootstrap(path, discard()))

	// The bootstrapped file must itself load, apart from the unresolved
	// keyring reference it ships with.
	cfg, err := config.Load(path, nil, discard())
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Session.Provider)
	assert.Equal(t, "keyring://turnwise/anthropic-api-key", cfg.Providers["anthropic"].APIKey)
}
