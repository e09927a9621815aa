// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

// Package config loads and validates the turnwise configuration from YAML
// with environment overrides and keyring secret resolution.
package config

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/turnwise-dev/turnwise/internal/secrets"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

// Config is the top-level turnwise configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Session   SessionConfig             `mapstructure:"session"`
	Storage   StorageConfig             `mapstructure:"storage"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ProviderConfig holds credentials and endpoint for one generation backend.
// APIKey may be a keyring://service/key reference.
type ProviderConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Endpoint  string `mapstructure:"endpoint"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// SessionConfig sets session loop defaults. Per-request values override them.
type SessionConfig struct {
	Provider           string `mapstructure:"provider"`
	SystemPrompt       string `mapstructure:"system_prompt"`
	MaxTurns           int    `mapstructure:"max_turns"`
	TokenLimit         int    `mapstructure:"token_limit"`
	CallTimeoutSeconds int    `mapstructure:"call_timeout_seconds"`
}

// StorageConfig selects the session store backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from path (optional) with TURNWISE_-prefixed
// environment overrides. Keyring references in string values are resolved
// through store before unmarshalling.
func Load(path string, store secrets.Store, log *slog.Logger) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TURNWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, twerr.Wrapf(err, twerr.CodeConfigLoadReadFailure, "reading config %s", path)
		}
	}

	if store != nil {
		secrets.ResolveViper(v, store, log)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, twerr.Wrap(err, twerr.CodeConfigValidateInvalidValue, "unmarshalling config")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, twerr.Wrap(errors.Join(errs...), twerr.CodeConfigValidateInvalidValue, "validating config")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8420")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "turnwise.db")
	v.SetDefault("session.provider", "anthropic")
	v.SetDefault("session.max_turns", 50)
	v.SetDefault("session.token_limit", 0)
	v.SetDefault("session.call_timeout_seconds", 0)
}

// Validate collects all logical errors in the configuration rather than
// stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, twerr.New(twerr.CodeConfigValidateInvalidValue,
			"config: server.listen must not be empty"))
	} else if err := validateHostPort(c.Server.Listen); err != nil {
		errs = append(errs, err)
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, twerr.New(twerr.CodeConfigValidateInvalidValue,
				"config: storage.path is required for the sqlite backend"))
		}
	case "memory":
	default:
		errs = append(errs, twerr.Errorf(twerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q", c.Storage.Backend))
	}

	switch c.Session.Provider {
	case "anthropic", "openai":
	default:
		errs = append(errs, twerr.Errorf(twerr.CodeConfigValidateInvalidValue,
			"config: session.provider must be one of [anthropic, openai], got %q", c.Session.Provider))
	}

	if c.Session.MaxTurns <= 0 {
		errs = append(errs, twerr.Errorf(twerr.CodeConfigValidateInvalidValue,
			"config: session.max_turns must be positive, got %d", c.Session.MaxTurns))
	}
	if c.Session.TokenLimit < 0 {
		errs = append(errs, twerr.Errorf(twerr.CodeConfigValidateInvalidValue,
			"config: session.token_limit must not be negative, got %d", c.Session.TokenLimit))
	}
	if c.Session.CallTimeoutSeconds < 0 {
		errs = append(errs, twerr.Errorf(twerr.CodeConfigValidateInvalidValue,
			"config: session.call_timeout_seconds must not be negative, got %d", c.Session.CallTimeoutSeconds))
	}

	return errs
}

func validateHostPort(addr string) error {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return twerr.Errorf(twerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return twerr.Errorf(twerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be 0-65535, got %q", portStr)
	}
	return nil
}
