// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

//go:embed turnwise.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/turnwise/turnwise.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", twerr.Wrap(err, twerr.CodeConfigLoadReadFailure, "resolving home directory")
	}
	return filepath.Join(home, ".config", "turnwise", "turnwise.yaml"), nil
}

// Bootstrap writes the commented default config to path if nothing exists
// there yet. Returns the path written, or empty when the file already existed
// or writing failed; failure is logged and skipped, never fatal.
func Bootstrap(path string, log *slog.Logger) string {
	if _, err := os.Stat(path); err == nil {
		return ""
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		log.Debug("skipping config bootstrap: cannot create directory", "path", path, "error", err)
		return ""
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		log.Debug("skipping config bootstrap: cannot write config", "path", path, "error", err)
		return ""
	}

	log.Info("created default config", "path", path)
	return path
}
