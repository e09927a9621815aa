// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when the config file is group- or
// world-readable, since it can carry unresolved credentials. Best effort:
// it never fails startup.
func WarnInsecurePermissions(path string, log *slog.Logger) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		log.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	const groupOrOtherRead fs.FileMode = 0o044
	if info.Mode().Perm()&groupOrOtherRead != 0 {
		log.Warn("config file is readable by other users",
			"path", path, "mode", info.Mode(), "recommended", "0600")
	}
}
