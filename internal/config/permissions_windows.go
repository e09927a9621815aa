// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package config

import "log/slog"

// WarnInsecurePermissions is a no-op on Windows, where POSIX permission bits
// do not map to the ACL model.
func WarnInsecurePermissions(_ string, _ *slog.Logger) {}
