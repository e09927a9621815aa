// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

// Package secrets resolves keyring://service/key references in configuration
// to values held in the operating system keyring, keeping provider API keys
// out of config files.
package secrets

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

const keyringScheme = "keyring://"

// Store is the secret storage backend. The default implementation uses the
// OS keyring; tests substitute an in-memory fake.
type Store interface {
	Set(service, key, value string) error
	Get(service, key string) (string, error)
	Delete(service, key string) error
}

// IsKeyringRef reports whether value uses the keyring:// scheme.
func IsKeyringRef(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringRef splits a keyring://service/key reference.
func ParseKeyringRef(ref string) (service, key string, err error) {
	if !IsKeyringRef(ref) {
		return "", "", twerr.Errorf(twerr.CodeSecretInvalidInput, "not a keyring reference: %q", ref)
	}

	parts := strings.SplitN(strings.TrimPrefix(ref, keyringScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", twerr.Errorf(twerr.CodeSecretInvalidInput,
			"invalid keyring reference %q: expected keyring://service/key", ref)
	}
	return parts[0], parts[1], nil
}

// Resolve returns value unchanged unless it is a keyring reference, in which
// case the referenced secret is fetched from the store.
func Resolve(store Store, value string) (string, error) {
	if !IsKeyringRef(value) {
		return value, nil
	}

	service, key, err := ParseKeyringRef(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Get(service, key)
	if err != nil {
		return "", twerr.Wrapf(err, twerr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveViper walks all string values of a loaded Viper instance and
// resolves keyring references in place. Failures are logged and the original
// reference is kept, so the error surfaces where the value is actually used.
func ResolveViper(v *viper.Viper, store Store, log *slog.Logger) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringRef(val) {
			continue
		}

		resolved, err := Resolve(store, val)
		if err != nil {
			log.Warn("keeping unresolved keyring reference", "config_key", key, "error", err)
			continue
		}
		v.Set(key, resolved)
	}
}
