// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package secrets

import (
	"errors"

	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
	"github.com/zalando/go-keyring"
)

// Compile-time interface check.
var _ Store = (*KeyringStore)(nil)

// KeyringStore backs Store with the OS keyring: Keychain on macOS,
// secret-service on Linux, Credential Manager on Windows.
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Set(service, key, value string) error {
	if err := validate(service, key); err != nil {
		return err
	}

	if err := keyring.Set(service, key, value); err != nil {
		return twerr.Wrapf(err, twerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return nil
}

func (s *KeyringStore) Get(service, key string) (string, error) {
	if err := validate(service, key); err != nil {
		return "", err
	}

	val, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", twerr.Errorf(twerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return "", twerr.Wrapf(err, twerr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := validate(service, key); err != nil {
		return err
	}

	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return twerr.Errorf(twerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return twerr.Wrapf(err, twerr.CodeSecretStoreFailure, "deleting secret %s/%s", service, key)
	}
	return nil
}

func validate(service, key string) error {
	if service == "" {
		return twerr.New(twerr.CodeSecretInvalidInput, "secrets: service must not be empty")
	}
	if key == "" {
		return twerr.New(twerr.CodeSecretInvalidInput, "secrets: key must not be empty")
	}
	return nil
}
