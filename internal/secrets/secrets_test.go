// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package secrets_test

import (
	"log/slog"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turnwise-dev/turnwise/internal/secrets"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

// fakeStore is an in-memory secrets.Store.
type fakeStore struct {
	values map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]string)}
}

func (f *fakeStore) Set(service, key, value string) error {
	f.values[service+"/"+key] = value
	return nil
}

func (f *fakeStore) Get(service, key string) (string, error) {
	val, ok := f.values[service+"/"+key]
	if !ok {
		return "", twerr.Errorf(twerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	return val, nil
}

func (f *fakeStore) Delete(service, key string) error {
	delete(f.values, service+"/"+key)
	return nil
}

func TestParseKeyringRef(t *testing.T) {
	service, key, err := secrets.ParseKeyringRef("keyring://turnwise/anthropic-api-key")
	require.NoError(t, err)
	assert.Equal(t, "turnwise", service)
	assert.Equal(t, "anthropic-api-key", key)
}

func TestParseKeyringRef_Invalid(t *testing.T) {
	for _, ref := range []string{
		"not-a-ref",
		"keyring://",
		"keyring://service-only",
		"keyring:///key-only",
		"keyring://service/",
	} {
		_, _, err := secrets.ParseKeyringRef(ref)
		require.Error(t, err, "ref %q must be rejected", ref)
		assert.Equal(t, twerr.CodeSecretInvalidInput, twerr.CodeOf(err))
	}
}

func TestResolve_PassthroughAndLookup(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Set("turnwise", "api-key", "sk-12345"))

	got, err := secrets.Resolve(store, "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", got)

	got, err = secrets.Resolve(store, "keyring://turnwise/api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-12345", got)

	_, err = secrets.Resolve(store, "keyring://turnwise/missing")
	require.Error(t, err)
	assert.Equal(t, twerr.CodeSecretResolveFailure, twerr.CodeOf(err))
}

func TestResolveViper(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Set("turnwise", "api-key", "sk-resolved"))

	v := viper.New()
	v.Set("providers.anthropic.api_key", "keyring://turnwise/api-key")
	v.Set("providers.openai.api_key", "keyring://turnwise/missing")
	v.Set("server.listen", ":8420")

	secrets.ResolveViper(v, store, slog.New(slog.DiscardHandler))

	assert.Equal(t, "sk-resolved", v.GetString("providers.anthropic.api_key"))
	// Unresolvable references stay in place so the error surfaces at use.
	assert.Equal(t, "keyring://turnwise/missing", v.GetString("providers.openai.api_key"))
	assert.Equal(t, ":8420", v.GetString("server.listen"))
}
