// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turnwise-dev/turnwise/internal/provider"
	"github.com/turnwise-dev/turnwise/internal/session"
	"github.com/turnwise-dev/turnwise/internal/store"
	"github.com/turnwise-dev/turnwise/internal/store/sqlite"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

func newStore(t *testing.T) *sqlite.SessionStore {
	t.Helper()

	s, err := sqlite.New(filepath.Join(t.TempDir(), "turnwise.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecord(id string) *store.Record {
	return &store.Record{
		SessionID:        id,
		CompletionReason: string(session.ReasonSuspended),
		FinalOutput:      "paused for approval",
		TotalTurns:       4,
		Messages: []provider.Message{
			provider.Text(provider.RoleUser, "start"),
			provider.Text(provider.RoleAssistant, "working"),
		},
		TaskResult: map[string]any{"items": float64(2)},
		Suspend: &session.SuspendInfo{
			Reason: "waiting for approval",
			Data:   map[string]any{"request_id": "r-1"},
		},
		Usage: provider.Usage{InputTokens: 100, OutputTokens: 40},
	}
}

func TestSaveAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleRecord("sess-1")))

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, string(session.ReasonSuspended), got.CompletionReason)
	assert.Equal(t, 4, got.TotalTurns)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "start", got.Messages[0].Content)
	require.NotNil(t, got.Suspend)
	assert.Equal(t, "waiting for approval", got.Suspend.Reason)
	assert.Equal(t, map[string]any{"request_id": "r-1"}, got.Suspend.Data)
	assert.Equal(t, map[string]any{"items": float64(2)}, got.TaskResult)
	assert.Equal(t, 100, got.Usage.InputTokens)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGet_NotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, twerr.CodeStoreSessionNotFound, twerr.CodeOf(err))
	assert.True(t, twerr.IsNotFound(err))
}

func TestSave_Upsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := sampleRecord("sess-1")
	require.NoError(t, s.Save(ctx, rec))

	rec.CompletionReason = string(session.ReasonTaskComplete)
	rec.Suspend = nil
	rec.TotalTurns = 6
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, string(session.ReasonTaskComplete), got.CompletionReason)
	assert.Equal(t, 6, got.TotalTurns)
	assert.Nil(t, got.Suspend)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestList_MostRecentFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleRecord("older")))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Save(ctx, sampleRecord("newer")))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "newer", all[0].SessionID)
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleRecord("sess-1")))
	require.NoError(t, s.Delete(ctx, "sess-1"))
	require.NoError(t, s.Delete(ctx, "sess-1"))

	_, err := s.Get(ctx, "sess-1")
	assert.True(t, twerr.IsNotFound(err))
}

func TestRoundTrip_ToResult(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	res := &session.Result{
		SessionID:        "sess-rt",
		CompletionReason: session.ReasonSuspended,
		Messages: []provider.Message{
			provider.Text(provider.RoleUser, "hello"),
		},
		Suspend: &session.SuspendInfo{Reason: "blocked"},
	}
	require.NoError(t, s.Save(ctx, store.FromResult(res)))

	got, err := s.Get(ctx, "sess-rt")
	require.NoError(t, err)

	back := got.ToResult()
	assert.Equal(t, session.ReasonSuspended, back.CompletionReason)
	require.NotNil(t, back.Suspend)
	assert.Equal(t, "blocked", back.Suspend.Reason)
	assert.Equal(t, res.Messages, back.Messages)
}
