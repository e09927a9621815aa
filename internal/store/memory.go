// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

// Compile-time interface check.
var _ SessionStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory SessionStore for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	if rec == nil || rec.SessionID == "" {
		return twerr.New(twerr.CodeStoreEncodeInvalid, "store: record requires a session id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *rec
	now := time.Now().UTC()
	if prev, ok := m.records[rec.SessionID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	m.records[rec.SessionID] = &stored
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, twerr.New(twerr.CodeStoreSessionNotFound, "store: session not found",
			twerr.FieldSessionID(id))
	}

	out := *rec
	return &out, nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
