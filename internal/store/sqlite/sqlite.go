// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

// Package sqlite implements store.SessionStore backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/turnwise-dev/turnwise/internal/provider"
	"github.com/turnwise-dev/turnwise/internal/session"
	"github.com/turnwise-dev/turnwise/internal/store"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

// Compile-time interface check.
var _ store.SessionStore = (*SessionStore)(nil)

// SessionStore persists session records in a single SQLite database.
type SessionStore struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath and initialises the
// sessions table.
func New(dbPath string) (*SessionStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, twerr.Wrap(err, twerr.CodeStoreOpenFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, twerr.Wrap(err, twerr.CodeStoreOpenFailure, "pinging sqlite db")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, twerr.Wrap(err, twerr.CodeStoreOpenFailure, "migrating sqlite db")
	}

	return &SessionStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
	id                TEXT PRIMARY KEY,
	completion_reason TEXT NOT NULL DEFAULT '',
	final_output      TEXT NOT NULL DEFAULT '',
	total_turns       INTEGER NOT NULL DEFAULT 0,
	messages          TEXT NOT NULL DEFAULT '[]',
	task_result       TEXT NOT NULL DEFAULT 'null',
	suspend_reason    TEXT NOT NULL DEFAULT '',
	suspend_data      TEXT NOT NULL DEFAULT 'null',
	error             TEXT NOT NULL DEFAULT '',
	input_tokens      INTEGER NOT NULL DEFAULT 0,
	output_tokens     INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

func (s *SessionStore) Save(ctx context.Context, rec *store.Record) error {
	if rec == nil || rec.SessionID == "" {
		return twerr.New(twerr.CodeStoreEncodeInvalid, "store: record requires a session id")
	}

	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return twerr.Wrap(err, twerr.CodeStoreEncodeInvalid, "encoding messages",
			twerr.FieldSessionID(rec.SessionID))
	}
	taskResult, err := json.Marshal(rec.TaskResult)
	if err != nil {
		return twerr.Wrap(err, twerr.CodeStoreEncodeInvalid, "encoding task result",
			twerr.FieldSessionID(rec.SessionID))
	}

	suspendReason := ""
	suspendData := []byte("null")
	if rec.Suspend != nil {
		suspendReason = rec.Suspend.Reason
		if suspendData, err = json.Marshal(rec.Suspend.Data); err != nil {
			return twerr.Wrap(err, twerr.CodeStoreEncodeInvalid, "encoding suspend data",
				twerr.FieldSessionID(rec.SessionID))
		}
	}

	now := time.Now().UTC()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}

	const q = `INSERT INTO sessions
	(id, completion_reason, final_output, total_turns, messages, task_result,
	 suspend_reason, suspend_data, error, input_tokens, output_tokens, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	completion_reason = excluded.completion_reason,
	final_output      = excluded.final_output,
	total_turns       = excluded.total_turns,
	messages          = excluded.messages,
	task_result       = excluded.task_result,
	suspend_reason    = excluded.suspend_reason,
	suspend_data      = excluded.suspend_data,
	error             = excluded.error,
	input_tokens      = excluded.input_tokens,
	output_tokens     = excluded.output_tokens,
	updated_at        = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, q,
		rec.SessionID,
		rec.CompletionReason,
		rec.FinalOutput,
		rec.TotalTurns,
		string(messages),
		string(taskResult),
		suspendReason,
		string(suspendData),
		rec.Error,
		rec.Usage.InputTokens,
		rec.Usage.OutputTokens,
		formatTime(created),
		formatTime(now),
	)
	if err != nil {
		return twerr.Wrap(err, twerr.CodeStoreDatabaseFailure, "saving session",
			twerr.FieldSessionID(rec.SessionID))
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*store.Record, error) {
	const q = `SELECT id, completion_reason, final_output, total_turns, messages, task_result,
	suspend_reason, suspend_data, error, input_tokens, output_tokens, created_at, updated_at
FROM sessions WHERE id = ?`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, twerr.New(twerr.CodeStoreSessionNotFound, "store: session not found",
			twerr.FieldSessionID(id))
	}
	if err != nil {
		return nil, twerr.Wrap(err, twerr.CodeStoreDatabaseFailure, "getting session",
			twerr.FieldSessionID(id))
	}
	return rec, nil
}

func (s *SessionStore) List(ctx context.Context) ([]*store.Record, error) {
	const q = `SELECT id, completion_reason, final_output, total_turns, messages, task_result,
	suspend_reason, suspend_data, error, input_tokens, output_tokens, created_at, updated_at
FROM sessions ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, twerr.Wrap(err, twerr.CodeStoreDatabaseFailure, "listing sessions")
	}
	defer rows.Close()

	var out []*store.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, twerr.Wrap(err, twerr.CodeStoreDatabaseFailure, "scanning session row")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, twerr.Wrap(err, twerr.CodeStoreDatabaseFailure, "iterating sessions")
	}
	return out, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return twerr.Wrap(err, twerr.CodeStoreDatabaseFailure, "deleting session",
			twerr.FieldSessionID(id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*store.Record, error) {
	var rec store.Record
	var messages, taskResult, suspendReason, suspendData, createdAt, updatedAt string

	err := row.Scan(
		&rec.SessionID,
		&rec.CompletionReason,
		&rec.FinalOutput,
		&rec.TotalTurns,
		&messages,
		&taskResult,
		&suspendReason,
		&suspendData,
		&rec.Error,
		&rec.Usage.InputTokens,
		&rec.Usage.OutputTokens,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(messages), &rec.Messages); err != nil {
		return nil, err
	}
	if taskResult != "" && taskResult != "null" {
		if err := json.Unmarshal([]byte(taskResult), &rec.TaskResult); err != nil {
			return nil, err
		}
	}
	if suspendReason != "" {
		info := &session.SuspendInfo{Reason: suspendReason}
		if suspendData != "" && suspendData != "null" {
			if err := json.Unmarshal([]byte(suspendData), &info.Data); err != nil {
				return nil, err
			}
		}
		rec.Suspend = info
	}
	if rec.Messages == nil {
		rec.Messages = []provider.Message{}
	}

	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
