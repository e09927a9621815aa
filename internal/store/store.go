// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

// Package store persists settled session results so callers can inspect past
// sessions and resume suspended ones. The session loop itself never touches
// the store; persistence is composed around it by the server and CLI.
package store

import (
	"context"
	"time"

	"github.com/turnwise-dev/turnwise/internal/provider"
	"github.com/turnwise-dev/turnwise/internal/session"
)

// Record is one persisted session outcome. Messages carries the full final
// history, which is everything resumption needs.
type Record struct {
	SessionID        string               `json:"session_id"`
	CompletionReason string               `json:"completion_reason"`
	FinalOutput      string               `json:"final_output"`
	TotalTurns       int                  `json:"total_turns"`
	Messages         []provider.Message   `json:"messages"`
	TaskResult       any                  `json:"task_result,omitempty"`
	Suspend          *session.SuspendInfo `json:"suspend,omitempty"`
	Error            string               `json:"error,omitempty"`
	Usage            provider.Usage       `json:"usage"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// FromResult converts a settled session result into a storable record.
func FromResult(res *session.Result) *Record {
	rec := &Record{
		SessionID:        res.SessionID,
		CompletionReason: string(res.CompletionReason),
		FinalOutput:      res.FinalOutput,
		TotalTurns:       res.TotalTurns,
		Messages:         res.Messages,
		TaskResult:       res.TaskResult,
		Suspend:          res.Suspend,
		Usage:            res.Usage,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

// ToResult reconstructs the result shape a resumption flow consumes. The
// original error value is not recoverable from storage; only its text is.
func (r *Record) ToResult() *session.Result {
	return &session.Result{
		SessionID:        r.SessionID,
		FinalOutput:      r.FinalOutput,
		TotalTurns:       r.TotalTurns,
		CompletionReason: session.CompletionReason(r.CompletionReason),
		Messages:         r.Messages,
		TaskResult:       r.TaskResult,
		Suspend:          r.Suspend,
		Usage:            r.Usage,
	}
}

// SessionStore persists session records.
type SessionStore interface {
	// Save upserts a record by session id.
	Save(ctx context.Context, rec *Record) error
	// Get returns the record for id, or a not-found error.
	Get(ctx context.Context, id string) (*Record, error)
	// List returns all records, most recently updated first.
	List(ctx context.Context) ([]*Record, error)
	// Delete removes the record for id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	Close() error
}
