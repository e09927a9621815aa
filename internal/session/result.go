// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package session

import (
	"github.com/turnwise-dev/turnwise/internal/provider"
)

// CompletionReason is the terminal outcome discriminator of a session.
// Exactly one value is set when the session settles.
type CompletionReason string

const (
	// ReasonTaskComplete marks a session ended by the task-completion signal.
	ReasonTaskComplete CompletionReason = "task_complete"
	// ReasonMaxTurns marks a session that exhausted its turn budget.
	ReasonMaxTurns CompletionReason = "max_turns"
	// ReasonError marks a session terminated by an uncaught fault.
	ReasonError CompletionReason = "error"
	// ReasonSuspended marks a session paused pending an external event.
	ReasonSuspended CompletionReason = "suspended"
)

// Valid reports whether r is one of the four closed enum values.
func (r CompletionReason) Valid() bool {
	switch r {
	case ReasonTaskComplete, ReasonMaxTurns, ReasonError, ReasonSuspended:
		return true
	}
	return false
}

// SuspendInfo carries the suspension signal's payload out of a settled
// session so the caller can persist it and resume later.
type SuspendInfo struct {
	Reason string `json:"reason"`
	Data   any    `json:"data,omitempty"`
}

// Result is the settled outcome of a session. Messages holds the full final
// history, which callers persist to implement resumption.
type Result struct {
	SessionID        string             `json:"session_id"`
	FinalOutput      string             `json:"final_output"`
	TotalTurns       int                `json:"total_turns"`
	CompletionReason CompletionReason   `json:"completion_reason"`
	Messages         []provider.Message `json:"messages"`
	TaskResult       any                `json:"task_result,omitempty"`
	Suspend          *SuspendInfo       `json:"suspend,omitempty"`
	Usage            provider.Usage     `json:"usage"`
	Err              error              `json:"-"`
}
