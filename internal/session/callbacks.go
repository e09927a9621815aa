// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package session

import (
	"context"

	"github.com/turnwise-dev/turnwise/internal/provider"
	"github.com/turnwise-dev/turnwise/internal/tool"
)

// ErrorPhase identifies which stage of a turn produced a recoverable error.
type ErrorPhase string

const (
	PhaseBackend  ErrorPhase = "backend"
	PhaseToolCall ErrorPhase = "tool-call"
)

// Callbacks is the optional observability surface of a session. Every hook is
// nullable; nil hooks are skipped. Hooks are invoked synchronously from the
// session goroutine and awaited to completion, so their ordering matches the
// turn protocol exactly. BeforeSummarize and AfterSummarize are transforms
// rather than observers: both default to identity when nil.
type Callbacks struct {
	OnTurnStart        func(ctx context.Context, sessionID string, turn int)
	OnAssistantMessage func(ctx context.Context, sessionID string, text string, turn int)
	OnToolCall         func(ctx context.Context, sessionID string, call provider.ToolCall, turn int)
	OnToolResult       func(ctx context.Context, sessionID string, result provider.ToolResult, turn int)
	OnError            func(ctx context.Context, sessionID string, err error, turn int, phase ErrorPhase)
	OnMessagesUpdate   func(ctx context.Context, sessionID string, messages []provider.Message)
	BeforeSummarize    func(ctx context.Context, sessionID string, history []provider.Message) []provider.Message
	AfterSummarize     func(ctx context.Context, sessionID string, summary []provider.Message) []provider.Message
	OnSuspend          func(ctx context.Context, sessionID string, reason string, data any, turn int)
	OnComplete         func(ctx context.Context, result *Result)
}

func (s *state) fireTurnStart(ctx context.Context) {
	if cb := s.cfg.Callbacks.OnTurnStart; cb != nil {
		cb(ctx, s.id, s.turn)
	}
}

func (s *state) fireAssistantMessage(ctx context.Context, text string) {
	if cb := s.cfg.Callbacks.OnAssistantMessage; cb != nil {
		cb(ctx, s.id, text, s.turn)
	}
}

func (s *state) fireToolCall(ctx context.Context, call provider.ToolCall) {
	if cb := s.cfg.Callbacks.OnToolCall; cb != nil {
		cb(ctx, s.id, call, s.turn)
	}
}

func (s *state) fireToolResult(ctx context.Context, result provider.ToolResult) {
	if cb := s.cfg.Callbacks.OnToolResult; cb != nil {
		cb(ctx, s.id, result, s.turn)
	}
}

func (s *state) fireError(ctx context.Context, err error, phase ErrorPhase) {
	if cb := s.cfg.Callbacks.OnError; cb != nil {
		cb(ctx, s.id, err, s.turn, phase)
	}
}

func (s *state) fireMessagesUpdate(ctx context.Context) {
	if cb := s.cfg.Callbacks.OnMessagesUpdate; cb != nil {
		cb(ctx, s.id, s.messages)
	}
}

func (s *state) fireSuspend(ctx context.Context, out tool.Outcome) {
	if cb := s.cfg.Callbacks.OnSuspend; cb != nil {
		cb(ctx, s.id, out.Reason, out.Data, s.turn)
	}
}
