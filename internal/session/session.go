// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

// Package session implements the bounded turn loop between a caller and a
// text-generation backend with callable tools. A session runs until the
// task-completion tool fires, a tool suspends it, the turn budget runs out,
// or an internal fault settles it with an error.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/turnwise-dev/turnwise/internal/provider"
	"github.com/turnwise-dev/turnwise/internal/tool"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

// DefaultMaxTurns bounds a session when Config.MaxTurns is unset.
const DefaultMaxTurns = 50

// continuePrompt is appended when a resumed history ends with an assistant
// message, so the backend is never invoked on an assistant-terminated history.
const continuePrompt = "Please continue."

// Config describes one session. Either Prompt or Messages must be set; a
// resumed Messages history takes precedence over Prompt.
type Config struct {
	// SessionID identifies the session. Generated when empty.
	SessionID string

	SystemPrompt string

	// Tools is the caller's tool catalog. The reserved task-completion tool
	// is always added on top of it; registering a tool under that name is a
	// conflict, not an override.
	Tools []tool.Tool

	// Messages is a resumed history from a prior settled session.
	Messages []provider.Message

	// Prompt is the single starting user message for a fresh session.
	Prompt string

	// MaxTurns bounds the loop. Defaults to DefaultMaxTurns.
	MaxTurns int

	// TokenLimit, when positive, triggers history summarization once the
	// estimated token count exceeds it.
	TokenLimit int

	// CallTimeout, when positive, bounds each individual backend invocation.
	// It does not bound the session as a whole.
	CallTimeout time.Duration

	Callbacks Callbacks

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Handle is returned synchronously by Start: the session id and starting
// message are available before the first backend round trip completes, and
// the result is awaited separately.
type Handle struct {
	// ID is the session identifier.
	ID string

	// StartingMessage is the resolved starting or continuation message the
	// loop begins from.
	StartingMessage string

	done   chan struct{}
	result *Result
}

// Wait blocks until the session settles or ctx is cancelled. A settled
// session never returns an error from Wait; internal faults are carried in
// Result.Err with CompletionReason set to error.
func (h *Handle) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, twerr.Wrap(ctx.Err(), twerr.CodeSessionWaitCancelled, "waiting for session",
			twerr.FieldSessionID(h.ID))
	case <-h.done:
		return h.result, nil
	}
}

// state is the mutable session owned exclusively by its loop goroutine.
type state struct {
	id        string
	cfg       Config
	backend   provider.Generator
	log       *slog.Logger
	messages  []provider.Message
	turn      int
	keepGoing bool
	reason    CompletionReason
	final     string
	taskRes   any
	suspend   *SuspendInfo
	idle      int
	usage     provider.Usage
	fault     error
}

// Start validates the configuration and launches the session loop. The
// handle is returned immediately; the loop runs on its own goroutine until
// the session settles.
func Start(ctx context.Context, backend provider.Generator, cfg Config) (*Handle, error) {
	if backend == nil {
		return nil, twerr.New(twerr.CodeSessionInvalidConfig, "session: backend is required")
	}
	for _, t := range cfg.Tools {
		if t.Name == tool.ReservedCompletionName {
			return nil, twerr.New(twerr.CodeSessionReservedTool,
				fmt.Sprintf("session: tool name %q is reserved", tool.ReservedCompletionName))
		}
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	messages, starting, err := initialHistory(cfg)
	if err != nil {
		return nil, err
	}

	s := &state{
		id:        cfg.SessionID,
		cfg:       cfg,
		backend:   backend,
		log:       cfg.Logger.With("session_id", cfg.SessionID),
		messages:  messages,
		keepGoing: true,
	}

	h := &Handle{
		ID:              s.id,
		StartingMessage: starting,
		done:            make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		h.result = s.execute(ctx)
	}()

	return h, nil
}

// initialHistory resolves the effective starting history. A resumed history
// takes precedence over Prompt; an assistant-terminated resumed history gets
// a synthetic continuation message appended.
func initialHistory(cfg Config) ([]provider.Message, string, error) {
	if len(cfg.Messages) > 0 {
		messages := slices.Clone(cfg.Messages)
		last := messages[len(messages)-1]
		if last.Role == provider.RoleAssistant {
			messages = append(messages, provider.Text(provider.RoleUser, continuePrompt))
			return messages, continuePrompt, nil
		}
		return messages, last.Plain(), nil
	}

	if cfg.Prompt != "" {
		return []provider.Message{provider.Text(provider.RoleUser, cfg.Prompt)}, cfg.Prompt, nil
	}

	return nil, "", twerr.New(twerr.CodeSessionInvalidConfig,
		"session: either Prompt or Messages is required")
}

// execute drives the loop to a settled result. Faults anywhere in the loop
// body settle the session with reason error; they are carried in the result
// and reported through OnComplete, never re-thrown to the caller.
func (s *state) execute(ctx context.Context) *Result {
	if fault := s.runGuarded(ctx); fault != nil {
		s.reason = ReasonError
		s.fault = fault
		s.keepGoing = false
		s.log.Error("session settled by fault", "error", fault, "turn", s.turn)
	}

	result := &Result{
		SessionID:        s.id,
		FinalOutput:      s.final,
		TotalTurns:       s.turn,
		CompletionReason: s.reason,
		Messages:         s.messages,
		TaskResult:       s.taskRes,
		Suspend:          s.suspend,
		Usage:            s.usage,
		Err:              s.fault,
	}

	s.fireComplete(ctx, result)
	return result
}

func (s *state) runGuarded(ctx context.Context) (fault error) {
	defer func() {
		if r := recover(); r != nil {
			fault = twerr.Errorf(twerr.CodeSessionFault, "session loop panic: %v", r)
		}
	}()

	s.run(ctx)
	return nil
}

func (s *state) run(ctx context.Context) {
	for s.keepGoing && s.turn < s.cfg.MaxTurns {
		s.checkIdle(ctx)
		s.runTurn(ctx)
	}

	if s.keepGoing {
		s.keepGoing = false
		s.reason = ReasonMaxTurns
		s.final += fmt.Sprintf("\n\n[session ended: reached the maximum of %d turns]", s.cfg.MaxTurns)
		s.log.Info("session reached turn budget", "max_turns", s.cfg.MaxTurns)
	}
}

// fireComplete runs exactly once per session. A panicking OnComplete hook
// must not leak past the session boundary, so it is absorbed here too.
func (s *state) fireComplete(ctx context.Context, result *Result) {
	cb := s.cfg.Callbacks.OnComplete
	if cb == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("completion callback panicked", "panic", r)
		}
	}()
	cb(ctx, result)
}

// ResumeFrom builds the configuration for resuming a suspended or settled
// session: the prior history plus one user message carrying the external
// event that unblocked it. The caller fills in tools, callbacks, and limits
// on the returned config.
func ResumeFrom(cfg Config, prior *Result, wakeMessage string) (Config, error) {
	if prior == nil || len(prior.Messages) == 0 {
		return Config{}, twerr.New(twerr.CodeSessionResumeInvalid, "session: prior result has no messages")
	}
	if wakeMessage == "" {
		return Config{}, twerr.New(twerr.CodeSessionResumeInvalid, "session: wake message is required")
	}

	cfg.Prompt = ""
	cfg.Messages = append(slices.Clone(prior.Messages), provider.Text(provider.RoleUser, wakeMessage))
	return cfg, nil
}
