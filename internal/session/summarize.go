// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package session

import (
	"context"
	"slices"

	"github.com/turnwise-dev/turnwise/internal/provider"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

const summarizeInstruction = "Summarize this conversation preserving key facts, decisions, and context."

// summaryMarker is the user message that precedes the condensed history.
const summaryMarker = "Previous conversation summary:"

// EstimateTokens approximates the token count of a history: total character
// length of all flattened message content divided by 4, rounded up. Crude on
// purpose; what matters is that it is pure and consistent for the same input.
func EstimateTokens(messages []provider.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Plain())
	}
	return (chars + 3) / 4
}

// maybeSummarize compacts history when the token estimate exceeds the
// configured limit. Failures leave history untouched and are logged only;
// an oversized history is degraded but safe.
func (s *state) maybeSummarize(ctx context.Context) {
	estimate := EstimateTokens(s.messages)
	if estimate <= s.cfg.TokenLimit {
		return
	}

	s.log.Debug("token estimate over limit, summarizing history",
		"estimate", estimate, "limit", s.cfg.TokenLimit, "messages", len(s.messages))

	if err := s.summarize(ctx); err != nil {
		s.log.Warn("history summarization failed, keeping full history", "error", err)
	}
}

// summarize runs the compaction protocol: before-hook selects the input,
// the backend condenses it, the 2-message replacement passes through the
// after-hook, and the whole history is replaced with the hook's output.
// Any failure aborts without mutating history.
func (s *state) summarize(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = twerr.Errorf(twerr.CodeSummarizeHookFailure, "summarization panic: %v", r)
		}
	}()

	input := slices.Clone(s.messages)
	if hook := s.cfg.Callbacks.BeforeSummarize; hook != nil {
		input = hook(ctx, s.id, input)
		if len(input) == 0 {
			return twerr.New(twerr.CodeSummarizeHookFailure, "before-summarize hook returned no messages")
		}
	}

	callCtx := ctx
	if s.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
	}

	prompt := summarizeInstruction + "\n\n" + provider.RenderTranscript(input)
	resp, genErr := s.backend.Generate(callCtx, provider.Request{
		Messages: []provider.Message{provider.Text(provider.RoleUser, prompt)},
	})
	if genErr != nil {
		return twerr.Wrap(genErr, twerr.CodeSummarizeBackendFailure, "summarization backend call")
	}
	if resp == nil || resp.Text == "" {
		return twerr.New(twerr.CodeSummarizeEmptySummary, "backend returned an empty summary")
	}
	s.usage.Add(resp.Usage)

	replacement := []provider.Message{
		provider.Text(provider.RoleUser, summaryMarker),
		provider.Text(provider.RoleAssistant, resp.Text),
	}
	if hook := s.cfg.Callbacks.AfterSummarize; hook != nil {
		replacement = hook(ctx, s.id, replacement)
		if len(replacement) == 0 {
			return twerr.New(twerr.CodeSummarizeHookFailure, "after-summarize hook returned no messages")
		}
	}

	s.messages = replacement
	s.fireMessagesUpdate(ctx)
	s.log.Debug("history summarized", "messages", len(replacement))
	return nil
}
