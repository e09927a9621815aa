// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/turnwise-dev/turnwise/internal/provider"
	"github.com/turnwise-dev/turnwise/internal/tool"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

const (
	retryPrompt    = "The previous request to the model failed with an error: %v. Please retry the previous step."
	completePrompt = "Task marked complete."
	suspendPrompt  = "Session suspended: %s"
)

// runTurn executes one backend round and mutates the session in place. The
// loop inspects keepGoing and the terminal fields afterward.
func (s *state) runTurn(ctx context.Context) {
	s.turn++
	s.fireTurnStart(ctx)

	resp, err := s.invokeBackend(ctx)
	if err != nil {
		// A failed invocation never terminates the session. The failure is
		// narrated back into the conversation and the next turn retries;
		// retries are unbounded in count but bounded by MaxTurns.
		s.fireError(ctx, err, PhaseBackend)
		s.log.Warn("backend invocation failed, injecting retry message", "error", err, "turn", s.turn)
		s.messages = append(s.messages, provider.Text(provider.RoleUser, fmt.Sprintf(retryPrompt, err)))
		return
	}

	s.usage.Add(resp.Usage)

	if resp.Text != "" {
		s.final = resp.Text
		s.fireAssistantMessage(ctx, resp.Text)
	}

	for _, call := range resp.ToolCalls {
		if err := validateCall(call); err != nil {
			// Malformed calls are reported and skipped; the turn continues.
			s.fireError(ctx, err, PhaseToolCall)
			s.log.Warn("malformed tool call skipped", "tool", call.Name, "error", err, "turn", s.turn)
			continue
		}
		s.fireToolCall(ctx, call)
	}

	// A terminal signal short-circuits the turn: later results in the same
	// response are not reported, and no OnToolResult fires at all.
	for _, tr := range resp.ToolResults {
		out := tool.Classify(tr.Result)
		if out.Terminal() {
			s.settle(ctx, resp, out)
			return
		}
	}

	for _, tr := range resp.ToolResults {
		s.fireToolResult(ctx, tr)
	}

	if len(resp.ResponseMessages) > 0 {
		s.messages = append(s.messages, resp.ResponseMessages...)
	}

	s.fireMessagesUpdate(ctx)

	if s.cfg.TokenLimit > 0 {
		s.maybeSummarize(ctx)
	}
}

// invokeBackend performs one generation call, racing it against CallTimeout
// when one is configured. A timeout is treated identically to a backend error.
func (s *state) invokeBackend(ctx context.Context) (*provider.Response, error) {
	callCtx := ctx
	if s.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
	}

	req := provider.Request{
		SystemPrompt: s.cfg.SystemPrompt,
		Messages:     slices.Clone(s.messages),
		Tools:        append(slices.Clone(s.cfg.Tools), tool.CompletionTool()),
	}

	resp, err := s.backend.Generate(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, twerr.Wrapf(err, twerr.CodeBackendInvokeTimeout,
				"backend call exceeded %s", s.cfg.CallTimeout)
		}
		return nil, twerr.Wrap(err, twerr.CodeBackendInvokeFailure, "backend call",
			twerr.FieldTurn(s.turn))
	}
	if resp == nil {
		return nil, twerr.New(twerr.CodeBackendEmptyResponse, "backend returned no response")
	}
	return resp, nil
}

// settle applies a terminal tool outcome: the backend's response messages are
// appended as a whole batch, one synthetic closing user message is added, and
// the terminal fields are set. The loop stops after this turn.
func (s *state) settle(ctx context.Context, resp *provider.Response, out tool.Outcome) {
	s.messages = append(s.messages, resp.ResponseMessages...)

	switch out.Kind {
	case tool.OutcomeCompleted:
		s.messages = append(s.messages, provider.Text(provider.RoleUser, completePrompt))
		s.reason = ReasonTaskComplete
		s.taskRes = out.Result
		if out.Summary != "" {
			s.final = out.Summary
		}
		s.log.Info("session completed", "turn", s.turn)

	case tool.OutcomeSuspended:
		s.messages = append(s.messages, provider.Text(provider.RoleUser, fmt.Sprintf(suspendPrompt, out.Reason)))
		s.reason = ReasonSuspended
		s.suspend = &SuspendInfo{Reason: out.Reason, Data: out.Data}
		s.fireSuspend(ctx, out)
		s.log.Info("session suspended", "reason", out.Reason, "turn", s.turn)
	}

	s.keepGoing = false
}

// validateCall checks structural well-formedness of a tool call request.
func validateCall(call provider.ToolCall) error {
	if call.Name == "" {
		return twerr.New(twerr.CodeToolCallMalformed, "tool call has no name")
	}
	if len(call.Args) > 0 && !json.Valid(call.Args) {
		return twerr.New(twerr.CodeToolCallMalformed, "tool call args are not valid JSON",
			twerr.FieldTool(call.Name))
	}
	return nil
}
