// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turnwise-dev/turnwise/internal/provider"
	"github.com/turnwise-dev/turnwise/internal/session"
	"github.com/turnwise-dev/turnwise/internal/tool"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

// scriptedBackend replays a fixed sequence of responses, one per Generate
// call, recording every request. The last step repeats if the script runs out.
type scriptedBackend struct {
	calls []provider.Request
	steps []func(provider.Request) (*provider.Response, error)
}

func (b *scriptedBackend) Generate(_ context.Context, req provider.Request) (*provider.Response, error) {
	b.calls = append(b.calls, req)
	i := len(b.calls) - 1
	if i >= len(b.steps) {
		i = len(b.steps) - 1
	}
	return b.steps[i](req)
}

func respond(resp *provider.Response) func(provider.Request) (*provider.Response, error) {
	return func(provider.Request) (*provider.Response, error) { return resp, nil }
}

func fail(err error) func(provider.Request) (*provider.Response, error) {
	return func(provider.Request) (*provider.Response, error) { return nil, err }
}

func textResponse(text string) *provider.Response {
	return &provider.Response{
		Text:             text,
		ResponseMessages: []provider.Message{provider.Text(provider.RoleAssistant, text)},
	}
}

// toolResponse builds a full backend round: an assistant tool-call message
// followed by a user tool-result message, the canonical two-message form.
func toolResponse(name string, result any) *provider.Response {
	args := json.RawMessage(`{}`)
	return &provider.Response{
		ToolCalls:   []provider.ToolCall{{ID: "tc-1", Name: name, Args: args}},
		ToolResults: []provider.ToolResult{{ID: "tc-1", Name: name, Result: result}},
		ResponseMessages: []provider.Message{
			{Role: provider.RoleAssistant, Parts: []provider.Part{
				{Type: provider.PartTypeToolCall, ToolCallID: "tc-1", ToolName: name, Args: args},
			}},
			{Role: provider.RoleUser, Parts: []provider.Part{
				{Type: provider.PartTypeToolResult, ToolCallID: "tc-1", ToolName: name, Result: result},
			}},
		},
	}
}

func completionResponse(summary string) *provider.Response {
	return toolResponse(tool.ReservedCompletionName, tool.Completion{Summary: summary})
}

func wait(t *testing.T, h *session.Handle) *session.Result {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := h.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestStart_ImmediateCompletion(t *testing.T) {
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(completionResponse("all done")),
	}}

	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt: "do the thing",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, "do the thing", h.StartingMessage)

	res := wait(t, h)
	assert.Equal(t, session.ReasonTaskComplete, res.CompletionReason)
	assert.Equal(t, 1, res.TotalTurns)
	assert.Equal(t, "all done", res.FinalOutput)
	assert.NoError(t, res.Err)
}

func TestStart_ReservedToolRejected(t *testing.T) {
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(completionResponse("done")),
	}}

	_, err := session.Start(context.Background(), backend, session.Config{
		Prompt: "hi",
		Tools:  []tool.Tool{{Name: tool.ReservedCompletionName}},
	})
	require.Error(t, err)
	assert.Equal(t, twerr.CodeSessionReservedTool, twerr.CodeOf(err))
}

func TestStart_RequiresPromptOrMessages(t *testing.T) {
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(textResponse("hi")),
	}}

	_, err := session.Start(context.Background(), backend, session.Config{})
	require.Error(t, err)
	assert.Equal(t, twerr.CodeSessionInvalidConfig, twerr.CodeOf(err))
}

func TestStart_ResumedHistoryAssistantLast(t *testing.T) {
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(completionResponse("done")),
	}}

	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt: "ignored when history is present",
		Messages: []provider.Message{
			provider.Text(provider.RoleUser, "earlier question"),
			provider.Text(provider.RoleAssistant, "earlier answer"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Please continue.", h.StartingMessage)

	wait(t, h)

	// The backend must never see an assistant-terminated history.
	require.Len(t, backend.calls, 1)
	msgs := backend.calls[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, provider.RoleUser, msgs[2].Role)
	assert.Equal(t, "Please continue.", msgs[2].Content)
}

func TestMaxTurns(t *testing.T) {
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(textResponse("still thinking")),
	}}

	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt:   "never finishes",
		MaxTurns: 3,
	})
	require.NoError(t, err)

	res := wait(t, h)
	assert.Equal(t, session.ReasonMaxTurns, res.CompletionReason)
	assert.Equal(t, 3, res.TotalTurns)
	assert.Contains(t, res.FinalOutput, "maximum of 3 turns")
	assert.Len(t, backend.calls, 3)
}

func TestIdleReminder(t *testing.T) {
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(textResponse("working on it")),
		respond(textResponse("almost there")),
		respond(completionResponse("done")),
	}}

	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt: "do the thing",
	})
	require.NoError(t, err)

	res := wait(t, h)
	assert.Equal(t, session.ReasonTaskComplete, res.CompletionReason)
	require.Len(t, backend.calls, 3)

	// Two consecutive text-only turns: the reminder lands before the third
	// backend invocation, and not before the first two.
	for _, req := range backend.calls[:2] {
		for _, m := range req.Messages {
			assert.NotContains(t, m.Plain(), "task_complete")
		}
	}
	third := backend.calls[2].Messages
	last := third[len(third)-1]
	assert.Equal(t, provider.RoleUser, last.Role)
	assert.Contains(t, last.Content, "task_complete")

	reminders := 0
	for _, m := range res.Messages {
		if m.Role == provider.RoleUser && strings.Contains(m.Content, "task_complete") {
			reminders++
		}
	}
	assert.Equal(t, 1, reminders)
}

func TestSummarization_Default(t *testing.T) {
	long := strings.Repeat("x", 400)
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(textResponse(long)),
		respond(textResponse("condensed history")),
		respond(completionResponse("done")),
	}}

	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt:     "summarize me",
		TokenLimit: 10,
	})
	require.NoError(t, err)

	res := wait(t, h)
	assert.Equal(t, session.ReasonTaskComplete, res.CompletionReason)
	require.Len(t, backend.calls, 3)

	// Call 2 is the internal summarization round: one user message carrying
	// the instruction plus the serialized transcript, no tools.
	summaryReq := backend.calls[1]
	require.Len(t, summaryReq.Messages, 1)
	assert.Empty(t, summaryReq.Tools)
	assert.Contains(t, summaryReq.Messages[0].Content, "Summarize this conversation")
	assert.Contains(t, summaryReq.Messages[0].Content, long)

	// The next real turn sees exactly the 2-message replacement.
	next := backend.calls[2].Messages
	require.Len(t, next, 2)
	assert.Equal(t, provider.RoleUser, next[0].Role)
	assert.Equal(t, "Previous conversation summary:", next[0].Content)
	assert.Equal(t, provider.RoleAssistant, next[1].Role)
	assert.Equal(t, "condensed history", next[1].Content)
}

func TestSummarization_HooksKeepTail(t *testing.T) {
	long := strings.Repeat("y", 400)
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(textResponse("short note")),
		respond(textResponse(long)),
		respond(textResponse("condensed")),
		respond(completionResponse("done")),
	}}

	var withheld []provider.Message
	var snapshots [][]provider.Message

	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt:     "keep my tail",
		TokenLimit: 40,
		Callbacks: session.Callbacks{
			BeforeSummarize: func(_ context.Context, _ string, history []provider.Message) []provider.Message {
				withheld = history[len(history)-2:]
				return history[:len(history)-2]
			},
			AfterSummarize: func(_ context.Context, _ string, summary []provider.Message) []provider.Message {
				return append(summary, withheld...)
			},
			OnMessagesUpdate: func(_ context.Context, _ string, messages []provider.Message) {
				snapshots = append(snapshots, slices.Clone(messages))
			},
		},
	})
	require.NoError(t, err)

	res := wait(t, h)
	assert.Equal(t, session.ReasonTaskComplete, res.CompletionReason)

	// The replacement is the 2 summary messages plus the 2 re-appended ones.
	var compacted []provider.Message
	for _, snap := range snapshots {
		if len(snap) > 0 && snap[0].Content == "Previous conversation summary:" {
			compacted = snap
			break
		}
	}
	require.NotNil(t, compacted, "no post-summarization history observed")
	require.Len(t, compacted, 4)
	assert.Equal(t, "condensed", compacted[1].Content)
	assert.Equal(t, "short note", compacted[2].Content)
	assert.Equal(t, long, compacted[3].Content)
}

func TestSummarization_FailureKeepsHistory(t *testing.T) {
	long := strings.Repeat("z", 400)
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(textResponse(long)),
		fail(errors.New("summarizer unavailable")),
		respond(completionResponse("done")),
	}}

	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt:     "fragile summarizer",
		TokenLimit: 10,
	})
	require.NoError(t, err)

	res := wait(t, h)
	assert.Equal(t, session.ReasonTaskComplete, res.CompletionReason)
	assert.NoError(t, res.Err)

	// The failed compaction left the full history in place for the next turn.
	require.Len(t, backend.calls, 3)
	next := backend.calls[2].Messages
	require.Len(t, next, 2)
	assert.Equal(t, "fragile summarizer", next[0].Content)
	assert.Equal(t, long, next[1].Content)
}

func TestSuspension_RoundTrip(t *testing.T) {
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(toolResponse("await_approval", tool.Suspension{
			Reason: "waiting for human approval",
			Data:   map[string]any{"request_id": "r-42"},
		})),
	}}

	var toolResults []provider.ToolResult
	var suspends int

	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt: "needs approval",
		Callbacks: session.Callbacks{
			OnToolResult: func(_ context.Context, _ string, tr provider.ToolResult, _ int) {
				toolResults = append(toolResults, tr)
			},
			OnSuspend: func(_ context.Context, _ string, reason string, _ any, _ int) {
				suspends++
				assert.Equal(t, "waiting for human approval", reason)
			},
		},
	})
	require.NoError(t, err)

	res := wait(t, h)
	assert.Equal(t, session.ReasonSuspended, res.CompletionReason)
	require.NotNil(t, res.Suspend)
	assert.Equal(t, "waiting for human approval", res.Suspend.Reason)
	assert.Equal(t, 1, suspends)
	assert.Empty(t, toolResults, "terminal signals must not be reported as tool results")

	// Resume: prior history plus one wake message, completion on the next turn.
	resumed, err := session.ResumeFrom(session.Config{}, res, "approval granted")
	require.NoError(t, err)

	backend2 := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(completionResponse("finished after approval")),
	}}
	h2, err := session.Start(context.Background(), backend2, resumed)
	require.NoError(t, err)
	assert.Equal(t, "approval granted", h2.StartingMessage)

	res2 := wait(t, h2)
	assert.Equal(t, session.ReasonTaskComplete, res2.CompletionReason)
	// prior history + wake message + the completion turn's 3 messages.
	assert.Len(t, res2.Messages, len(res.Messages)+1+3)
}

func TestTerminalSignal_ShortCircuitsRemainingResults(t *testing.T) {
	resp := &provider.Response{
		ToolCalls: []provider.ToolCall{
			{ID: "tc-1", Name: "lookup", Args: json.RawMessage(`{}`)},
			{ID: "tc-2", Name: tool.ReservedCompletionName, Args: json.RawMessage(`{}`)},
		},
		ToolResults: []provider.ToolResult{
			{ID: "tc-1", Name: "lookup", Result: map[string]any{"rows": 3}},
			{ID: "tc-2", Name: tool.ReservedCompletionName, Result: tool.Completion{Summary: "done"}},
		},
		ResponseMessages: []provider.Message{
			provider.Text(provider.RoleAssistant, "wrapping up"),
		},
	}
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(resp),
	}}

	var toolResults []provider.ToolResult
	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt: "mixed batch",
		Callbacks: session.Callbacks{
			OnToolResult: func(_ context.Context, _ string, tr provider.ToolResult, _ int) {
				toolResults = append(toolResults, tr)
			},
		},
	})
	require.NoError(t, err)

	res := wait(t, h)
	assert.Equal(t, session.ReasonTaskComplete, res.CompletionReason)
	assert.Empty(t, toolResults)
}

func TestBackendError_RetriesConversationally(t *testing.T) {
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		fail(errors.New("upstream 500")),
		respond(completionResponse("recovered")),
	}}

	var phases []session.ErrorPhase
	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt: "flaky backend",
		Callbacks: session.Callbacks{
			OnError: func(_ context.Context, _ string, err error, _ int, phase session.ErrorPhase) {
				require.Error(t, err)
				phases = append(phases, phase)
			},
		},
	})
	require.NoError(t, err)

	res := wait(t, h)
	assert.Equal(t, session.ReasonTaskComplete, res.CompletionReason)
	assert.Equal(t, 2, res.TotalTurns, "the failed turn still counts")
	assert.NoError(t, res.Err)
	assert.Equal(t, []session.ErrorPhase{session.PhaseBackend}, phases)

	// The second call sees the injected retry message.
	require.Len(t, backend.calls, 2)
	msgs := backend.calls[1].Messages
	last := msgs[len(msgs)-1]
	assert.Equal(t, provider.RoleUser, last.Role)
	assert.Contains(t, last.Content, "upstream 500")
}

func TestMalformedToolCall_SkippedNotFatal(t *testing.T) {
	resp := &provider.Response{
		ToolCalls: []provider.ToolCall{
			{ID: "tc-1", Name: ""},
			{ID: "tc-2", Name: "lookup", Args: json.RawMessage(`{not json`)},
			{ID: "tc-3", Name: "lookup", Args: json.RawMessage(`{"q":"ok"}`)},
		},
		ToolResults: []provider.ToolResult{
			{ID: "tc-3", Name: "lookup", Result: "found it"},
		},
		ResponseMessages: []provider.Message{
			provider.Text(provider.RoleAssistant, "looked things up"),
		},
	}
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(resp),
		respond(completionResponse("done")),
	}}

	var calls []string
	var phases []session.ErrorPhase
	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt: "messy calls",
		Callbacks: session.Callbacks{
			OnToolCall: func(_ context.Context, _ string, call provider.ToolCall, _ int) {
				calls = append(calls, call.ID)
			},
			OnError: func(_ context.Context, _ string, _ error, _ int, phase session.ErrorPhase) {
				phases = append(phases, phase)
			},
		},
	})
	require.NoError(t, err)

	res := wait(t, h)
	assert.Equal(t, session.ReasonTaskComplete, res.CompletionReason)
	assert.Equal(t, []string{"tc-3"}, calls, "only the well-formed call is reported")
	assert.Equal(t, []session.ErrorPhase{session.PhaseToolCall, session.PhaseToolCall}, phases)
}

func TestFault_SettlesWithErrorReason(t *testing.T) {
	backend := provider.GeneratorFunc(func(context.Context, provider.Request) (*provider.Response, error) {
		panic("backend exploded")
	})

	var completions int
	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt: "doomed",
		Callbacks: session.Callbacks{
			OnComplete: func(_ context.Context, res *session.Result) {
				completions++
				assert.Equal(t, session.ReasonError, res.CompletionReason)
			},
		},
	})
	require.NoError(t, err)

	res := wait(t, h)
	assert.Equal(t, session.ReasonError, res.CompletionReason)
	require.Error(t, res.Err)
	assert.Equal(t, twerr.CodeSessionFault, twerr.CodeOf(res.Err))
	assert.Equal(t, 1, completions)
}

func TestCallbackOrdering(t *testing.T) {
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(&provider.Response{
			Text:        "checking",
			ToolCalls:   []provider.ToolCall{{ID: "tc-1", Name: "lookup", Args: json.RawMessage(`{}`)}},
			ToolResults: []provider.ToolResult{{ID: "tc-1", Name: "lookup", Result: "rows"}},
			ResponseMessages: []provider.Message{
				provider.Text(provider.RoleAssistant, "checking"),
			},
		}),
		respond(completionResponse("done")),
	}}

	var events []string
	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt: "ordered",
		Callbacks: session.Callbacks{
			OnTurnStart: func(_ context.Context, _ string, turn int) {
				events = append(events, "turn-start")
			},
			OnAssistantMessage: func(_ context.Context, _ string, _ string, _ int) {
				events = append(events, "assistant")
			},
			OnToolCall: func(_ context.Context, _ string, _ provider.ToolCall, _ int) {
				events = append(events, "tool-call")
			},
			OnToolResult: func(_ context.Context, _ string, _ provider.ToolResult, _ int) {
				events = append(events, "tool-result")
			},
			OnMessagesUpdate: func(_ context.Context, _ string, _ []provider.Message) {
				events = append(events, "messages-update")
			},
		},
	})
	require.NoError(t, err)

	wait(t, h)
	assert.Equal(t, []string{
		"turn-start", "assistant", "tool-call", "tool-result", "messages-update",
		"turn-start", "tool-call",
	}, events)
}

func TestWait_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	backend := provider.GeneratorFunc(func(ctx context.Context, _ provider.Request) (*provider.Response, error) {
		<-block
		return completionResponse("done"), nil
	})

	h, err := session.Start(context.Background(), backend, session.Config{Prompt: "slow"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, waitErr := h.Wait(ctx)
	require.Error(t, waitErr)
	assert.Equal(t, twerr.CodeSessionWaitCancelled, twerr.CodeOf(waitErr))

	close(block)
	wait(t, h)
}

func TestCallTimeout_TreatedAsBackendError(t *testing.T) {
	first := true
	backend := provider.GeneratorFunc(func(ctx context.Context, _ provider.Request) (*provider.Response, error) {
		if first {
			first = false
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return completionResponse("done"), nil
	})

	h, err := session.Start(context.Background(), backend, session.Config{
		Prompt:      "slow once",
		CallTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	res := wait(t, h)
	assert.Equal(t, session.ReasonTaskComplete, res.CompletionReason)
	assert.Equal(t, 2, res.TotalTurns)
}

func TestResumeFrom_Validation(t *testing.T) {
	_, err := session.ResumeFrom(session.Config{}, nil, "wake")
	require.Error(t, err)
	assert.Equal(t, twerr.CodeSessionResumeInvalid, twerr.CodeOf(err))

	prior := &session.Result{Messages: []provider.Message{provider.Text(provider.RoleUser, "hi")}}
	_, err = session.ResumeFrom(session.Config{}, prior, "")
	require.Error(t, err)
	assert.Equal(t, twerr.CodeSessionResumeInvalid, twerr.CodeOf(err))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, session.EstimateTokens(nil))
	assert.Equal(t, 1, session.EstimateTokens([]provider.Message{
		provider.Text(provider.RoleUser, "aaaa"),
	}))
	assert.Equal(t, 2, session.EstimateTokens([]provider.Message{
		provider.Text(provider.RoleUser, "aaaa"),
		provider.Text(provider.RoleAssistant, "b"),
	}))
}

func TestUsage_Accumulated(t *testing.T) {
	withUsage := func(resp *provider.Response, in, out int) *provider.Response {
		resp.Usage = &provider.Usage{InputTokens: in, OutputTokens: out}
		return resp
	}
	backend := &scriptedBackend{steps: []func(provider.Request) (*provider.Response, error){
		respond(withUsage(textResponse("thinking"), 10, 5)),
		respond(withUsage(completionResponse("done"), 20, 7)),
	}}

	h, err := session.Start(context.Background(), backend, session.Config{Prompt: "count"})
	require.NoError(t, err)

	res := wait(t, h)
	assert.Equal(t, 30, res.Usage.InputTokens)
	assert.Equal(t, 12, res.Usage.OutputTokens)
}
