// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/turnwise-dev/turnwise/internal/tool"
)

// Generator is the text-generation backend contract consumed by the session
// loop. One Generate call covers a full model round: invoke the model with
// the system prompt, history, and tool catalog; execute any requested tools;
// and return the canonical response messages ready to append to history.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (*Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Request is the input to one backend round.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Tools        []tool.Tool
}

// Response is the outcome of one backend round. ResponseMessages is
// authoritative: the session loop appends it verbatim rather than
// reconstructing messages from Text and ToolCalls.
type Response struct {
	Text             string
	ToolCalls        []ToolCall
	ToolResults      []ToolResult
	ResponseMessages []Message
	Usage            *Usage
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolResult pairs an executed tool call with its opaque result payload.
type ToolResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result any    `json:"result,omitempty"`
}

// Usage tracks token consumption reported by the backend.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another round's usage.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType identifies the kind of a structured message part.
type PartType string

const (
	PartTypeText       PartType = "text"
	PartTypeToolCall   PartType = "tool_call"
	PartTypeToolResult PartType = "tool_result"
	PartTypeBinary     PartType = "binary"
)

// Part is one element of a structured message.
type Part struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     any             `json:"result,omitempty"`
	Data       []byte          `json:"data,omitempty"`
	MIMEType   string          `json:"mime_type,omitempty"`
}

// Message is a single conversation entry. Content carries plain text;
// structured messages use Parts instead. Messages are immutable once
// appended to a session's history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}

// Text builds a plain-text message.
func Text(role Role, text string) Message {
	return Message{Role: role, Content: text}
}

// Plain flattens a message to text. Structured parts serialize
// deterministically, which the token estimator relies on.
func (m Message) Plain() string {
	if len(m.Parts) == 0 {
		return m.Content
	}

	var b strings.Builder
	for i, p := range m.Parts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.plain())
	}
	return b.String()
}

func (p Part) plain() string {
	switch p.Type {
	case PartTypeText:
		return p.Text
	case PartTypeToolCall:
		return fmt.Sprintf("[tool call %s(%s)]", p.ToolName, string(p.Args))
	case PartTypeToolResult:
		return fmt.Sprintf("[tool result %s: %s]", p.ToolName, renderPayload(p.Result))
	case PartTypeBinary:
		return fmt.Sprintf("[binary %s, %d bytes]", p.MIMEType, len(p.Data))
	default:
		return p.Text
	}
}

// RenderTranscript serializes messages to a role-tagged plain-text
// transcript, the form handed to the backend for summarization.
func RenderTranscript(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString("[")
		b.WriteString(string(m.Role))
		b.WriteString("]: ")
		b.WriteString(m.Plain())
		b.WriteString("\n")
	}
	return b.String()
}

func renderPayload(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
