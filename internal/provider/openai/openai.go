// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package openai

import (
	"context"
	"encoding/json"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"github.com/turnwise-dev/turnwise/internal/provider"
	"github.com/turnwise-dev/turnwise/internal/tool"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

// Config holds OpenAI backend configuration.
type Config struct {
	APIKey    string
	BaseURL   string // optional, useful for testing against a mock server
	Model     string
	MaxTokens int
}

// Generator implements provider.Generator using the OpenAI Chat Completions
// API. Requested tools are executed in-process, so one Generate call is one
// complete backend round.
type Generator struct {
	client openaisdk.Client
	config Config
}

// New creates an OpenAI generator. Returns an error if the API key is missing.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, twerr.New(twerr.CodeConfigValidateInvalidValue, "openai: missing api_key in config")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4.1"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Generator{client: openaisdk.NewClient(opts...), config: cfg}, nil
}

func (g *Generator) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params, err := buildParams(g.config, req)
	if err != nil {
		return nil, twerr.Wrap(err, twerr.CodeBackendInvokeFailure, "openai: building request params")
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, twerr.Wrap(err, twerr.CodeBackendInvokeFailure, "openai: chat completions call")
	}
	if len(completion.Choices) == 0 {
		return nil, twerr.New(twerr.CodeBackendEmptyResponse, "openai: completion returned no choices")
	}

	choice := completion.Choices[0].Message
	resp := &provider.Response{
		Text: choice.Content,
		Usage: &provider.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}

	var assistantParts []provider.Part
	if choice.Content != "" {
		assistantParts = append(assistantParts, provider.Part{
			Type: provider.PartTypeText,
			Text: choice.Content,
		})
	}

	for _, tc := range choice.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage("{}")
		}
		resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
		assistantParts = append(assistantParts, provider.Part{
			Type:       provider.PartTypeToolCall,
			ToolCallID: tc.ID,
			ToolName:   tc.Function.Name,
			Args:       args,
		})
	}

	if len(assistantParts) > 0 {
		resp.ResponseMessages = append(resp.ResponseMessages, provider.Message{
			Role:  provider.RoleAssistant,
			Parts: assistantParts,
		})
	}

	if len(resp.ToolCalls) > 0 {
		var resultParts []provider.Part
		for _, tc := range resp.ToolCalls {
			result := execTool(ctx, req.Tools, tc)
			resp.ToolResults = append(resp.ToolResults, provider.ToolResult{
				ID:     tc.ID,
				Name:   tc.Name,
				Result: result,
			})
			resultParts = append(resultParts, provider.Part{
				Type:       provider.PartTypeToolResult,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
				Result:     result,
			})
		}
		resp.ResponseMessages = append(resp.ResponseMessages, provider.Message{
			Role:  provider.RoleUser,
			Parts: resultParts,
		})
	}

	return resp, nil
}

func execTool(ctx context.Context, tools []tool.Tool, tc provider.ToolCall) any {
	var found *tool.Tool
	for i := range tools {
		if tools[i].Name == tc.Name {
			found = &tools[i]
			break
		}
	}
	if found == nil || found.Execute == nil {
		return map[string]any{"error": fmt.Sprintf("tool %q not found", tc.Name)}
	}

	out, err := found.Execute(ctx, tc.Args)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return out
}

// buildParams converts a provider.Request into OpenAI SDK ChatCompletionNewParams.
func buildParams(cfg Config, req provider.Request) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(cfg.Model),
		Messages: msgs,
	}

	if cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(cfg.MaxTokens))
	}

	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return params, nil
}

// convertMessages transforms provider messages into OpenAI SDK message params.
// The system prompt is prepended as a system message if present.
func convertMessages(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion

	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, msg := range msgs {
		converted, err := convertMessage(msg)
		if err != nil {
			return nil, err
		}
		result = append(result, converted...)
	}

	return result, nil
}

func convertMessage(msg provider.Message) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	if len(msg.Parts) == 0 {
		switch msg.Role {
		case provider.RoleUser:
			return []openaisdk.ChatCompletionMessageParamUnion{openaisdk.UserMessage(msg.Content)}, nil
		case provider.RoleAssistant:
			return []openaisdk.ChatCompletionMessageParamUnion{openaisdk.AssistantMessage(msg.Content)}, nil
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", msg.Role)
		}
	}

	var result []openaisdk.ChatCompletionMessageParamUnion
	var text string
	var toolCalls []openaisdk.ChatCompletionMessageToolCallParam

	for _, p := range msg.Parts {
		switch p.Type {
		case provider.PartTypeText:
			text += p.Text
		case provider.PartTypeToolCall:
			toolCalls = append(toolCalls, openaisdk.ChatCompletionMessageToolCallParam{
				ID: p.ToolCallID,
				Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
					Name:      p.ToolName,
					Arguments: string(p.Args),
				},
			})
		case provider.PartTypeToolResult:
			// Tool results become role=tool messages on the wire.
			result = append(result, openaisdk.ToolMessage(renderResult(p.Result), p.ToolCallID))
		case provider.PartTypeBinary:
			text += fmt.Sprintf("[attachment %s, %d bytes]", p.MIMEType, len(p.Data))
		default:
			return nil, fmt.Errorf("openai: unsupported part type %q", p.Type)
		}
	}

	if text != "" || len(toolCalls) > 0 {
		if msg.Role == provider.RoleAssistant {
			assistant := openaisdk.ChatCompletionAssistantMessageParam{}
			if text != "" {
				assistant.Content = openaisdk.ChatCompletionAssistantMessageParamContentUnion{
					OfString: param.NewOpt(text),
				}
			}
			if len(toolCalls) > 0 {
				assistant.ToolCalls = toolCalls
			}
			prefix := []openaisdk.ChatCompletionMessageParamUnion{{OfAssistant: &assistant}}
			result = append(prefix, result...)
		} else {
			prefix := []openaisdk.ChatCompletionMessageParamUnion{openaisdk.UserMessage(text)}
			result = append(prefix, result...)
		}
	}

	return result, nil
}

func renderResult(v any) string {
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

// convertTools transforms the tool catalog into OpenAI SDK tool params.
func convertTools(tools []tool.Tool) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(t.InputSchema),
			},
		})
	}
	return result
}
