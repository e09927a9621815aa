// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/turnwise-dev/turnwise/internal/provider"
	"github.com/turnwise-dev/turnwise/internal/tool"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

const defaultMaxTokens = 4096

// Config holds Anthropic backend configuration.
type Config struct {
	APIKey    string
	BaseURL   string // optional, useful for testing against a mock server
	Model     string
	MaxTokens int
}

// Generator implements provider.Generator using the Anthropic Messages API.
// Tool calls requested by the model are executed in-process before the
// response is returned, so one Generate call is one complete backend round.
type Generator struct {
	client anthropicsdk.Client
	config Config
}

// New creates an Anthropic generator. Returns an error if the API key is missing.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, twerr.New(twerr.CodeConfigValidateInvalidValue, "anthropic: missing api_key in config")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Generator{client: anthropicsdk.NewClient(opts...), config: cfg}, nil
}

func (g *Generator) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params, err := buildParams(g.config, req)
	if err != nil {
		return nil, twerr.Wrap(err, twerr.CodeBackendInvokeFailure, "anthropic: building request params")
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, twerr.Wrap(err, twerr.CodeBackendInvokeFailure, "anthropic: messages call")
	}

	resp := &provider.Response{
		Usage: &provider.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}

	var assistantParts []provider.Part
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			resp.Text += v.Text
			assistantParts = append(assistantParts, provider.Part{
				Type: provider.PartTypeText,
				Text: v.Text,
			})
		case anthropicsdk.ToolUseBlock:
			args := json.RawMessage(v.JSON.Input.Raw())
			resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
				ID:   v.ID,
				Name: v.Name,
				Args: args,
			})
			assistantParts = append(assistantParts, provider.Part{
				Type:       provider.PartTypeToolCall,
				ToolCallID: v.ID,
				ToolName:   v.Name,
				Args:       args,
			})
		}
	}

	if len(assistantParts) > 0 {
		resp.ResponseMessages = append(resp.ResponseMessages, provider.Message{
			Role:  provider.RoleAssistant,
			Parts: assistantParts,
		})
	} else if resp.Text != "" {
		resp.ResponseMessages = append(resp.ResponseMessages, provider.Text(provider.RoleAssistant, resp.Text))
	}

	// Execute requested tools and attach their results as a user message of
	// tool_result parts, the canonical form the Messages API expects on the
	// next round.
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
		// Errors flow back to the model as tool output so it can adjust.
		return map[string]any{"error": err.Error()}
	}
	return out
}

// buildParams converts a provider.Request into Anthropic SDK MessageNewParams.
func buildParams(cfg Config, req provider.Request) (anthropicsdk.MessageNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(cfg.Model),
		Messages:  msgs,
		MaxTokens: int64(cfg.MaxTokens),
	}

	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}

	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return params, nil
}

// convertMessages transforms provider messages into Anthropic SDK message params.
func convertMessages(msgs []provider.Message) ([]anthropicsdk.MessageParam, error) {
	var result []anthropicsdk.MessageParam

	for _, msg := range msgs {
		blocks, err := convertParts(msg)
		if err != nil {
			return nil, err
		}

		switch msg.Role {
		case provider.RoleUser:
			result = append(result, anthropicsdk.NewUserMessage(blocks...))
		case provider.RoleAssistant:
			result = append(result, anthropicsdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

func convertParts(msg provider.Message) ([]anthropicsdk.ContentBlockParamUnion, error) {
	if len(msg.Parts) == 0 {
		return []anthropicsdk.ContentBlockParamUnion{anthropicsdk.NewTextBlock(msg.Content)}, nil
	}

	var blocks []anthropicsdk.ContentBlockParamUnion
	for _, p := range msg.Parts {
		switch p.Type {
		case provider.PartTypeText:
			blocks = append(blocks, anthropicsdk.NewTextBlock(p.Text))
		case provider.PartTypeToolCall:
			blocks = append(blocks, anthropicsdk.ContentBlockParamUnion{
				OfToolUse: &anthropicsdk.ToolUseBlockParam{
					ID:    p.ToolCallID,
					Name:  p.ToolName,
					Input: p.Args,
				},
			})
		case provider.PartTypeToolResult:
			blocks = append(blocks, anthropicsdk.NewToolResultBlock(p.ToolCallID, renderResult(p.Result), false))
		case provider.PartTypeBinary:
			// Binary attachments are carried in history for the caller's
			// benefit; the wire form sends a textual placeholder.
			blocks = append(blocks, anthropicsdk.NewTextBlock(fmt.Sprintf("[attachment %s, %d bytes]", p.MIMEType, len(p.Data))))
		default:
			return nil, fmt.Errorf("anthropic: unsupported part type %q", p.Type)
		}
	}
	return blocks, nil
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

// convertTools transforms the tool catalog into Anthropic SDK tool params.
func convertTools(tools []tool.Tool) []anthropicsdk.ToolUnionParam {
	result := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.String(t.Description),
				InputSchema: extractSchema(t.InputSchema),
			},
		})
	}
	return result
}

// extractSchema maps a full JSON Schema object (keys like "type",
// "properties", "required") into the SDK's ToolInputSchemaParam, which takes
// Properties and Required as separate fields.
func extractSchema(raw map[string]any) anthropicsdk.ToolInputSchemaParam {
	schema := anthropicsdk.ToolInputSchemaParam{}
	if props, ok := raw["properties"]; ok {
		schema.Properties = props
	}
	if req, ok := raw["required"]; ok {
		if arr, ok := req.([]any); ok {
			strs := make([]string, 0, len(arr))
			for _, v := range arr {
				if s, ok := v.(string); ok {
					strs = append(strs, s)
				}
			}
			schema.Required = strs
		}
	}
	return schema
}
