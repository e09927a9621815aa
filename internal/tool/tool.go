// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package tool

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

// Handler executes a tool invocation. The returned payload is opaque to the
// session core except for the reserved completion/suspension markers (see
// Classify).
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool describes a callable tool: its name, description, JSON input schema,
// and handler. Tools are executed by the generation backend adapter, not by
// the session loop itself.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Execute     Handler
}

// NewFunc builds a Tool whose input schema is derived from the argument
// struct T. Arguments are decoded from the raw JSON the model produced before
// the typed handler runs.
func NewFunc[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) Tool {
	return Tool{
		Name:        name,
		Description: description,
		InputSchema: GenerateSchema[T](),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in T
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &in); err != nil {
					return nil, twerr.Wrapf(err, twerr.CodeToolCallMalformed, "decoding arguments for tool %q", name)
				}
			}
			return fn(ctx, in)
		},
	}
}

// GenerateSchema derives a JSON Schema object for T, suitable for
// Tool.InputSchema. Field descriptions come from jsonschema_description
// struct tags.
func GenerateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(&v)

	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// Catalog is a thread-safe named collection of tools.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{tools: make(map[string]Tool)}
}

// Register adds a tool to the catalog. The reserved completion tool name is
// rejected: it is always added implicitly by the session loop, and allowing a
// caller to shadow it would silently break the completion contract.
func (c *Catalog) Register(t Tool) error {
	if t.Name == "" {
		return twerr.New(twerr.CodeToolSchemaInvalid, "tool name is required")
	}
	if t.Name == ReservedCompletionName {
		return twerr.New(twerr.CodeSessionReservedTool,
			"tool name "+ReservedCompletionName+" is reserved for the built-in completion tool",
			twerr.FieldTool(t.Name))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tools[t.Name]; ok {
		return twerr.New(twerr.CodeToolSchemaInvalid, "tool already registered", twerr.FieldTool(t.Name))
	}
	c.tools[t.Name] = t
	return nil
}

// Get returns the named tool.
func (c *Catalog) Get(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[name]
	return t, ok
}

// All returns the registered tools sorted by name.
func (c *Catalog) All() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Tool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
