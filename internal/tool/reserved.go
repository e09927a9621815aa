// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package tool

import (
	"context"
)

// ReservedCompletionName is the tool name the session loop adds to every
// tool catalog it sends to the backend. Callers may not register a tool under
// this name.
const ReservedCompletionName = "task_complete"

type completionArgs struct {
	Summary string         `json:"summary" jsonschema_description:"One or two sentences describing what was accomplished."`
	Result  map[string]any `json:"result,omitempty" jsonschema_description:"Optional structured result payload for the caller."`
}

// CompletionTool returns the built-in task-completion tool. Invoking it
// always produces a Completion signal, which the classifier turns into the
// session's task_complete terminal state.
func CompletionTool() Tool {
	return NewFunc(ReservedCompletionName,
		"Call this tool when the task is fully complete. Provide a short summary of what was done.",
		func(_ context.Context, args completionArgs) (any, error) {
			var result any
			if args.Result != nil {
				result = args.Result
			}
			return Completion{Summary: args.Summary, Result: result}, nil
		})
}
