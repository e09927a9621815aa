// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package tool

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Reserved marker keys recognised on otherwise-opaque tool result payloads.
// Tools written in-process return Completion/Suspension values directly; the
// markers exist so results that crossed a JSON boundary classify identically.
const (
	markerComplete = "__task_complete"
	markerSuspend  = "__suspend"
)

// OutcomeKind discriminates the classifier's verdict on a tool result.
type OutcomeKind int

const (
	// OutcomeContinue marks an ordinary tool result: it is reported to the
	// caller and the session keeps running.
	OutcomeContinue OutcomeKind = iota
	// OutcomeCompleted marks the task-completion signal.
	OutcomeCompleted
	// OutcomeSuspended marks the suspension signal.
	OutcomeSuspended
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeSuspended:
		return "suspended"
	default:
		return "continue"
	}
}

// Outcome is the classifier's typed verdict. Summary and Result are set for
// OutcomeCompleted; Reason and Data for OutcomeSuspended.
type Outcome struct {
	Kind    OutcomeKind
	Summary string
	Result  any
	Reason  string
	Data    any
}

// Terminal reports whether the outcome ends the session.
func (o Outcome) Terminal() bool {
	return o.Kind != OutcomeContinue
}

// Completion is the task-completion signal a tool returns to end the session
// successfully.
type Completion struct {
	Summary string
	Result  any
}

// MarshalJSON emits the reserved completion marker so the signal survives a
// JSON round trip through an external tool runner.
func (c Completion) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		markerComplete: true,
		"summary":      c.Summary,
		"result":       c.Result,
	})
}

// Suspension is the signal a tool returns to pause the session pending an
// external event.
type Suspension struct {
	Reason string
	Data   any
}

// MarshalJSON emits the reserved suspension marker, mirroring Completion.
func (s Suspension) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		markerSuspend: true,
		"reason":      s.Reason,
		"data":        s.Data,
	})
}

// Classify inspects a single tool result payload and produces exactly one
// outcome. Typed Completion/Suspension values are recognised directly;
// string, []byte and map payloads are probed structurally for the reserved
// marker keys. Anything else is an ordinary result.
func Classify(result any) Outcome {
	switch v := result.(type) {
	case Completion:
		return Outcome{Kind: OutcomeCompleted, Summary: v.Summary, Result: v.Result}
	case *Completion:
		if v != nil {
			return Outcome{Kind: OutcomeCompleted, Summary: v.Summary, Result: v.Result}
		}
	case Suspension:
		return Outcome{Kind: OutcomeSuspended, Reason: v.Reason, Data: v.Data}
	case *Suspension:
		if v != nil {
			return Outcome{Kind: OutcomeSuspended, Reason: v.Reason, Data: v.Data}
		}
	case string:
		return classifyJSON([]byte(v))
	case []byte:
		return classifyJSON(v)
	case json.RawMessage:
		return classifyJSON(v)
	case map[string]any:
		return classifyMap(v)
	}
	return Outcome{Kind: OutcomeContinue}
}

func classifyJSON(data []byte) Outcome {
	if !gjson.ValidBytes(data) {
		return Outcome{Kind: OutcomeContinue}
	}

	if gjson.GetBytes(data, markerComplete).Bool() {
		return Outcome{
			Kind:    OutcomeCompleted,
			Summary: gjson.GetBytes(data, "summary").String(),
			Result:  gjson.GetBytes(data, "result").Value(),
		}
	}
	if gjson.GetBytes(data, markerSuspend).Bool() {
		return Outcome{
			Kind:   OutcomeSuspended,
			Reason: gjson.GetBytes(data, "reason").String(),
			Data:   gjson.GetBytes(data, "data").Value(),
		}
	}
	return Outcome{Kind: OutcomeContinue}
}

func classifyMap(m map[string]any) Outcome {
	if flag, ok := m[markerComplete].(bool); ok && flag {
		summary, _ := m["summary"].(string)
		return Outcome{Kind: OutcomeCompleted, Summary: summary, Result: m["result"]}
	}
	if flag, ok := m[markerSuspend].(bool); ok && flag {
		reason, _ := m["reason"].(string)
		return Outcome{Kind: OutcomeSuspended, Reason: reason, Data: m["data"]}
	}
	return Outcome{Kind: OutcomeContinue}
}
