// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package session

import (
	"context"

	"github.com/turnwise-dev/turnwise/internal/provider"
)

// idleThreshold is the number of consecutive idle turns tolerated before a
// reminder is injected.
const idleThreshold = 2

const idlePrompt = "You have produced several responses without calling any tools. " +
	"If the task is finished, call the task_complete tool with a summary. Otherwise, continue working on the task."

// checkIdle runs at loop-top, before each turn. A turn is idle when the most
// recent message is from the assistant: the previous turn produced text with
// no tool results and did not terminate. At the threshold one reminder user
// message is injected and the streak resets. This only ever adds a message,
// never ends the session.
func (s *state) checkIdle(ctx context.Context) {
	if n := len(s.messages); n > 0 && s.messages[n-1].Role == provider.RoleAssistant {
		s.idle++
	} else {
		s.idle = 0
	}

	if s.idle < idleThreshold {
		return
	}

	s.log.Debug("idle streak reached threshold, injecting reminder", "streak", s.idle, "turn", s.turn)
	s.messages = append(s.messages, provider.Text(provider.RoleUser, idlePrompt))
	s.idle = 0
	s.fireMessagesUpdate(ctx)
}
