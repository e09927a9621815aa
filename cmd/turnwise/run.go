// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/turnwise-dev/turnwise/internal/config"
	"github.com/turnwise-dev/turnwise/internal/provider"
	"github.com/turnwise-dev/turnwise/internal/session"
	"github.com/turnwise-dev/turnwise/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run one session to completion and print its outcome",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().String("session-id", "", "session id (generated when empty)")
	cmd.Flags().String("system", "", "override the system prompt")
	cmd.Flags().Int("max-turns", 0, "override the turn budget")
	cmd.Flags().Int("token-limit", 0, "override the summarization token limit")
	cmd.Flags().Duration("timeout", 0, "override the per-call backend timeout")

	return cmd
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id> <message>",
		Short: "Resume a stored session with a new user message",
		Args:  cobra.ExactArgs(2),
		RunE:  runResume,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	log := newLogger(cmd)
	cfg, err := loadConfig(cmd, log)
	if err != nil {
		return err
	}

	sessCfg := sessionDefaults(cfg)
	sessCfg.Prompt = args[0]
	sessCfg.SessionID, _ = cmd.Flags().GetString("session-id")
	if v, _ := cmd.Flags().GetString("system"); v != "" {
		sessCfg.SystemPrompt = v
	}
	if v, _ := cmd.Flags().GetInt("max-turns"); v > 0 {
		sessCfg.MaxTurns = v
	}
	if v, _ := cmd.Flags().GetInt("token-limit"); v > 0 {
		sessCfg.TokenLimit = v
	}
	if v, _ := cmd.Flags().GetDuration("timeout"); v > 0 {
		sessCfg.CallTimeout = v
	}

	return runAndPersist(cmd, cfg, sessCfg, log)
}

func runResume(cmd *cobra.Command, args []string) error {
	log := newLogger(cmd)
	cfg, err := loadConfig(cmd, log)
	if err != nil {
		return err
	}

	st, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	sessCfg, err := session.ResumeFrom(sessionDefaults(cfg), rec.ToResult(), args[1])
	if err != nil {
		return err
	}
	sessCfg.SessionID = args[0]

	backend, err := buildBackend(cfg)
	if err != nil {
		return err
	}

	return drive(cmd, backend, st, sessCfg, log)
}

func runAndPersist(cmd *cobra.Command, cfg *config.Config, sessCfg session.Config, log *slog.Logger) error {
	backend, err := buildBackend(cfg)
	if err != nil {
		return err
	}

	st, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return drive(cmd, backend, st, sessCfg, log)
}

// drive runs one session to a settled result, streaming progress to the
// terminal, then persists and prints the outcome.
func drive(cmd *cobra.Command, backend provider.Generator, st store.SessionStore, sessCfg session.Config, log *slog.Logger) error {
	out := cmd.OutOrStdout()

	sessCfg.Logger = log
	sessCfg.Callbacks = session.Callbacks{
		OnTurnStart: func(_ context.Context, _ string, turn int) {
			log.Debug("turn started", "turn", turn)
		},
		OnAssistantMessage: func(_ context.Context, _ string, text string, _ int) {
			fmt.Fprintln(out, text)
		},
		OnToolCall: func(_ context.Context, _ string, call provider.ToolCall, turn int) {
			log.Debug("tool call", "tool", call.Name, "turn", turn)
		},
		OnError: func(_ context.Context, _ string, err error, turn int, phase session.ErrorPhase) {
			log.Warn("turn error", "phase", phase, "turn", turn, "error", err)
		},
	}

	h, err := session.Start(cmd.Context(), backend, sessCfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s started\n", h.ID)

	res, err := h.Wait(cmd.Context())
	if err != nil {
		return err
	}

	if saveErr := st.Save(cmd.Context(), store.FromResult(res)); saveErr != nil {
		log.Error("failed to persist session result", "session_id", res.SessionID, "error", saveErr)
	}

	fmt.Fprintf(out, "\nsession %s settled: %s after %d turn(s)\n",
		res.SessionID, res.CompletionReason, res.TotalTurns)
	switch res.CompletionReason {
	case session.ReasonSuspended:
		fmt.Fprintf(out, "suspended: %s\nresume with: turnwise resume %s <message>\n",
			res.Suspend.Reason, res.SessionID)
	case session.ReasonError:
		fmt.Fprintf(out, "error: %v\n", res.Err)
	default:
		if res.FinalOutput != "" {
			fmt.Fprintln(out, res.FinalOutput)
		}
	}
	return nil
}
