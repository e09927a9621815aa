// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/turnwise-dev/turnwise/internal/session"
	"github.com/turnwise-dev/turnwise/internal/store"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

// runSessionRequest is the body of POST /v1/sessions.
type runSessionRequest struct {
	SessionID          string `json:"session_id,omitempty"`
	Prompt             string `json:"prompt"`
	SystemPrompt       string `json:"system_prompt,omitempty"`
	MaxTurns           int    `json:"max_turns,omitempty"`
	TokenLimit         int    `json:"token_limit,omitempty"`
	CallTimeoutSeconds int    `json:"call_timeout_seconds,omitempty"`
}

// resumeSessionRequest is the body of POST /v1/sessions/{id}/resume.
type resumeSessionRequest struct {
	Message            string `json:"message"`
	MaxTurns           int    `json:"max_turns,omitempty"`
	TokenLimit         int    `json:"token_limit,omitempty"`
	CallTimeoutSeconds int    `json:"call_timeout_seconds,omitempty"`
}

// sessionSummary is one row of GET /v1/sessions.
type sessionSummary struct {
	SessionID        string    `json:"session_id"`
	CompletionReason string    `json:"completion_reason"`
	TotalTurns       int       `json:"total_turns"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRunSession(w http.ResponseWriter, r *http.Request) {
	var req runSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, twerr.Wrap(err, twerr.CodeServerRequestInvalid, "decoding request body"))
		return
	}
	if req.Prompt == "" {
		s.respondError(w, twerr.New(twerr.CodeServerRequestInvalid, "prompt is required"))
		return
	}

	cfg := s.sessionConfig(req.MaxTurns, req.TokenLimit, req.CallTimeoutSeconds)
	cfg.SessionID = req.SessionID
	cfg.Prompt = req.Prompt
	if req.SystemPrompt != "" {
		cfg.SystemPrompt = req.SystemPrompt
	}

	s.runAndRespond(w, r, cfg)
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req resumeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, twerr.Wrap(err, twerr.CodeServerRequestInvalid, "decoding request body"))
		return
	}
	if req.Message == "" {
		s.respondError(w, twerr.New(twerr.CodeServerRequestInvalid, "message is required"))
		return
	}

	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	cfg := s.sessionConfig(req.MaxTurns, req.TokenLimit, req.CallTimeoutSeconds)
	cfg, err = session.ResumeFrom(cfg, rec.ToResult(), req.Message)
	if err != nil {
		s.respondError(w, err)
		return
	}
	// The resumed run replaces the stored record under the same id.
	cfg.SessionID = id

	s.runAndRespond(w, r, cfg)
}

// runAndRespond drives a session to completion, persists the outcome, and
// returns the stored record. Persistence failures are logged but do not mask
// the session result.
func (s *Server) runAndRespond(w http.ResponseWriter, r *http.Request, cfg session.Config) {
	cfg.Logger = s.log

	h, err := session.Start(r.Context(), s.backend, cfg)
	if err != nil {
		s.respondError(w, err)
		return
	}

	res, err := h.Wait(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}

	rec := store.FromResult(res)
	if err := s.store.Save(r.Context(), rec); err != nil {
		s.log.Error("failed to persist session result", "session_id", res.SessionID, "error", err)
	}

	status := http.StatusOK
	if res.CompletionReason == session.ReasonError {
		status = http.StatusInternalServerError
	}
	s.respondJSON(w, status, rec)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}

	summaries := make([]sessionSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, sessionSummary{
			SessionID:        rec.SessionID,
			CompletionReason: rec.CompletionReason,
			TotalTurns:       rec.TotalTurns,
			UpdatedAt:        rec.UpdatedAt,
		})
	}
	s.respondJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionConfig(maxTurns, tokenLimit, timeoutSeconds int) session.Config {
	cfg := session.Config{
		SystemPrompt: s.cfg.Defaults.SystemPrompt,
		MaxTurns:     s.cfg.Defaults.MaxTurns,
		TokenLimit:   s.cfg.Defaults.TokenLimit,
		CallTimeout:  s.cfg.Defaults.CallTimeout,
	}
	if maxTurns > 0 {
		cfg.MaxTurns = maxTurns
	}
	if tokenLimit > 0 {
		cfg.TokenLimit = tokenLimit
	}
	if timeoutSeconds > 0 {
		cfg.CallTimeout = time.Duration(timeoutSeconds) * time.Second
	}
	return cfg
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := twerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	s.respondJSON(w, status, errorBody{
		Error: err.Error(),
		Code:  string(twerr.CodeOf(err)),
	})
}
