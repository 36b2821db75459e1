package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/code-review-quest/internal/evaluation"
	"github.com/terra-clan/code-review-quest/internal/identity"
	"github.com/terra-clan/code-review-quest/internal/models"
)

// Session handlers

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Difficulty == "" {
		req.Difficulty = string(models.DifficultyBeginner)
	}
	if req.TimeLimit == 0 {
		req.TimeLimit = s.sessionConfig.DefaultTimeLimit
	}
	if req.TimeLimit < s.sessionConfig.MinTimeLimit || req.TimeLimit > s.sessionConfig.MaxTimeLimit {
		respondError(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("time_limit must be between %d and %d seconds", s.sessionConfig.MinTimeLimit, s.sessionConfig.MaxTimeLimit))
		return
	}

	id := IdentityFromContext(r.Context())
	session, problem, err := s.manager.StartSession(r.Context(), id, req.Difficulty, req.TimeLimit)
	if err != nil {
		respondDomainError(w, err, "start session")
		return
	}

	_, isAnonymous := id.(identity.Anonymous)
	respondJSON(w, http.StatusCreated, models.StartSessionResponse{
		SessionID:  session.ID,
		Difficulty: session.Difficulty,
		TimeLimit:  session.TimeLimit,
		Persisted:  !isAnonymous,
		Problem:    problem.Public(),
		CreatedAt:  session.StartedAt,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	session, remaining, err := s.manager.SessionStatus(r.Context(), IdentityFromContext(r.Context()), sessionID)
	if err != nil {
		respondDomainError(w, err, "get session")
		return
	}

	respondJSON(w, http.StatusOK, models.SessionStatusResponse{
		Session:          session,
		RemainingSeconds: int(remaining.Seconds()),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req models.SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	reports := make([]evaluation.Report, 0, len(req.Bugs))
	for _, b := range req.Bugs {
		reports = append(reports, evaluation.Report{Line: b.LineNumber, Note: b.Description})
	}

	result, err := s.manager.Submit(r.Context(), IdentityFromContext(r.Context()), sessionID, reports)
	if err != nil {
		respondDomainError(w, err, "submit solution")
		return
	}

	slog.Debug("submission evaluated", "session_id", sessionID, "score", result.Score)
	respondJSON(w, http.StatusOK, result)
}
