package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/terra-clan/code-review-quest/internal/evaluation"
	"github.com/terra-clan/code-review-quest/internal/game"
	"github.com/terra-clan/code-review-quest/internal/guest"
	"github.com/terra-clan/code-review-quest/internal/identity"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondDomainError maps a domain error to its status and code.
// Anything unrecognized is logged and reported as an internal error.
func respondDomainError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, evaluation.ErrInvalidReport),
		errors.Is(err, game.ErrInvalidDifficulty),
		errors.Is(err, guest.ErrInvalidUpdate):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, game.ErrSessionNotActive):
		respondError(w, http.StatusConflict, "session_not_active", "session is not active")
	case errors.Is(err, guest.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", "guest was modified concurrently, retry")
	case errors.Is(err, game.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", "session not found")
	case errors.Is(err, game.ErrProblemNotFound):
		respondError(w, http.StatusNotFound, "problem_not_found", "problem not found")
	case errors.Is(err, game.ErrNoProblemsAvailable):
		respondError(w, http.StatusNotFound, "no_problems_available", err.Error())
	case errors.Is(err, guest.ErrGuestNotFound), errors.Is(err, identity.ErrGuestNotFound):
		respondError(w, http.StatusNotFound, "guest_not_found", "guest session not found or expired")
	case errors.Is(err, game.ErrAnonymous):
		respondError(w, http.StatusUnauthorized, "unauthenticated", "sign in or create a guest session")
	default:
		slog.Error("request failed", "action", action, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// decodeBody decodes an optional JSON body; an empty body leaves dst untouched
func decodeBody(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// queryInt parses a positive integer query parameter, clamped to max
func queryInt(r *http.Request, key string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	if s.health != nil {
		var failing []string
		for name, err := range s.health.HealthCheckAll(r.Context()) {
			if err != nil {
				slog.Warn("backing service unhealthy", "service", name, "error", err)
				failing = append(failing, name)
			}
		}
		if len(failing) > 0 {
			sort.Strings(failing)
			respondError(w, http.StatusServiceUnavailable, "not_ready", "unhealthy: "+strings.Join(failing, ", "))
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ready",
		"problems": s.catalog.Stats().Total,
	})
}
