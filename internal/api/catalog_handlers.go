package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/code-review-quest/internal/models"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// Catalog handlers

func (s *Server) handleListProblems(w http.ResponseWriter, r *http.Request) {
	var problems []*models.Problem
	if raw := r.URL.Query().Get("difficulty"); raw != "" {
		d, err := models.ParseDifficulty(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		problems = s.catalog.GetProblems(d)
	} else {
		problems = s.catalog.List()
	}

	public := make([]*models.PublicProblem, 0, len(problems))
	for _, p := range problems {
		public = append(public, p.Public())
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"problems": public,
		"total":    len(public),
	})
}

func (s *Server) handleProblemStats(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.manager.ProblemStats(r.Context())
	if err != nil {
		respondDomainError(w, err, "get problem stats")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"catalog":  s.catalog.Stats(),
		"attempts": attempts,
	})
}

func (s *Server) handleExplanation(w http.ResponseWriter, r *http.Request) {
	exp, err := s.manager.Explanation(r.Context(), IdentityFromContext(r.Context()),
		chi.URLParam(r, "id"), r.URL.Query().Get("session_id"))
	if err != nil {
		respondDomainError(w, err, "get explanation")
		return
	}
	respondJSON(w, http.StatusOK, exp)
}

func (s *Server) handleListBadges(w http.ResponseWriter, r *http.Request) {
	badges := s.catalog.Badges()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"badges": badges,
		"total":  len(badges),
	})
}

// Player handlers

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.manager.Profile(r.Context(), IdentityFromContext(r.Context()))
	if err != nil {
		respondDomainError(w, err, "get profile")
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLeaderboardLimit, maxLeaderboardLimit)

	entries, err := s.manager.Leaderboard(r.Context(), limit)
	if err != nil {
		respondDomainError(w, err, "get leaderboard")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"leaderboard": entries,
		"total":       len(entries),
	})
}
