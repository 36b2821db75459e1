package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/code-review-quest/internal/models"
)

// Guest handlers. The handle itself is the guest's credential.

func (s *Server) handleCreateGuest(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGuestRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	record, err := s.guests.Create(r.Context(), req.Nickname)
	if err != nil {
		respondDomainError(w, err, "create guest")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateGuestResponse{
		Handle:    record.Handle,
		Nickname:  record.Nickname,
		ExpiresAt: record.ExpiresAt,
		Message:   "guest session created",
	})
}

func (s *Server) handleGetGuest(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	record, err := s.guests.Get(r.Context(), handle)
	if err != nil {
		respondDomainError(w, err, "get guest")
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "guest_not_found", "guest session not found or expired")
		return
	}

	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleGuestProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.guests.Profile(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		respondDomainError(w, err, "get guest profile")
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateGuest(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	var req models.UpdateGuestRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	record, earned, err := s.guests.Update(r.Context(), handle, req)
	if err != nil {
		respondDomainError(w, err, "update guest")
		return
	}
	if earned == nil {
		earned = []models.Award{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"guest":            record.Profile(),
		"new_achievements": earned,
	})
}

func (s *Server) handleDeleteGuest(w http.ResponseWriter, r *http.Request) {
	profile, err := s.guests.Delete(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		respondDomainError(w, err, "delete guest")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "guest session ended",
		"final_stats": profile,
	})
}

func (s *Server) handleGuestConversion(w http.ResponseWriter, r *http.Request) {
	profile, err := s.guests.ConversionData(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		respondDomainError(w, err, "get conversion data")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"guest_id":        profile.Handle,
		"conversion_data": profile,
	})
}
