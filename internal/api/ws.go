package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Countdown message types
const (
	CountdownTick      = "tick"
	CountdownTimeUp    = "time_up"
	CountdownCompleted = "completed"
	CountdownError     = "error"
)

// CountdownMessage is sent over the session socket
type CountdownMessage struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id,omitempty"`
	Status           string `json:"status,omitempty"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Message          string `json:"message,omitempty"`
}

// handleSessionWS streams the advisory time left in a session until the
// session completes or the client goes away. Running out of time is only
// reported; submissions are still accepted.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	id := IdentityFromContext(r.Context())

	// Fail with a normal HTTP error before upgrading
	if _, _, err := s.manager.SessionStatus(r.Context(), id, sessionID); err != nil {
		respondDomainError(w, err, "get session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("session websocket connected", "session_id", sessionID)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	// Reads only detect the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(s.countdownInterval)
	defer ticker.Stop()

	timeUpSent := false
	for {
		session, remaining, err := s.manager.SessionStatus(ctx, id, sessionID)
		if err != nil {
			slog.Warn("session lookup failed during countdown", "session_id", sessionID, "error", err)
			s.sendCountdown(conn, CountdownMessage{Type: CountdownError, SessionID: sessionID, Message: "session unavailable"})
			return
		}

		msg := CountdownMessage{
			Type:             CountdownTick,
			SessionID:        sessionID,
			Status:           string(session.Status),
			RemainingSeconds: int(remaining.Seconds()),
		}
		if !session.IsActive() {
			msg.Type = CountdownCompleted
			s.sendCountdown(conn, msg)
			break
		}
		if remaining == 0 && !timeUpSent {
			msg.Type = CountdownTimeUp
			msg.Message = "time is up, you can still submit"
			timeUpSent = true
		}
		if err := s.sendCountdown(conn, msg); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			slog.Info("session websocket disconnected", "session_id", sessionID)
			return
		case <-ticker.C:
		}
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session completed"),
		time.Now().Add(time.Second))
	slog.Info("session websocket closed", "session_id", sessionID)
}

func (s *Server) sendCountdown(conn *websocket.Conn, msg CountdownMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal countdown message", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send countdown message", "error", err)
		return err
	}
	return nil
}
