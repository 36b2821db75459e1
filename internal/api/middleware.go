package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/terra-clan/code-review-quest/internal/identity"
)

// GuestHeader carries a guest handle
const GuestHeader = "X-Guest-ID"

// guestQueryParam carries a guest handle where headers cannot be set, as on
// browser WebSocket handshakes
const guestQueryParam = "guest_id"

// IdentityMiddleware resolves the caller of every request
type IdentityMiddleware struct {
	resolver *identity.Resolver
}

// NewIdentityMiddleware creates new identity middleware
func NewIdentityMiddleware(resolver *identity.Resolver) *IdentityMiddleware {
	return &IdentityMiddleware{resolver: resolver}
}

// Resolve attaches the caller's identity to the request context.
// A guest handle that names no live guest fails the request.
func (m *IdentityMiddleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.resolver.Resolve(r.Context(), extractBearer(r), extractGuestHandle(r))
		if err != nil {
			if errors.Is(err, identity.ErrGuestNotFound) {
				respondError(w, http.StatusNotFound, "guest_not_found", "guest session not found or expired")
				return
			}
			slog.Error("failed to resolve identity", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to resolve identity")
			return
		}

		slog.Debug("resolved identity", "kind", id.Kind())
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

// extractBearer returns the token of a "Bearer" Authorization header
func extractBearer(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return token
}

func extractGuestHandle(r *http.Request) string {
	if handle := r.Header.Get(GuestHeader); handle != "" {
		return handle
	}
	return r.URL.Query().Get(guestQueryParam)
}
