package api

import (
	"context"

	"github.com/terra-clan/code-review-quest/internal/identity"
)

type contextKey string

const identityContextKey contextKey = "identity"

// IdentityFromContext extracts the caller identity; callers without one are anonymous
func IdentityFromContext(ctx context.Context) identity.Identity {
	id, ok := ctx.Value(identityContextKey).(identity.Identity)
	if !ok {
		return identity.Anonymous{}
	}
	return id
}

// ContextWithIdentity adds the caller identity to context
func ContextWithIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}
