package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/terra-clan/code-review-quest/internal/models"
)

// ErrGuestNotFound is returned when a guest handle was presented but does
// not name a live guest
var ErrGuestNotFound = errors.New("guest not found")

// GuestFinder looks up live guest records. Get returns nil, nil when the
// handle is unknown or expired.
type GuestFinder interface {
	Get(ctx context.Context, handle string) (*models.GuestRecord, error)
}

// Resolver turns request credentials into an Identity
type Resolver struct {
	verifier Verifier
	guests   GuestFinder
}

// NewResolver creates a resolver. verifier may be nil, in which case no
// credential is ever accepted.
func NewResolver(verifier Verifier, guests GuestFinder) *Resolver {
	return &Resolver{verifier: verifier, guests: guests}
}

// Resolve applies, in order: a valid credential wins and the guest handle is
// ignored; an invalid credential counts as absent; a guest handle must name a
// live guest; otherwise the caller is anonymous.
func (r *Resolver) Resolve(ctx context.Context, bearer, guestHandle string) (Identity, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer != "" && r.verifier != nil {
		if userID, ok := r.verifier.Verify(ctx, bearer); ok {
			return Authenticated{UserID: userID}, nil
		}
	}

	guestHandle = strings.TrimSpace(guestHandle)
	if guestHandle == "" {
		return Anonymous{}, nil
	}

	record, err := r.guests.Get(ctx, guestHandle)
	if err != nil {
		return nil, fmt.Errorf("failed to look up guest: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrGuestNotFound, guestHandle)
	}
	return Guest{Handle: record.Handle}, nil
}
