// Package identity resolves who is making a request: an authenticated
// user, a guest, or nobody.
package identity

import (
	"errors"
	"fmt"

	"github.com/terra-clan/code-review-quest/internal/models"
)

// Identity is one of Authenticated, Guest or Anonymous
type Identity interface {
	// Kind returns "user", "guest" or "anonymous"
	Kind() string
	identity()
}

// Authenticated is a user with a verified credential
type Authenticated struct {
	UserID string
}

// Guest is a player holding a live guest handle
type Guest struct {
	Handle string
}

// Anonymous carries no identity at all
type Anonymous struct{}

func (Authenticated) Kind() string { return string(models.OwnerUser) }
func (Guest) Kind() string         { return string(models.OwnerGuest) }
func (Anonymous) Kind() string     { return "anonymous" }

func (Authenticated) identity() {}
func (Guest) identity()         {}
func (Anonymous) identity()     {}

// ErrNoOwner is returned for identities that cannot own sessions
var ErrNoOwner = errors.New("anonymous identity owns no sessions")

// OwnerOf maps an identity to the storage owner of its sessions
func OwnerOf(id Identity) (models.OwnerKind, string, error) {
	switch v := id.(type) {
	case Authenticated:
		return models.OwnerUser, v.UserID, nil
	case Guest:
		return models.OwnerGuest, v.Handle, nil
	case Anonymous:
		return "", "", ErrNoOwner
	default:
		return "", "", fmt.Errorf("unsupported identity %T", id)
	}
}
