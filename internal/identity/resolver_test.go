package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/code-review-quest/internal/models"
)

const testSecret = "test-secret"

type stubGuests map[string]*models.GuestRecord

func (s stubGuests) Get(_ context.Context, handle string) (*models.GuestRecord, error) {
	return s[handle], nil
}

type failingGuests struct{}

func (failingGuests) Get(context.Context, string) (*models.GuestRecord, error) {
	return nil, errors.New("redis down")
}

func newTestResolver() *Resolver {
	guests := stubGuests{"guest_live": {Handle: "guest_live"}}
	return NewResolver(NewJWTVerifier(testSecret), guests)
}

func TestResolve_ValidCredentialWins(t *testing.T) {
	token, err := IssueToken(testSecret, "user-42", time.Hour)
	require.NoError(t, err)

	id, err := newTestResolver().Resolve(context.Background(), token, "guest_unknown")
	require.NoError(t, err)
	assert.Equal(t, Authenticated{UserID: "user-42"}, id)
}

func TestResolve_InvalidCredentialTreatedAsAbsent(t *testing.T) {
	r := newTestResolver()

	forged, err := IssueToken("other-secret", "user-42", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, "user-42", -time.Minute)
	require.NoError(t, err)

	for _, bearer := range []string{"garbage", forged, expired} {
		id, err := r.Resolve(context.Background(), bearer, "")
		require.NoError(t, err)
		assert.Equal(t, Anonymous{}, id)

		id, err = r.Resolve(context.Background(), bearer, "guest_live")
		require.NoError(t, err)
		assert.Equal(t, Guest{Handle: "guest_live"}, id)
	}
}

func TestResolve_UnknownGuestFails(t *testing.T) {
	_, err := newTestResolver().Resolve(context.Background(), "", "guest_gone")
	assert.True(t, errors.Is(err, ErrGuestNotFound))
}

func TestResolve_NothingIsAnonymous(t *testing.T) {
	id, err := newTestResolver().Resolve(context.Background(), "", "  ")
	require.NoError(t, err)
	assert.Equal(t, Anonymous{}, id)
	assert.Equal(t, "anonymous", id.Kind())
}

func TestResolve_GuestLookupError(t *testing.T) {
	r := NewResolver(nil, failingGuests{})
	_, err := r.Resolve(context.Background(), "", "guest_live")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGuestNotFound))
}

func TestJWTVerifier_UserIDClaimFallback(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "legacy-7"})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	userID, ok := NewJWTVerifier(testSecret).Verify(context.Background(), signed)
	assert.True(t, ok)
	assert.Equal(t, "legacy-7", userID)
}

func TestJWTVerifier_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "user-1"})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, ok := NewJWTVerifier(testSecret).Verify(context.Background(), signed)
	assert.False(t, ok)
}

func TestOwnerOf(t *testing.T) {
	kind, owner, err := OwnerOf(Authenticated{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, models.OwnerUser, kind)
	assert.Equal(t, "u1", owner)

	kind, owner, err = OwnerOf(Guest{Handle: "guest_x"})
	require.NoError(t, err)
	assert.Equal(t, models.OwnerGuest, kind)
	assert.Equal(t, "guest_x", owner)

	_, _, err = OwnerOf(Anonymous{})
	assert.True(t, errors.Is(err, ErrNoOwner))
}
