package guest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/code-review-quest/internal/achievements"
	"github.com/terra-clan/code-review-quest/internal/models"
)

const (
	// DefaultTTL is how long a guest identity lives
	DefaultTTL = 24 * time.Hour
	// HandlePrefix starts every guest handle
	HandlePrefix = "guest_"
	// MaxNicknameLength bounds user-chosen nicknames
	MaxNicknameLength = 50

	createAttempts = 3
)

// AccumulateInput carries additive stat changes
type AccumulateInput struct {
	BugsFound  int
	TimePlayed int // seconds
	Difficulty models.Difficulty
}

// Service implements guest identity operations on top of a Store
type Service struct {
	store     Store
	engine    *achievements.Engine
	ttl       time.Duration
	now       func() time.Time
	newHandle func() string
}

// NewService creates a guest service. A zero ttl means DefaultTTL.
func NewService(store Store, engine *achievements.Engine, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:     store,
		engine:    engine,
		ttl:       ttl,
		now:       time.Now,
		newHandle: NewHandle,
	}
}

// WithClock overrides the service clock
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// NewHandle returns "guest_" followed by 32 hex characters of a random UUID
func NewHandle() string {
	return HandlePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// DefaultNickname derives the nickname used when none is given
func DefaultNickname(handle string) string {
	prefix := handle
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "Guest_" + prefix
}

func normalizeNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if len([]rune(nickname)) > MaxNicknameLength {
		return "", fmt.Errorf("%w: nickname longer than %d characters", ErrInvalidUpdate, MaxNicknameLength)
	}
	return nickname, nil
}

// Create issues a fresh guest identity
func (s *Service) Create(ctx context.Context, nickname string) (*models.GuestRecord, error) {
	nickname, err := normalizeNickname(nickname)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= createAttempts; attempt++ {
		handle := s.newHandle()
		now := s.now().UTC()

		record := &models.GuestRecord{
			Handle:       handle,
			Nickname:     nickname,
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.ttl),
			LastActive:   now,
			Stats:        models.NewStats(),
			Achievements: []models.Award{},
		}
		if record.Nickname == "" {
			record.Nickname = DefaultNickname(handle)
		}

		err := s.store.Create(ctx, record)
		if errors.Is(err, ErrHandleTaken) {
			slog.Warn("guest handle collision, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create guest: %w", err)
		}

		slog.Info("guest created", "guest_id", handle, "expires_at", record.ExpiresAt)
		return record, nil
	}
	return nil, fmt.Errorf("failed to create guest: %w", ErrHandleTaken)
}

// Get returns the live record for handle, or nil, nil
func (s *Service) Get(ctx context.Context, handle string) (*models.GuestRecord, error) {
	return s.store.Get(ctx, handle)
}

// Profile returns the public profile of a live guest
func (s *Service) Profile(ctx context.Context, handle string) (*models.GuestProfile, error) {
	record, err := s.store.Get(ctx, handle)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrGuestNotFound
	}
	return record.Profile(), nil
}

// ConversionData returns the snapshot a registration flow imports from a guest
func (s *Service) ConversionData(ctx context.Context, handle string) (*models.GuestProfile, error) {
	return s.Profile(ctx, handle)
}

// UpdateNickname renames a guest. An empty nickname is ignored.
func (s *Service) UpdateNickname(ctx context.Context, handle, nickname string) (*models.GuestRecord, error) {
	nickname, err := normalizeNickname(nickname)
	if err != nil {
		return nil, err
	}
	return s.store.Mutate(ctx, handle, func(r *models.GuestRecord) error {
		if nickname != "" {
			r.Nickname = nickname
		}
		return nil
	})
}

// RecordSessionResult counts one finished session worth score points
func (s *Service) RecordSessionResult(ctx context.Context, handle string, score int) (*models.GuestRecord, []models.Award, error) {
	if score < 0 {
		return nil, nil, fmt.Errorf("%w: negative score", ErrInvalidUpdate)
	}
	return s.mutateWithAwards(ctx, handle, func(r *models.GuestRecord) error {
		r.Stats.RecordScore(score)
		return nil
	})
}

// Accumulate adds found bugs and play time, and tracks the last difficulty played
func (s *Service) Accumulate(ctx context.Context, handle string, in AccumulateInput) (*models.GuestRecord, []models.Award, error) {
	if err := validateAccumulate(in); err != nil {
		return nil, nil, err
	}
	return s.mutateWithAwards(ctx, handle, func(r *models.GuestRecord) error {
		r.Stats.Accumulate(in.BugsFound, in.TimePlayed, in.Difficulty)
		return nil
	})
}

// RecordOutcome folds a completed session into the guest's stats and
// awards badges, all in one atomic mutation
func (s *Service) RecordOutcome(ctx context.Context, handle string, out models.SessionOutcome) (*models.GuestRecord, []models.Award, error) {
	return s.mutateWithAwards(ctx, handle, func(r *models.GuestRecord) error {
		r.Stats.Apply(out)
		return nil
	})
}

// Update applies every field present in req in a single mutation
func (s *Service) Update(ctx context.Context, handle string, req models.UpdateGuestRequest) (*models.GuestRecord, []models.Award, error) {
	var nickname string
	if req.Nickname != nil {
		n, err := normalizeNickname(*req.Nickname)
		if err != nil {
			return nil, nil, err
		}
		nickname = n
	}
	if req.Score != nil && *req.Score < 0 {
		return nil, nil, fmt.Errorf("%w: negative score", ErrInvalidUpdate)
	}

	var in AccumulateInput
	if req.BugsFound != nil {
		in.BugsFound = *req.BugsFound
	}
	if req.TimePlayed != nil {
		in.TimePlayed = *req.TimePlayed
	}
	if req.Difficulty != nil && *req.Difficulty != "" {
		d, err := models.ParseDifficulty(*req.Difficulty)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
		}
		in.Difficulty = d
	}
	if err := validateAccumulate(in); err != nil {
		return nil, nil, err
	}

	return s.mutateWithAwards(ctx, handle, func(r *models.GuestRecord) error {
		if nickname != "" {
			r.Nickname = nickname
		}
		if req.Score != nil {
			r.Stats.RecordScore(*req.Score)
		}
		r.Stats.Accumulate(in.BugsFound, in.TimePlayed, in.Difficulty)
		return nil
	})
}

// Delete ends a guest identity and returns its final profile
func (s *Service) Delete(ctx context.Context, handle string) (*models.GuestProfile, error) {
	record, err := s.store.Delete(ctx, handle)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrGuestNotFound
	}
	slog.Info("guest deleted", "guest_id", handle)
	return record.Profile(), nil
}

// Sweep removes expired guests
func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.store.Sweep(ctx)
}

func (s *Service) mutateWithAwards(ctx context.Context, handle string, fn MutateFunc) (*models.GuestRecord, []models.Award, error) {
	var earned []models.Award
	record, err := s.store.Mutate(ctx, handle, func(r *models.GuestRecord) error {
		if err := fn(r); err != nil {
			return err
		}
		earned = nil
		if s.engine != nil {
			earned = s.engine.AwardGuest(r)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	for _, a := range earned {
		slog.Info("guest badge awarded", "guest_id", handle, "badge_id", a.BadgeID)
	}
	return record, earned, nil
}

func validateAccumulate(in AccumulateInput) error {
	if in.BugsFound < 0 || in.TimePlayed < 0 {
		return fmt.Errorf("%w: negative counters", ErrInvalidUpdate)
	}
	if in.Difficulty != "" && !in.Difficulty.IsValid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidUpdate, in.Difficulty)
	}
	return nil
}
