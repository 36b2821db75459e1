package achievements

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/terra-clan/code-review-quest/internal/models"
)

// BadgeSource provides the current badge definitions
type BadgeSource interface {
	Badges() []models.Badge
}

// AwardStore persists user awards.
// AwardBadge must be a guarded insert that reports whether a new row was created.
type AwardStore interface {
	ListAwards(ctx context.Context, userID string) ([]models.Award, error)
	AwardBadge(ctx context.Context, userID string, award models.Award) (bool, error)
}

// Engine decides which badges an identity has newly earned
type Engine struct {
	source BadgeSource
	now    func() time.Time
}

// NewEngine creates a rule engine over the badges of source
func NewEngine(source BadgeSource) *Engine {
	return &Engine{
		source: source,
		now:    time.Now,
	}
}

// WithClock overrides the clock used to stamp awards
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ValidateBadge checks that a badge has an id and at least one known requirement
func ValidateBadge(b models.Badge) error {
	if b.ID == "" {
		return fmt.Errorf("badge id is required")
	}
	if len(b.Requirements) == 0 {
		return fmt.Errorf("badge %s has no requirements", b.ID)
	}
	switch b.Scope {
	case "", models.ScopeAny, models.ScopeUser, models.ScopeGuest:
	default:
		return fmt.Errorf("badge %s has unknown scope %q", b.ID, b.Scope)
	}
	if _, err := ParseRequirements(b.Requirements); err != nil {
		return fmt.Errorf("badge %s: %w", b.ID, err)
	}
	return nil
}

// Eligible returns the badges not in held whose requirements all hold
// for stats, sorted by id. Badges that fail to parse are skipped.
func Eligible(badges []models.Badge, stats models.Stats, held map[string]bool) []models.Badge {
	var eligible []models.Badge
	for _, b := range badges {
		if held[b.ID] {
			continue
		}
		reqs, err := ParseRequirements(b.Requirements)
		if err != nil {
			slog.Warn("skipping badge with invalid requirements", "badge_id", b.ID, "error", err)
			continue
		}
		if SatisfiedAll(reqs, stats) {
			eligible = append(eligible, b)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	return eligible
}

// Eligible evaluates the engine's badges that apply to kind
func (e *Engine) Eligible(kind models.OwnerKind, stats models.Stats, held map[string]bool) []models.Badge {
	return Eligible(e.badgesFor(kind), stats, held)
}

func (e *Engine) badgesFor(kind models.OwnerKind) []models.Badge {
	all := e.source.Badges()
	scoped := make([]models.Badge, 0, len(all))
	for _, b := range all {
		if b.Scope.AppliesTo(kind) {
			scoped = append(scoped, b)
		}
	}
	return scoped
}

// AwardUser records every newly eligible badge for an authenticated user.
// Only awards the store actually inserted are returned, so concurrent
// callers never report the same badge twice.
func (e *Engine) AwardUser(ctx context.Context, store AwardStore, userID string, stats models.Stats) ([]models.Award, error) {
	existing, err := store.ListAwards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list awards: %w", err)
	}
	held := make(map[string]bool, len(existing))
	for _, a := range existing {
		held[a.BadgeID] = true
	}

	now := e.now().UTC()
	earned := []models.Award{}
	for _, b := range e.Eligible(models.OwnerUser, stats, held) {
		award := models.NewAward(b, now)
		inserted, err := store.AwardBadge(ctx, userID, award)
		if err != nil {
			return earned, fmt.Errorf("failed to award badge %s: %w", b.ID, err)
		}
		if !inserted {
			continue
		}
		slog.Info("badge awarded", "user_id", userID, "badge_id", b.ID)
		earned = append(earned, award)
	}
	return earned, nil
}

// AwardGuest appends newly eligible badges to the guest's achievements.
// Callers run it inside the guest store's atomic mutation.
func (e *Engine) AwardGuest(record *models.GuestRecord) []models.Award {
	now := e.now().UTC()
	earned := []models.Award{}
	for _, b := range e.Eligible(models.OwnerGuest, record.Stats, record.HeldBadges()) {
		award := models.NewAward(b, now)
		record.Achievements = append(record.Achievements, award)
		earned = append(earned, award)
	}
	return earned
}
