// Package game runs play sessions: it picks problems, routes sessions to
// the store owned by the caller's identity, and turns a submission into a
// score, updated stats and newly earned badges.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/code-review-quest/internal/achievements"
	"github.com/terra-clan/code-review-quest/internal/catalog"
	"github.com/terra-clan/code-review-quest/internal/evaluation"
	"github.com/terra-clan/code-review-quest/internal/events"
	"github.com/terra-clan/code-review-quest/internal/guest"
	"github.com/terra-clan/code-review-quest/internal/identity"
	"github.com/terra-clan/code-review-quest/internal/models"
	"github.com/terra-clan/code-review-quest/internal/storage"
)

// Common errors
var (
	ErrInvalidDifficulty   = errors.New("invalid difficulty")
	ErrNoProblemsAvailable = errors.New("no problems available")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrProblemNotFound     = errors.New("problem not found")
	ErrAnonymous           = errors.New("anonymous callers have no profile")
)

// DefaultTimeLimit is the session budget in seconds when none is requested
const DefaultTimeLimit = 900

// recentScoresLimit bounds the score history shown on a user profile
const recentScoresLimit = 10

// ProblemSource is the read side of the problem catalog
type ProblemSource interface {
	GetProblem(id string) *models.Problem
	GetProblems(difficulty models.Difficulty) []*models.Problem
}

// Manager defines the session lifecycle
type Manager interface {
	StartSession(ctx context.Context, id identity.Identity, difficulty string, timeLimit int) (*models.Session, *models.Problem, error)
	Submit(ctx context.Context, id identity.Identity, sessionID string, reports []evaluation.Report) (*Result, error)
	SessionStatus(ctx context.Context, id identity.Identity, sessionID string) (*models.Session, time.Duration, error)
	Profile(ctx context.Context, id identity.Identity) (*Profile, error)
	Explanation(ctx context.Context, id identity.Identity, problemID, sessionID string) (*Explanation, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	ProblemStats(ctx context.Context) ([]*models.ProblemStats, error)
	Ping(ctx context.Context) error
}

// Result is the outcome of a submission
type Result struct {
	*evaluation.Result
	SessionID string          `json:"session_id"`
	NewBadges []models.Award  `json:"newly_earned_badges"`
	Session   *models.Session `json:"session"`
}

// Profile is the caller's own profile; exactly one of User and Guest is set
type Profile struct {
	Kind  string               `json:"kind"`
	User  *models.UserProfile  `json:"user,omitempty"`
	Guest *models.GuestProfile `json:"guest,omitempty"`
}

// Explanation is a problem walkthrough. While Locked, the defects stay hidden.
type Explanation struct {
	Problem            *models.PublicProblem `json:"problem"`
	Locked             bool                  `json:"locked"`
	Bugs               []models.Defect       `json:"bugs,omitempty"`
	LearningObjectives []string              `json:"learning_objectives,omitempty"`
	Detailed           string                `json:"detailed_explanation,omitempty"`
}

// Options wires a GameManager to its collaborators.
// ProblemStats and Publisher are optional.
type Options struct {
	Problems      ProblemSource
	Repo          storage.Repository
	GuestSessions guest.SessionStore
	Guests        *guest.Service
	Achievements  *achievements.Engine
	ProblemStats  storage.ProblemStatsStore
	Publisher     events.Publisher
}

// GameManager implements Manager
type GameManager struct {
	problems      ProblemSource
	repo          storage.Repository
	guestSessions guest.SessionStore
	guests        *guest.Service
	achievements  *achievements.Engine
	problemStats  storage.ProblemStatsStore
	publisher     events.Publisher
	now           func() time.Time
	pick          func(n int) int
}

// NewManager creates a GameManager
func NewManager(opts Options) *GameManager {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &GameManager{
		problems:      opts.Problems,
		repo:          opts.Repo,
		guestSessions: opts.GuestSessions,
		guests:        opts.Guests,
		achievements:  opts.Achievements,
		problemStats:  opts.ProblemStats,
		publisher:     publisher,
		now:           time.Now,
		pick:          rand.IntN,
	}
}

// WithClock overrides the manager clock
func (m *GameManager) WithClock(now func() time.Time) *GameManager {
	m.now = now
	return m
}

// WithPicker overrides the random problem choice. pick returns an index in [0, n).
func (m *GameManager) WithPicker(pick func(n int) int) *GameManager {
	m.pick = pick
	return m
}

// Ping checks the durable repository
func (m *GameManager) Ping(ctx context.Context) error {
	if err := m.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// StartSession picks a problem of the given difficulty and opens a session.
// Anonymous sessions are returned but never stored.
func (m *GameManager) StartSession(ctx context.Context, id identity.Identity, difficulty string, timeLimit int) (*models.Session, *models.Problem, error) {
	d, err := models.ParseDifficulty(difficulty)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidDifficulty, err)
	}

	problems := m.problems.GetProblems(d)
	if len(problems) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoProblemsAvailable, d)
	}
	problem := problems[m.pick(len(problems))]

	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}

	session := &models.Session{
		ID:         uuid.NewString(),
		ProblemID:  problem.ID,
		Category:   problem.Category,
		Difficulty: problem.Difficulty,
		TimeLimit:  timeLimit,
		Status:     models.SessionActive,
		StartedAt:  m.now().UTC(),
	}

	kind, ownerID, err := identity.OwnerOf(id)
	switch {
	case errors.Is(err, identity.ErrNoOwner):
		slog.Info("anonymous session started", "session_id", session.ID, "problem_id", problem.ID)
		return session, problem, nil
	case err != nil:
		return nil, nil, err
	}

	session.OwnerKind = kind
	session.OwnerID = ownerID

	switch kind {
	case models.OwnerUser:
		err = m.repo.CreateSession(ctx, session)
	case models.OwnerGuest:
		err = m.guestSessions.CreateSession(ctx, session)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("session started",
		"session_id", session.ID,
		"owner_kind", kind,
		"owner_id", ownerID,
		"problem_id", problem.ID,
		"difficulty", d,
	)
	return session, problem, nil
}

// loadSession returns the session only when id owns it
func (m *GameManager) loadSession(ctx context.Context, id identity.Identity, sessionID string) (*models.Session, error) {
	kind, ownerID, err := identity.OwnerOf(id)
	if errors.Is(err, identity.ErrNoOwner) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session *models.Session
	switch kind {
	case models.OwnerUser:
		session, err = m.repo.GetSession(ctx, sessionID)
	case models.OwnerGuest:
		session, err = m.guestSessions.GetSession(ctx, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil || session.OwnerKind != kind || session.OwnerID != ownerID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// SessionStatus returns a session with its advisory remaining time
func (m *GameManager) SessionStatus(ctx context.Context, id identity.Identity, sessionID string) (*models.Session, time.Duration, error) {
	session, err := m.loadSession(ctx, id, sessionID)
	if err != nil {
		return nil, 0, err
	}
	return session, session.TimeRemaining(m.now()), nil
}

// Submit evaluates reports against the session's problem and completes it.
// At most one submission per session succeeds; once the session is
// completed, failures to update stats, badges or events are only logged.
func (m *GameManager) Submit(ctx context.Context, id identity.Identity, sessionID string, reports []evaluation.Report) (*Result, error) {
	if err := evaluation.Validate(reports); err != nil {
		return nil, err
	}

	session, err := m.loadSession(ctx, id, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, ErrSessionNotActive
	}

	problem := m.problems.GetProblem(session.ProblemID)
	if problem == nil {
		return nil, fmt.Errorf("%w: %s", ErrProblemNotFound, session.ProblemID)
	}

	res := evaluation.Evaluate(problem.Defects, reports)
	session.Complete(m.now().UTC(), res.Score, res.MaxScore, res.Correct, res.Missed, res.FalsePositives)

	var completed bool
	switch session.OwnerKind {
	case models.OwnerUser:
		completed, err = m.repo.CompleteSession(ctx, session)
	case models.OwnerGuest:
		completed, err = m.guestSessions.CompleteSession(ctx, session)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}
	if !completed {
		return nil, ErrSessionNotActive
	}

	slog.Info("session completed",
		"session_id", session.ID,
		"owner_id", session.OwnerID,
		"problem_id", session.ProblemID,
		"score", res.Score,
		"correct", len(res.Correct),
		"false_positives", len(res.FalsePositives),
	)

	earned := m.recordOutcome(ctx, session)
	m.recordProblemAttempt(ctx, session.ProblemID, res.Score)
	m.publishCompletion(ctx, session, earned)

	if earned == nil {
		earned = []models.Award{}
	}
	return &Result{
		Result:    res,
		SessionID: session.ID,
		NewBadges: earned,
		Session:   session,
	}, nil
}

// recordOutcome folds a completed session into the owner's stats and
// returns the badges it newly earned
func (m *GameManager) recordOutcome(ctx context.Context, session *models.Session) []models.Award {
	out := session.Outcome()
	log := slog.With("session_id", session.ID, "owner_id", session.OwnerID)

	switch session.OwnerKind {
	case models.OwnerUser:
		if err := m.repo.RecordUserResult(ctx, session.OwnerID, out); err != nil {
			log.Error("failed to record user result", "error", err)
			return nil
		}
		if m.achievements == nil {
			return nil
		}
		stats, err := m.repo.GetUserStats(ctx, session.OwnerID)
		if err != nil {
			log.Error("failed to load user stats", "error", err)
			return nil
		}
		earned, err := m.achievements.AwardUser(ctx, m.repo, session.OwnerID, stats)
		if err != nil {
			log.Error("failed to award badges", "error", err)
		}
		return earned

	case models.OwnerGuest:
		_, earned, err := m.guests.RecordOutcome(ctx, session.OwnerID, out)
		if err != nil {
			log.Error("failed to record guest result", "error", err)
			return nil
		}
		return earned
	}
	return nil
}

func (m *GameManager) recordProblemAttempt(ctx context.Context, problemID string, score int) {
	if m.problemStats == nil {
		return
	}
	if err := m.problemStats.RecordAttempt(ctx, problemID, score); err != nil {
		slog.Error("failed to record problem attempt", "problem_id", problemID, "error", err)
	}
}

func (m *GameManager) publishCompletion(ctx context.Context, session *models.Session, earned []models.Award) {
	out := session.Outcome()
	now := m.now().UTC()

	batch := []events.Event{{
		Type:       events.TypeSessionCompleted,
		OccurredAt: now,
		Payload: events.SessionCompleted{
			SessionID:      session.ID,
			OwnerKind:      session.OwnerKind,
			OwnerID:        session.OwnerID,
			ProblemID:      session.ProblemID,
			Difficulty:     session.Difficulty,
			Score:          out.Score,
			MaxScore:       out.MaxScore,
			Correct:        len(session.Correct),
			Missed:         len(session.Missed),
			FalsePositives: len(session.FalsePositives),
			ElapsedSeconds: out.ElapsedSeconds,
		},
	}}
	for _, a := range earned {
		batch = append(batch, events.Event{
			Type:       events.TypeBadgeAwarded,
			OccurredAt: now,
			Payload: events.BadgeAwarded{
				OwnerKind: session.OwnerKind,
				OwnerID:   session.OwnerID,
				BadgeID:   a.BadgeID,
				Name:      a.Name,
				EarnedAt:  a.EarnedAt,
			},
		})
	}

	for _, e := range batch {
		if err := m.publisher.Publish(ctx, e); err != nil {
			slog.Warn("failed to publish event", "type", e.Type, "session_id", session.ID, "error", err)
		}
	}
}

// Profile returns the caller's own profile
func (m *GameManager) Profile(ctx context.Context, id identity.Identity) (*Profile, error) {
	switch v := id.(type) {
	case identity.Authenticated:
		user, err := m.userProfile(ctx, v.UserID)
		if err != nil {
			return nil, err
		}
		return &Profile{Kind: v.Kind(), User: user}, nil
	case identity.Guest:
		profile, err := m.guests.Profile(ctx, v.Handle)
		if err != nil {
			return nil, err
		}
		return &Profile{Kind: v.Kind(), Guest: profile}, nil
	}
	return nil, ErrAnonymous
}

func (m *GameManager) userProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	stats, err := m.repo.GetUserStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	accuracy, err := m.repo.GetUserAccuracy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user accuracy: %w", err)
	}
	awards, err := m.repo.ListAwards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list awards: %w", err)
	}
	sessions, err := m.repo.ListUserSessions(ctx, userID, recentScoresLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	recent := make([]int, 0, len(sessions))
	for _, s := range sessions {
		if s.Status == models.SessionCompleted && s.FinalScore != nil {
			recent = append(recent, *s.FinalScore)
		}
	}
	if awards == nil {
		awards = []models.Award{}
	}

	return &models.UserProfile{
		UserID:       userID,
		Stats:        stats,
		AverageScore: stats.AverageScore(),
		AccuracyRate: accuracy,
		Badges:       awards,
		RecentScores: recent,
	}, nil
}

// Explanation returns the walkthrough of a problem. Defects are revealed
// only to a caller who has completed the problem: users through their
// session history, guests by naming their completed session.
func (m *GameManager) Explanation(ctx context.Context, id identity.Identity, problemID, sessionID string) (*Explanation, error) {
	problem := m.problems.GetProblem(problemID)
	if problem == nil {
		return nil, fmt.Errorf("%w: %s", ErrProblemNotFound, problemID)
	}

	unlocked, err := m.hasCompleted(ctx, id, problemID, sessionID)
	if err != nil {
		return nil, err
	}

	exp := &Explanation{
		Problem: problem.Public(),
		Locked:  !unlocked,
	}
	if unlocked {
		exp.Bugs = problem.Defects
		exp.LearningObjectives = problem.LearningObjectives
		exp.Detailed = catalog.Explain(problem)
	}
	return exp, nil
}

func (m *GameManager) hasCompleted(ctx context.Context, id identity.Identity, problemID, sessionID string) (bool, error) {
	switch v := id.(type) {
	case identity.Authenticated:
		done, err := m.repo.HasCompleted(ctx, v.UserID, problemID)
		if err != nil {
			return false, fmt.Errorf("failed to check completion: %w", err)
		}
		return done, nil
	case identity.Guest:
		if sessionID == "" {
			return false, nil
		}
		session, err := m.loadSession(ctx, id, sessionID)
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return session.ProblemID == problemID && session.Status == models.SessionCompleted, nil
	}
	return false, nil
}

// Leaderboard returns the top users by total score
func (m *GameManager) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	entries, err := m.repo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	return entries, nil
}

// ProblemStats lists per-problem attempt statistics
func (m *GameManager) ProblemStats(ctx context.Context) ([]*models.ProblemStats, error) {
	if m.problemStats == nil {
		return []*models.ProblemStats{}, nil
	}
	stats, err := m.problemStats.ListProblemStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list problem stats: %w", err)
	}
	if stats == nil {
		stats = []*models.ProblemStats{}
	}
	return stats, nil
}
