package storage

import (
	"context"

	"github.com/terra-clan/code-review-quest/internal/models"
)

// Repository defines durable persistence for authenticated players.
// Lookups return nil, nil when a row does not exist.
type Repository interface {
	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// CompleteSession writes a completed session only if the stored row is
	// still active and reports whether it did
	CompleteSession(ctx context.Context, s *models.Session) (bool, error)
	ListUserSessions(ctx context.Context, userID string, limit int) ([]*models.Session, error)
	HasCompleted(ctx context.Context, userID, problemID string) (bool, error)

	// Aggregated stats
	RecordUserResult(ctx context.Context, userID string, out models.SessionOutcome) error
	GetUserStats(ctx context.Context, userID string) (models.Stats, error)
	GetUserAccuracy(ctx context.Context, userID string) (float64, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)

	// Awards
	ListAwards(ctx context.Context, userID string) ([]models.Award, error)
	// AwardBadge inserts an award unless the user already holds the badge
	// and reports whether a row was created
	AwardBadge(ctx context.Context, userID string, award models.Award) (bool, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// ProblemStatsStore tracks per-problem attempt statistics
type ProblemStatsStore interface {
	// RecordAttempt counts one evaluated submission. Scores above zero
	// count as completions.
	RecordAttempt(ctx context.Context, problemID string, score int) error
	GetProblemStats(ctx context.Context, problemID string) (*models.ProblemStats, error)
	ListProblemStats(ctx context.Context) ([]*models.ProblemStats, error)
}
