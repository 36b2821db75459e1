package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/code-review-quest/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the connection pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Sessions ---

const sessionColumns = `id, user_id, problem_id, category, difficulty, time_limit, status,
	started_at, completed_at, elapsed_seconds, final_score, max_score, correct, missed, false_positives`

// CreateSession creates a new session record
func (r *PostgresRepository) CreateSession(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO play_sessions (id, user_id, problem_id, category, difficulty, time_limit, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.OwnerID,
		s.ProblemID,
		s.Category,
		string(s.Difficulty),
		s.TimeLimit,
		string(s.Status),
		s.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by ID
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM play_sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// CompleteSession stores the results if the session is still active
func (r *PostgresRepository) CompleteSession(ctx context.Context, s *models.Session) (bool, error) {
	correct, missed, falsePositives, err := marshalLines(s)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE play_sessions
		SET status = $2, completed_at = $3, elapsed_seconds = $4, final_score = $5, max_score = $6,
			correct = $7, missed = $8, false_positives = $9
		WHERE id = $1 AND status = 'active'
	`

	result, err := r.pool.Exec(ctx, query,
		s.ID,
		string(s.Status),
		nullTime(s.CompletedAt),
		nullInt(s.ElapsedSeconds),
		nullInt(s.FinalScore),
		nullInt(s.MaxScore),
		correct,
		missed,
		falsePositives,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// ListUserSessions returns a user's most recent sessions
func (r *PostgresRepository) ListUserSessions(ctx context.Context, userID string, limit int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT ` + sessionColumns + `
		FROM play_sessions
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// HasCompleted reports whether the user has completed the problem at least once
func (r *PostgresRepository) HasCompleted(ctx context.Context, userID, problemID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM play_sessions WHERE user_id = $1 AND problem_id = $2 AND status = 'completed'
		)`, userID, problemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return exists, nil
}

// --- Stats ---

// RecordUserResult folds a completed session into the user's aggregate row
func (r *PostgresRepository) RecordUserResult(ctx context.Context, userID string, out models.SessionOutcome) error {
	query := `
		INSERT INTO user_stats (user_id, sessions_played, total_score, best_score, bugs_found, time_played, favorite_difficulty, updated_at)
		VALUES ($1, 1, $2, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			sessions_played = user_stats.sessions_played + 1,
			total_score = user_stats.total_score + EXCLUDED.total_score,
			best_score = GREATEST(user_stats.best_score, EXCLUDED.best_score),
			bugs_found = user_stats.bugs_found + EXCLUDED.bugs_found,
			time_played = user_stats.time_played + EXCLUDED.time_played,
			favorite_difficulty = EXCLUDED.favorite_difficulty,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, userID, out.Score, out.BugsFound, out.ElapsedSeconds, string(out.Difficulty))
	if err != nil {
		return fmt.Errorf("failed to record user result: %w", err)
	}
	return nil
}

// GetUserStats returns aggregated stats; users without sessions get zeroed stats
func (r *PostgresRepository) GetUserStats(ctx context.Context, userID string) (models.Stats, error) {
	stats := models.NewStats()

	var favorite string
	err := r.pool.QueryRow(ctx, `
		SELECT sessions_played, total_score, best_score, bugs_found, time_played, favorite_difficulty
		FROM user_stats WHERE user_id = $1`, userID).Scan(
		&stats.SessionsPlayed,
		&stats.TotalScore,
		&stats.BestScore,
		&stats.BugsFound,
		&stats.TimePlayed,
		&favorite,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("failed to get user stats: %w", err)
	}
	stats.FavoriteDifficulty = models.Difficulty(favorite)

	var fastest sql.NullInt64
	err = r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN max_score > 0 AND final_score = max_score THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN difficulty = 'advanced' THEN 1 ELSE 0 END), 0),
			MIN(elapsed_seconds)
		FROM play_sessions
		WHERE user_id = $1 AND status = 'completed'`, userID).Scan(
		&stats.PerfectScores,
		&stats.AdvancedCompleted,
		&fastest,
	)
	if err != nil {
		return stats, fmt.Errorf("failed to derive session stats: %w", err)
	}
	if fastest.Valid {
		v := int(fastest.Int64)
		stats.FastestCompletion = &v
	}

	rows, err := r.pool.Query(ctx, `
		SELECT category, COUNT(*)
		FROM play_sessions
		WHERE user_id = $1 AND status = 'completed'
		GROUP BY category`, userID)
	if err != nil {
		return stats, fmt.Errorf("failed to count categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return stats, fmt.Errorf("failed to scan category count: %w", err)
		}
		stats.CategoryCompleted[category] = count
	}
	return stats, rows.Err()
}

// GetUserAccuracy returns found defects over all defects across completed sessions
func (r *PostgresRepository) GetUserAccuracy(ctx context.Context, userID string) (float64, error) {
	var found, total int
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(jsonb_array_length(correct)), 0),
			COALESCE(SUM(jsonb_array_length(correct) + jsonb_array_length(missed)), 0)
		FROM play_sessions
		WHERE user_id = $1 AND status = 'completed'`, userID).Scan(&found, &total)
	if err != nil {
		return 0, fmt.Errorf("failed to compute accuracy: %w", err)
	}
	return ratio(found, total), nil
}

// Leaderboard ranks users by total score
func (r *PostgresRepository) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, total_score, sessions_played, best_score
		FROM user_stats
		WHERE sessions_played > 0
		ORDER BY total_score DESC, user_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		e := models.LeaderboardEntry{Rank: len(entries) + 1}
		if err := rows.Scan(&e.UserID, &e.TotalScore, &e.Sessions, &e.BestScore); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Awards ---

// ListAwards returns a user's awards in the order they were earned
func (r *PostgresRepository) ListAwards(ctx context.Context, userID string) ([]models.Award, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT badge_id, name, description, icon, earned_at
		FROM user_badges
		WHERE user_id = $1
		ORDER BY earned_at, badge_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list awards: %w", err)
	}
	defer rows.Close()

	awards := []models.Award{}
	for rows.Next() {
		var a models.Award
		if err := rows.Scan(&a.BadgeID, &a.Name, &a.Description, &a.Icon, &a.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan award: %w", err)
		}
		awards = append(awards, a)
	}
	return awards, rows.Err()
}

// AwardBadge inserts an award at most once per (user, badge)
func (r *PostgresRepository) AwardBadge(ctx context.Context, userID string, award models.Award) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_id, name, description, icon, earned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, badge_id) DO NOTHING`,
		userID, award.BadgeID, award.Name, award.Description, award.Icon, award.EarnedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// --- Helpers ---

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	var difficulty, status string
	var completedAt sql.NullTime
	var elapsed, finalScore, maxScore sql.NullInt64
	var correct, missed, falsePositives []byte

	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.ProblemID,
		&s.Category,
		&difficulty,
		&s.TimeLimit,
		&status,
		&s.StartedAt,
		&completedAt,
		&elapsed,
		&finalScore,
		&maxScore,
		&correct,
		&missed,
		&falsePositives,
	)
	if err != nil {
		return nil, err
	}

	s.OwnerKind = models.OwnerUser
	s.Difficulty = models.Difficulty(difficulty)
	s.Status = models.SessionStatus(status)
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	s.ElapsedSeconds = intPtr(elapsed)
	s.FinalScore = intPtr(finalScore)
	s.MaxScore = intPtr(maxScore)

	if err := unmarshalLines(correct, &s.Correct); err != nil {
		return nil, err
	}
	if err := unmarshalLines(missed, &s.Missed); err != nil {
		return nil, err
	}
	if err := unmarshalLines(falsePositives, &s.FalsePositives); err != nil {
		return nil, err
	}
	return &s, nil
}

func marshalLines(s *models.Session) (correct, missed, falsePositives []byte, err error) {
	if correct, err = json.Marshal(nonNil(s.Correct)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal correct lines: %w", err)
	}
	if missed, err = json.Marshal(nonNil(s.Missed)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal missed lines: %w", err)
	}
	if falsePositives, err = json.Marshal(nonNil(s.FalsePositives)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal false positives: %w", err)
	}
	return correct, missed, falsePositives, nil
}

func unmarshalLines(data []byte, dst *[]int) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal lines: %w", err)
	}
	return nil
}

func nonNil(lines []int) []int {
	if lines == nil {
		return []int{}
	}
	return lines
}

func ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
