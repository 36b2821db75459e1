package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/terra-clan/code-review-quest/internal/models"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLiteRepository implements Repository and ProblemStatsStore on a local
// SQLite file, for development and tests
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping checks database connectivity
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// CreateSession creates a new session record
func (r *SQLiteRepository) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO play_sessions (id, user_id, problem_id, category, difficulty, time_limit, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.OwnerID, s.ProblemID, s.Category, string(s.Difficulty), s.TimeLimit, string(s.Status), s.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM play_sessions WHERE id = ?`, id)

	s, err := scanSQLiteSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// CompleteSession stores the results if the session is still active
func (r *SQLiteRepository) CompleteSession(ctx context.Context, s *models.Session) (bool, error) {
	correct, missed, falsePositives, err := marshalLines(s)
	if err != nil {
		return false, err
	}

	var completedAt any
	if s.CompletedAt != nil {
		completedAt = s.CompletedAt.UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE play_sessions
		SET status = ?, completed_at = ?, elapsed_seconds = ?, final_score = ?, max_score = ?,
			correct = ?, missed = ?, false_positives = ?
		WHERE id = ? AND status = 'active'`,
		string(s.Status), completedAt, nullInt(s.ElapsedSeconds), nullInt(s.FinalScore), nullInt(s.MaxScore),
		string(correct), string(missed), string(falsePositives), s.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}
	return n == 1, nil
}

// ListUserSessions returns a user's most recent sessions
func (r *SQLiteRepository) ListUserSessions(ctx context.Context, userID string, limit int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+`
		FROM play_sessions
		WHERE user_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// HasCompleted reports whether the user has completed the problem at least once
func (r *SQLiteRepository) HasCompleted(ctx context.Context, userID, problemID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM play_sessions
		WHERE user_id = ? AND problem_id = ? AND status = 'completed'`, userID, problemID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return count > 0, nil
}

// RecordUserResult folds a completed session into the user's aggregate row
func (r *SQLiteRepository) RecordUserResult(ctx context.Context, userID string, out models.SessionOutcome) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_stats (user_id, sessions_played, total_score, best_score, bugs_found, time_played, favorite_difficulty, updated_at)
		VALUES (?, 1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			sessions_played = user_stats.sessions_played + 1,
			total_score = user_stats.total_score + excluded.total_score,
			best_score = MAX(user_stats.best_score, excluded.best_score),
			bugs_found = user_stats.bugs_found + excluded.bugs_found,
			time_played = user_stats.time_played + excluded.time_played,
			favorite_difficulty = excluded.favorite_difficulty,
			updated_at = excluded.updated_at`,
		userID, out.Score, out.Score, out.BugsFound, out.ElapsedSeconds, string(out.Difficulty), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record user result: %w", err)
	}
	return nil
}

// GetUserStats returns aggregated stats; users without sessions get zeroed stats
func (r *SQLiteRepository) GetUserStats(ctx context.Context, userID string) (models.Stats, error) {
	stats := models.NewStats()

	var favorite string
	err := r.db.QueryRowContext(ctx, `
		SELECT sessions_played, total_score, best_score, bugs_found, time_played, favorite_difficulty
		FROM user_stats WHERE user_id = ?`, userID).Scan(
		&stats.SessionsPlayed,
		&stats.TotalScore,
		&stats.BestScore,
		&stats.BugsFound,
		&stats.TimePlayed,
		&favorite,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("failed to get user stats: %w", err)
	}
	stats.FavoriteDifficulty = models.Difficulty(favorite)

	var fastest sql.NullInt64
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN max_score > 0 AND final_score = max_score THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN difficulty = 'advanced' THEN 1 ELSE 0 END), 0),
			MIN(elapsed_seconds)
		FROM play_sessions
		WHERE user_id = ? AND status = 'completed'`, userID).Scan(
		&stats.PerfectScores,
		&stats.AdvancedCompleted,
		&fastest,
	)
	if err != nil {
		return stats, fmt.Errorf("failed to derive session stats: %w", err)
	}
	stats.FastestCompletion = intPtr(fastest)

	rows, err := r.db.QueryContext(ctx, `
		SELECT category, COUNT(*)
		FROM play_sessions
		WHERE user_id = ? AND status = 'completed'
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
func (r *SQLiteRepository) GetUserAccuracy(ctx context.Context, userID string) (float64, error) {
	var found, total int
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(json_array_length(correct)), 0),
			COALESCE(SUM(json_array_length(correct) + json_array_length(missed)), 0)
		FROM play_sessions
		WHERE user_id = ? AND status = 'completed'`, userID).Scan(&found, &total)
	if err != nil {
		return 0, fmt.Errorf("failed to compute accuracy: %w", err)
	}
	return ratio(found, total), nil
}

// Leaderboard ranks users by total score
func (r *SQLiteRepository) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, total_score, sessions_played, best_score
		FROM user_stats
		WHERE sessions_played > 0
		ORDER BY total_score DESC, user_id
		LIMIT ?`, limit)
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

// ListAwards returns a user's awards in the order they were earned
func (r *SQLiteRepository) ListAwards(ctx context.Context, userID string) ([]models.Award, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT badge_id, name, description, icon, earned_at
		FROM user_badges
		WHERE user_id = ?
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
func (r *SQLiteRepository) AwardBadge(ctx context.Context, userID string, award models.Award) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_badges (user_id, badge_id, name, description, icon, earned_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, award.BadgeID, award.Name, award.Description, award.Icon, award.EarnedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	return n == 1, nil
}

// RecordAttempt implements ProblemStatsStore
func (r *SQLiteRepository) RecordAttempt(ctx context.Context, problemID string, score int) error {
	completion := 0
	if score > 0 {
		completion = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO problem_stats (problem_id, attempts, completions, average_score, updated_at)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT (problem_id) DO UPDATE SET
			average_score = (problem_stats.average_score * problem_stats.attempts + excluded.average_score) / (problem_stats.attempts + 1),
			attempts = problem_stats.attempts + 1,
			completions = problem_stats.completions + excluded.completions,
			updated_at = excluded.updated_at`,
		problemID, completion, float64(score), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record problem attempt: %w", err)
	}
	return nil
}

// GetProblemStats implements ProblemStatsStore
func (r *SQLiteRepository) GetProblemStats(ctx context.Context, problemID string) (*models.ProblemStats, error) {
	var ps models.ProblemStats
	err := r.db.QueryRowContext(ctx, `
		SELECT problem_id, attempts, completions, average_score, updated_at
		FROM problem_stats WHERE problem_id = ?`, problemID).Scan(
		&ps.ProblemID, &ps.Attempts, &ps.Completions, &ps.AverageScore, &ps.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get problem stats: %w", err)
	}
	return &ps, nil
}

// ListProblemStats implements ProblemStatsStore
func (r *SQLiteRepository) ListProblemStats(ctx context.Context) ([]*models.ProblemStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT problem_id, attempts, completions, average_score, updated_at
		FROM problem_stats ORDER BY problem_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list problem stats: %w", err)
	}
	defer rows.Close()

	var result []*models.ProblemStats
	for rows.Next() {
		var ps models.ProblemStats
		if err := rows.Scan(&ps.ProblemID, &ps.Attempts, &ps.Completions, &ps.AverageScore, &ps.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan problem stats: %w", err)
		}
		result = append(result, &ps)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var difficulty, status string
	var completedAt sql.NullTime
	var elapsed, finalScore, maxScore sql.NullInt64
	var correct, missed, falsePositives sql.NullString

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

	if err := unmarshalLines([]byte(correct.String), &s.Correct); err != nil {
		return nil, err
	}
	if err := unmarshalLines([]byte(missed.String), &s.Missed); err != nil {
		return nil, err
	}
	if err := unmarshalLines([]byte(falsePositives.String), &s.FalsePositives); err != nil {
		return nil, err
	}
	return &s, nil
}
