package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/terra-clan/code-review-quest/internal/models"
)

// PQProblemStats implements ProblemStatsStore on PostgreSQL through database/sql
type PQProblemStats struct {
	db *sql.DB
}

// OpenPQProblemStats connects with the lib/pq driver
func OpenPQProblemStats(ctx context.Context, dsn string) (*PQProblemStats, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PQProblemStats{db: db}, nil
}

// Ping checks database connectivity
func (s *PQProblemStats) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying pool
func (s *PQProblemStats) Close() error {
	return s.db.Close()
}

// RecordAttempt implements ProblemStatsStore
func (s *PQProblemStats) RecordAttempt(ctx context.Context, problemID string, score int) error {
	completion := 0
	if score > 0 {
		completion = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO problem_stats (problem_id, attempts, completions, average_score, updated_at)
		VALUES ($1, 1, $2, $3, NOW())
		ON CONFLICT (problem_id) DO UPDATE SET
			average_score = (problem_stats.average_score * problem_stats.attempts + EXCLUDED.average_score) / (problem_stats.attempts + 1),
			attempts = problem_stats.attempts + 1,
			completions = problem_stats.completions + EXCLUDED.completions,
			updated_at = NOW()`,
		problemID, completion, float64(score),
	)
	if err != nil {
		return fmt.Errorf("failed to record problem attempt: %w", err)
	}
	return nil
}

// GetProblemStats implements ProblemStatsStore
func (s *PQProblemStats) GetProblemStats(ctx context.Context, problemID string) (*models.ProblemStats, error) {
	var ps models.ProblemStats
	err := s.db.QueryRowContext(ctx, `
		SELECT problem_id, attempts, completions, average_score, updated_at
		FROM problem_stats WHERE problem_id = $1`, problemID).Scan(
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
func (s *PQProblemStats) ListProblemStats(ctx context.Context) ([]*models.ProblemStats, error) {
	rows, err := s.db.QueryContext(ctx, `
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
