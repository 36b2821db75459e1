package models

import "time"

// Stats is an identity's aggregated play statistics.
// The same shape backs guests (ephemeral) and users (durable).
type Stats struct {
	SessionsPlayed     int            `json:"sessions_played"`
	TotalScore         int            `json:"total_score"`
	BestScore          int            `json:"best_score"`
	BugsFound          int            `json:"bugs_found"`
	TimePlayed         int            `json:"time_played"` // seconds
	PerfectScores      int            `json:"perfect_scores"`
	AdvancedCompleted  int            `json:"advanced_completed"`
	CategoryCompleted  map[string]int `json:"category_completed,omitempty"`
	FastestCompletion  *int           `json:"fastest_completion,omitempty"` // seconds, nil until a session completes
	FavoriteDifficulty Difficulty     `json:"favorite_difficulty"`
}

// NewStats returns zeroed stats with the default favorite difficulty
func NewStats() Stats {
	return Stats{
		CategoryCompleted:  map[string]int{},
		FavoriteDifficulty: DifficultyBeginner,
	}
}

// RecordScore counts one finished session worth score points
func (s *Stats) RecordScore(score int) {
	s.SessionsPlayed++
	s.TotalScore += score
	if score > s.BestScore {
		s.BestScore = score
	}
}

// Accumulate adds found bugs and play time. A non-empty difficulty
// becomes the favorite; the last one played wins.
func (s *Stats) Accumulate(bugsFound, timePlayed int, difficulty Difficulty) {
	s.BugsFound += bugsFound
	s.TimePlayed += timePlayed
	if difficulty != "" {
		s.FavoriteDifficulty = difficulty
	}
}

// Apply folds a completed session into the stats
func (s *Stats) Apply(out SessionOutcome) {
	s.RecordScore(out.Score)
	s.Accumulate(out.BugsFound, out.ElapsedSeconds, out.Difficulty)

	if out.MaxScore > 0 && out.Score == out.MaxScore {
		s.PerfectScores++
	}
	if out.Difficulty == DifficultyAdvanced {
		s.AdvancedCompleted++
	}
	if out.Category != "" {
		if s.CategoryCompleted == nil {
			s.CategoryCompleted = map[string]int{}
		}
		s.CategoryCompleted[out.Category]++
	}
	if s.FastestCompletion == nil || out.ElapsedSeconds < *s.FastestCompletion {
		elapsed := out.ElapsedSeconds
		s.FastestCompletion = &elapsed
	}
}

// AverageScore returns the mean score per session
func (s *Stats) AverageScore() float64 {
	if s.SessionsPlayed == 0 {
		return 0
	}
	return float64(s.TotalScore) / float64(s.SessionsPlayed)
}

// ProblemStats aggregates attempts at one problem across all players
type ProblemStats struct {
	ProblemID    string    `json:"problem_id"`
	Attempts     int       `json:"attempts"`
	Completions  int       `json:"completions"`
	AverageScore float64   `json:"average_score"`
	UpdatedAt    time.Time `json:"updated_at"`
}
