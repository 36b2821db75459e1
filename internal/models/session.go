package models

import (
	"time"
)

// SessionStatus represents the current state of a play session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"    // Started, accepting one submission
	SessionCompleted SessionStatus = "completed" // Evaluated, terminal
	SessionExpired   SessionStatus = "expired"   // Only produced by persisted storage
)

// OwnerKind says which storage owns a session
type OwnerKind string

const (
	OwnerUser  OwnerKind = "user"
	OwnerGuest OwnerKind = "guest"
)

// Session represents one attempt at one problem.
// Anonymous sessions are never persisted and so never reach storage.
type Session struct {
	ID             string        `json:"session_id"`
	OwnerKind      OwnerKind     `json:"owner_kind,omitempty"`
	OwnerID        string        `json:"owner_id,omitempty"`
	ProblemID      string        `json:"problem_id"`
	Category       string        `json:"category"`
	Difficulty     Difficulty    `json:"difficulty"`
	TimeLimit      int           `json:"time_limit"` // seconds
	Status         SessionStatus `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	ElapsedSeconds *int          `json:"elapsed_seconds,omitempty"`
	FinalScore     *int          `json:"final_score,omitempty"`
	MaxScore       *int          `json:"max_score,omitempty"`
	Correct        []int         `json:"correct,omitempty"`
	Missed         []int         `json:"missed,omitempty"`
	FalsePositives []int         `json:"false_positives,omitempty"`
}

// IsActive returns true if the session still accepts a submission
func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}

// IsTerminal returns true if the session is in a final state
func (s *Session) IsTerminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionExpired
}

// Elapsed returns the time spent so far, or the recorded time once completed
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.ElapsedSeconds != nil {
		return time.Duration(*s.ElapsedSeconds) * time.Second
	}
	if s.CompletedAt != nil {
		return s.CompletedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// TimeRemaining returns the advisory time left in the budget (0 once spent).
// It is informational; nothing rejects a late submission.
func (s *Session) TimeRemaining(now time.Time) time.Duration {
	if !s.IsActive() {
		return 0
	}
	remaining := time.Duration(s.TimeLimit)*time.Second - s.Elapsed(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Complete moves an active session to completed with its results.
// Callers persist through a compare-and-set on the previous status.
func (s *Session) Complete(at time.Time, score, maxScore int, correct, missed, falsePositives []int) {
	elapsed := int(at.Sub(s.StartedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	s.Status = SessionCompleted
	s.CompletedAt = &at
	s.ElapsedSeconds = &elapsed
	s.FinalScore = &score
	s.MaxScore = &maxScore
	s.Correct = correct
	s.Missed = missed
	s.FalsePositives = falsePositives
}

// SessionOutcome is what a completed session contributes to aggregated stats
type SessionOutcome struct {
	Score          int
	MaxScore       int
	BugsFound      int
	ElapsedSeconds int
	Difficulty     Difficulty
	Category       string
}

// Outcome derives the stats contribution of a completed session
func (s *Session) Outcome() SessionOutcome {
	out := SessionOutcome{
		BugsFound:  len(s.Correct),
		Difficulty: s.Difficulty,
		Category:   s.Category,
	}
	if s.FinalScore != nil {
		out.Score = *s.FinalScore
	}
	if s.MaxScore != nil {
		out.MaxScore = *s.MaxScore
	}
	if s.ElapsedSeconds != nil {
		out.ElapsedSeconds = *s.ElapsedSeconds
	}
	return out
}

// StartSessionRequest represents a request to start a session
type StartSessionRequest struct {
	Difficulty string `json:"difficulty"`
	TimeLimit  int    `json:"time_limit"` // seconds
}

// StartSessionResponse is returned after a session is started
type StartSessionResponse struct {
	SessionID  string         `json:"session_id"`
	Difficulty Difficulty     `json:"difficulty"`
	TimeLimit  int            `json:"time_limit"`
	Persisted  bool           `json:"persisted"`
	Problem    *PublicProblem `json:"problem"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SessionStatusResponse is returned for status checks
type SessionStatusResponse struct {
	Session          *Session `json:"session"`
	RemainingSeconds int      `json:"remaining_seconds"`
}

// BugReport is one reported defect location
type BugReport struct {
	LineNumber  int    `json:"line_number"`
	Description string `json:"description,omitempty"`
}

// SubmitRequest represents a submission of suspected defect lines
type SubmitRequest struct {
	Bugs []BugReport `json:"bugs"`
}
