// Package events publishes domain events for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/terra-clan/code-review-quest/internal/models"
)

// Event types
const (
	TypeSessionCompleted = "session.completed"
	TypeBadgeAwarded     = "badge.awarded"
)

// Event is one published domain event
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// SessionCompleted is the payload of TypeSessionCompleted
type SessionCompleted struct {
	SessionID      string            `json:"session_id"`
	OwnerKind      models.OwnerKind  `json:"owner_kind"`
	OwnerID        string            `json:"owner_id"`
	ProblemID      string            `json:"problem_id"`
	Difficulty     models.Difficulty `json:"difficulty"`
	Score          int               `json:"score"`
	MaxScore       int               `json:"max_score"`
	Correct        int               `json:"correct"`
	Missed         int               `json:"missed"`
	FalsePositives int               `json:"false_positives"`
	ElapsedSeconds int               `json:"elapsed_seconds"`
}

// BadgeAwarded is the payload of TypeBadgeAwarded
type BadgeAwarded struct {
	OwnerKind models.OwnerKind `json:"owner_kind"`
	OwnerID   string           `json:"owner_id"`
	BadgeID   string           `json:"badge_id"`
	Name      string           `json:"name"`
	EarnedAt  time.Time        `json:"earned_at"`
}

// Publisher delivers events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher
func (NopPublisher) Close() error { return nil }
