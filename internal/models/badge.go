package models

import "time"

// BadgeScope limits which identity kinds a badge applies to
type BadgeScope string

const (
	ScopeAny   BadgeScope = "any"
	ScopeUser  BadgeScope = "user"
	ScopeGuest BadgeScope = "guest"
)

// AppliesTo reports whether a badge with this scope is evaluated for kind
func (s BadgeScope) AppliesTo(kind OwnerKind) bool {
	switch s {
	case ScopeAny, "":
		return true
	case ScopeUser:
		return kind == OwnerUser
	case ScopeGuest:
		return kind == OwnerGuest
	}
	return false
}

// Badge is a named achievement definition.
// Requirements holds the raw name → threshold mapping from the catalog;
// the rule engine parses it into typed requirements.
type Badge struct {
	ID           string         `yaml:"id" json:"id"`
	Name         string         `yaml:"name" json:"name"`
	Description  string         `yaml:"description" json:"description"`
	Icon         string         `yaml:"icon" json:"icon,omitempty"`
	Category     string         `yaml:"category" json:"category,omitempty"`
	Scope        BadgeScope     `yaml:"scope" json:"scope,omitempty"`
	Requirements map[string]int `yaml:"requirements" json:"requirements"`
}

// Award binds an identity to a badge. At most one exists per (identity, badge).
type Award struct {
	BadgeID     string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	EarnedAt    time.Time `json:"earned_at"`
}

// NewAward builds an award record for b
func NewAward(b Badge, at time.Time) Award {
	return Award{
		BadgeID:     b.ID,
		Name:        b.Name,
		Description: b.Description,
		Icon:        b.Icon,
		EarnedAt:    at,
	}
}
