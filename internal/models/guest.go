package models

import "time"

// GuestRecord is the ephemeral state of an anonymous player.
// It is owned exclusively by a guest store.
type GuestRecord struct {
	Handle       string    `json:"guest_id"`
	Nickname     string    `json:"nickname"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActive   time.Time `json:"last_active"`
	Stats        Stats     `json:"stats"`
	Achievements []Award   `json:"achievements"`
}

// IsExpired reports whether the record is past its expiry at now.
// Access is allowed up to and including the expiry instant.
func (g *GuestRecord) IsExpired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// HeldBadges returns the ids of achievements already earned
func (g *GuestRecord) HeldBadges() map[string]bool {
	held := make(map[string]bool, len(g.Achievements))
	for _, a := range g.Achievements {
		held[a.BadgeID] = true
	}
	return held
}

// Clone returns a deep copy safe to hand to callers
func (g *GuestRecord) Clone() *GuestRecord {
	c := *g
	if g.Stats.CategoryCompleted != nil {
		c.Stats.CategoryCompleted = make(map[string]int, len(g.Stats.CategoryCompleted))
		for k, v := range g.Stats.CategoryCompleted {
			c.Stats.CategoryCompleted[k] = v
		}
	}
	if g.Stats.FastestCompletion != nil {
		v := *g.Stats.FastestCompletion
		c.Stats.FastestCompletion = &v
	}
	c.Achievements = append([]Award(nil), g.Achievements...)
	return &c
}

// GuestProfile is the public view of a guest record
type GuestProfile struct {
	Handle             string     `json:"guest_id"`
	Nickname           string     `json:"nickname"`
	CreatedAt          time.Time  `json:"created_at"`
	ExpiresAt          time.Time  `json:"expires_at"`
	SessionsPlayed     int        `json:"sessions_played"`
	TotalScore         int        `json:"total_score"`
	BestScore          int        `json:"best_score"`
	BugsFound          int        `json:"bugs_found"`
	TimePlayed         int        `json:"time_played"`
	FavoriteDifficulty Difficulty `json:"favorite_difficulty"`
	Achievements       []Award    `json:"achievements"`
}

// Profile builds the public profile of g
func (g *GuestRecord) Profile() *GuestProfile {
	achievements := g.Achievements
	if achievements == nil {
		achievements = []Award{}
	}
	return &GuestProfile{
		Handle:             g.Handle,
		Nickname:           g.Nickname,
		CreatedAt:          g.CreatedAt,
		ExpiresAt:          g.ExpiresAt,
		SessionsPlayed:     g.Stats.SessionsPlayed,
		TotalScore:         g.Stats.TotalScore,
		BestScore:          g.Stats.BestScore,
		BugsFound:          g.Stats.BugsFound,
		TimePlayed:         g.Stats.TimePlayed,
		FavoriteDifficulty: g.Stats.FavoriteDifficulty,
		Achievements:       achievements,
	}
}

// CreateGuestRequest represents a request to start a guest identity
type CreateGuestRequest struct {
	Nickname string `json:"nickname,omitempty"`
}

// CreateGuestResponse is returned after a guest identity is created
type CreateGuestResponse struct {
	Handle    string    `json:"guest_id"`
	Nickname  string    `json:"nickname"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

// UpdateGuestRequest carries optional guest mutations
type UpdateGuestRequest struct {
	Nickname   *string `json:"nickname,omitempty"`
	Score      *int    `json:"score,omitempty"`
	BugsFound  *int    `json:"bugs_found,omitempty"`
	TimePlayed *int    `json:"time_played,omitempty"`
	Difficulty *string `json:"difficulty,omitempty"`
}
