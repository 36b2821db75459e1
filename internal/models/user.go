package models

// UserProfile is the durable profile of an authenticated player
type UserProfile struct {
	UserID       string  `json:"user_id"`
	Stats        Stats   `json:"stats"`
	AverageScore float64 `json:"average_score"`
	AccuracyRate float64 `json:"accuracy_rate"`
	Badges       []Award `json:"badges"`
	RecentScores []int   `json:"recent_scores"`
}

// LeaderboardEntry is one ranked user
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	UserID     string `json:"user_id"`
	TotalScore int    `json:"score"`
	Sessions   int    `json:"sessions"`
	BestScore  int    `json:"best_score"`
}
