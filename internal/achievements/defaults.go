package achievements

import "github.com/terra-clan/code-review-quest/internal/models"

// DefaultBadges is the built-in badge set used when the catalog ships none
func DefaultBadges() []models.Badge {
	return []models.Badge{
		{
			ID:           "first_bug",
			Name:         "First Bug Hunter",
			Description:  "Found your first bug!",
			Icon:         "🐛",
			Category:     "milestone",
			Scope:        models.ScopeAny,
			Requirements: map[string]int{NameBugsFound: 1},
		},
		{
			ID:           "perfect_score",
			Name:         "Perfect Score",
			Description:  "Achieved 100% accuracy in a challenge",
			Icon:         "🎯",
			Category:     "achievement",
			Scope:        models.ScopeAny,
			Requirements: map[string]int{NamePerfectScores: 1},
		},
		{
			ID:           "bug_master",
			Name:         "Bug Master",
			Description:  "Found 50 bugs across all challenges",
			Icon:         "🏆",
			Category:     "milestone",
			Scope:        models.ScopeAny,
			Requirements: map[string]int{NameBugsFound: 50},
		},
		{
			ID:           "security_expert",
			Name:         "Security Expert",
			Description:  "Completed 5 security-related challenges",
			Icon:         "🔒",
			Category:     "expertise",
			Scope:        models.ScopeAny,
			Requirements: map[string]int{"security" + categoryCompletedSuffix: 5},
		},
		{
			ID:           "speed_demon",
			Name:         "Speed Demon",
			Description:  "Completed a challenge in under 2 minutes",
			Icon:         "⚡",
			Category:     "achievement",
			Scope:        models.ScopeAny,
			Requirements: map[string]int{NameFastestCompletion: 120},
		},
		{
			ID:           "persistent_learner",
			Name:         "Persistent Learner",
			Description:  "Completed 10 challenges",
			Icon:         "📚",
			Category:     "milestone",
			Scope:        models.ScopeAny,
			Requirements: map[string]int{NameSessionsCompleted: 10},
		},
		{
			ID:           "advanced_challenger",
			Name:         "Advanced Challenger",
			Description:  "Completed 3 advanced difficulty challenges",
			Icon:         "🔥",
			Category:     "difficulty",
			Scope:        models.ScopeAny,
			Requirements: map[string]int{NameAdvancedCompleted: 3},
		},

		// Guest milestones
		{
			ID:           "first_session",
			Name:         "First Steps",
			Description:  "Completed your first coding challenge as a guest",
			Category:     "guest",
			Scope:        models.ScopeGuest,
			Requirements: map[string]int{NameSessionsCompleted: 1},
		},
		{
			ID:           "score_50",
			Name:         "Getting Started",
			Description:  "Earned 50+ points as a guest",
			Category:     "guest",
			Scope:        models.ScopeGuest,
			Requirements: map[string]int{NameTotalScore: 50},
		},
		{
			ID:           "score_100",
			Name:         "Century Guest",
			Description:  "Earned 100+ points as a guest",
			Category:     "guest",
			Scope:        models.ScopeGuest,
			Requirements: map[string]int{NameTotalScore: 100},
		},
		{
			ID:           "sessions_3",
			Name:         "Getting Hooked",
			Description:  "Played 3+ sessions as a guest",
			Category:     "guest",
			Scope:        models.ScopeGuest,
			Requirements: map[string]int{NameSessionsCompleted: 3},
		},
		{
			ID:           "sessions_5",
			Name:         "Regular Guest",
			Description:  "Played 5+ sessions as a guest - time to register?",
			Category:     "guest",
			Scope:        models.ScopeGuest,
			Requirements: map[string]int{NameSessionsCompleted: 5},
		},
	}
}

// StaticSource serves a fixed badge list
type StaticSource []models.Badge

// Badges implements BadgeSource
func (s StaticSource) Badges() []models.Badge { return s }
