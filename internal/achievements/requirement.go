package achievements

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/terra-clan/code-review-quest/internal/models"
)

// ErrUnknownRequirement is returned when a badge names a requirement the engine cannot check
var ErrUnknownRequirement = errors.New("unknown requirement")

// ErrInvalidThreshold is returned for negative thresholds
var ErrInvalidThreshold = errors.New("invalid requirement threshold")

// Requirement names as they appear in badge definitions
const (
	NameBugsFound           = "bugs_found"
	NamePerfectScores       = "perfect_scores"
	NameSessionsCompleted   = "challenges_completed"
	NameAdvancedCompleted   = "advanced_completed"
	NameFastestCompletion   = "fastest_completion"
	NameTotalScore          = "total_score"
	categoryCompletedSuffix = "_problems_completed"
)

// Requirement is one typed predicate over aggregated stats.
// The set of variants is closed.
type Requirement interface {
	Name() string
	requirement()
}

// BugsFound holds once at least Min defects were correctly identified overall
type BugsFound struct{ Min int }

// PerfectScores holds once at least Min sessions scored the maximum
type PerfectScores struct{ Min int }

// SessionsCompleted holds once at least Min sessions were completed
type SessionsCompleted struct{ Min int }

// CategoryCompleted holds once at least Min sessions of Category were completed
type CategoryCompleted struct {
	Category string
	Min      int
}

// AdvancedCompleted holds once at least Min advanced sessions were completed
type AdvancedCompleted struct{ Min int }

// FastestCompletion holds if some completed session took at most MaxSeconds.
// It never holds before the first completion.
type FastestCompletion struct{ MaxSeconds int }

// TotalScore holds once the accumulated score reaches Min
type TotalScore struct{ Min int }

func (BugsFound) Name() string         { return NameBugsFound }
func (PerfectScores) Name() string     { return NamePerfectScores }
func (SessionsCompleted) Name() string { return NameSessionsCompleted }
func (AdvancedCompleted) Name() string { return NameAdvancedCompleted }
func (FastestCompletion) Name() string { return NameFastestCompletion }
func (TotalScore) Name() string        { return NameTotalScore }
func (r CategoryCompleted) Name() string {
	return r.Category + categoryCompletedSuffix
}

func (BugsFound) requirement()         {}
func (PerfectScores) requirement()     {}
func (SessionsCompleted) requirement() {}
func (CategoryCompleted) requirement() {}
func (AdvancedCompleted) requirement() {}
func (FastestCompletion) requirement() {}
func (TotalScore) requirement()        {}

// Satisfied evaluates a single requirement against stats
func Satisfied(req Requirement, stats models.Stats) bool {
	switch r := req.(type) {
	case BugsFound:
		return stats.BugsFound >= r.Min
	case PerfectScores:
		return stats.PerfectScores >= r.Min
	case SessionsCompleted:
		return stats.SessionsPlayed >= r.Min
	case CategoryCompleted:
		return stats.CategoryCompleted[r.Category] >= r.Min
	case AdvancedCompleted:
		return stats.AdvancedCompleted >= r.Min
	case FastestCompletion:
		return stats.FastestCompletion != nil && *stats.FastestCompletion <= r.MaxSeconds
	case TotalScore:
		return stats.TotalScore >= r.Min
	default:
		return false
	}
}

// SatisfiedAll reports whether every requirement holds. An empty list never holds.
func SatisfiedAll(reqs []Requirement, stats models.Stats) bool {
	if len(reqs) == 0 {
		return false
	}
	for _, r := range reqs {
		if !Satisfied(r, stats) {
			return false
		}
	}
	return true
}

// ParseRequirements converts a badge's name → threshold mapping into typed
// requirements, ordered by name.
func ParseRequirements(raw map[string]int) ([]Requirement, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	reqs := make([]Requirement, 0, len(raw))
	for _, name := range names {
		threshold := raw[name]
		if threshold < 0 {
			return nil, fmt.Errorf("%w: %s = %d", ErrInvalidThreshold, name, threshold)
		}

		req, err := parseRequirement(name, threshold)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func parseRequirement(name string, threshold int) (Requirement, error) {
	switch name {
	case NameBugsFound:
		return BugsFound{Min: threshold}, nil
	case NamePerfectScores:
		return PerfectScores{Min: threshold}, nil
	case NameSessionsCompleted:
		return SessionsCompleted{Min: threshold}, nil
	case NameAdvancedCompleted:
		return AdvancedCompleted{Min: threshold}, nil
	case NameFastestCompletion:
		return FastestCompletion{MaxSeconds: threshold}, nil
	case NameTotalScore:
		return TotalScore{Min: threshold}, nil
	}

	if category, ok := strings.CutSuffix(name, categoryCompletedSuffix); ok && category != "" {
		return CategoryCompleted{Category: category, Min: threshold}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRequirement, name)
}
