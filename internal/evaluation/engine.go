// Package evaluation scores a bug-hunt submission against a problem's
// canonical defect set and explains the result.
package evaluation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/terra-clan/code-review-quest/internal/models"
)

const (
	// MaxScore is the nominal score of a perfect submission
	MaxScore = 100
	// FalsePositivePenalty is deducted per reported line that is not a defect
	FalsePositivePenalty = 10
)

// ErrInvalidReport is returned for malformed submissions
var ErrInvalidReport = errors.New("invalid bug report")

// Report is one reported defect location with an optional note
type Report struct {
	Line int
	Note string
}

// FeedbackStatus classifies a feedback item
type FeedbackStatus string

const (
	StatusCorrect       FeedbackStatus = "correct"
	StatusMissed        FeedbackStatus = "missed"
	StatusFalsePositive FeedbackStatus = "false_positive"
)

// FeedbackItem explains one canonical defect or one false positive
type FeedbackItem struct {
	Line          int            `json:"line"`
	Status        FeedbackStatus `json:"status"`
	Type          string         `json:"type,omitempty"`
	Severity      string         `json:"severity,omitempty"`
	Description   string         `json:"description,omitempty"`
	Explanation   string         `json:"explanation,omitempty"`
	FixSuggestion string         `json:"fix_suggestion,omitempty"`
	Note          string         `json:"note,omitempty"`
	Points        int            `json:"points"`
}

// Result is the deterministic outcome of evaluating one submission
type Result struct {
	Score           int            `json:"score"`
	MaxScore        int            `json:"max_score"`
	PointsPerDefect int            `json:"points_per_defect"`
	CorrectPoints   int            `json:"correct_points"`
	Penalty         int            `json:"penalty"`
	Correct         []int          `json:"correct"`
	Missed          []int          `json:"missed"`
	FalsePositives  []int          `json:"false_positives"`
	Feedback        []FeedbackItem `json:"feedback"`
	Rating          Rating         `json:"rating"`
	Summary         string         `json:"summary"`
}

// Percentage returns score as a percentage of MaxScore
func (r *Result) Percentage() float64 {
	if r.MaxScore == 0 {
		return 0
	}
	return float64(r.Score) / float64(r.MaxScore) * 100
}

// Validate rejects reports that cannot name a line of code
func Validate(reports []Report) error {
	for i, r := range reports {
		if r.Line < 1 {
			return fmt.Errorf("%w: report %d has line %d, lines start at 1", ErrInvalidReport, i, r.Line)
		}
	}
	return nil
}

// PointsPerDefect is floor(MaxScore / defects). The rounding is kept as is:
// a perfect submission on a problem with 3 defects scores 99, not 100.
func PointsPerDefect(defects int) int {
	if defects <= 0 {
		return 0
	}
	return MaxScore / defects
}

// Evaluate matches reports against defects. Duplicate reports of a line
// count once; the first non-empty note for a line is kept.
func Evaluate(defects []models.Defect, reports []Report) *Result {
	canonical := make(map[int]models.Defect, len(defects))
	for _, d := range defects {
		canonical[d.Line] = d
	}

	notes := make(map[int]string, len(reports))
	reported := make(map[int]bool, len(reports))
	for _, r := range reports {
		reported[r.Line] = true
		if notes[r.Line] == "" && r.Note != "" {
			notes[r.Line] = r.Note
		}
	}

	correct := make([]int, 0)
	missed := make([]int, 0)
	falsePositives := make([]int, 0)

	for line := range canonical {
		if reported[line] {
			correct = append(correct, line)
		} else {
			missed = append(missed, line)
		}
	}
	for line := range reported {
		if _, ok := canonical[line]; !ok {
			falsePositives = append(falsePositives, line)
		}
	}
	sort.Ints(correct)
	sort.Ints(missed)
	sort.Ints(falsePositives)

	perDefect := PointsPerDefect(len(canonical))
	correctPoints := len(correct) * perDefect
	penalty := len(falsePositives) * FalsePositivePenalty
	score := correctPoints - penalty
	if score < 0 {
		score = 0
	}

	feedback := make([]FeedbackItem, 0, len(correct)+len(missed)+len(falsePositives))
	for _, line := range correct {
		d := canonical[line]
		feedback = append(feedback, FeedbackItem{
			Line:        line,
			Status:      StatusCorrect,
			Type:        d.Type,
			Severity:    d.Severity,
			Description: d.Description,
			Explanation: d.Explanation,
			Note:        notes[line],
			Points:      perDefect,
		})
	}
	for _, line := range missed {
		d := canonical[line]
		feedback = append(feedback, FeedbackItem{
			Line:          line,
			Status:        StatusMissed,
			Type:          d.Type,
			Severity:      d.Severity,
			Description:   d.Description,
			FixSuggestion: d.FixSuggestion,
		})
	}
	for _, line := range falsePositives {
		feedback = append(feedback, FeedbackItem{
			Line:   line,
			Status: StatusFalsePositive,
			Note:   notes[line],
			Points: -FalsePositivePenalty,
		})
	}

	result := &Result{
		Score:           score,
		MaxScore:        MaxScore,
		PointsPerDefect: perDefect,
		CorrectPoints:   correctPoints,
		Penalty:         penalty,
		Correct:         correct,
		Missed:          missed,
		FalsePositives:  falsePositives,
		Feedback:        feedback,
	}
	result.Rating = RatingFor(result.Percentage())
	result.Summary = Summarize(defects, result)

	return result
}
