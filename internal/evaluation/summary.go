package evaluation

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/terra-clan/code-review-quest/internal/models"
)

// Rating is a qualitative band over the score percentage
type Rating string

const (
	RatingExcellent          Rating = "excellent"
	RatingGood               Rating = "good"
	RatingKeepPracticing     Rating = "keep practicing"
	RatingRoomForImprovement Rating = "room for improvement"
)

// RatingFor maps a percentage to its band; lower bounds are inclusive
func RatingFor(percentage float64) Rating {
	switch {
	case percentage >= 90:
		return RatingExcellent
	case percentage >= 70:
		return RatingGood
	case percentage >= 50:
		return RatingKeepPracticing
	default:
		return RatingRoomForImprovement
	}
}

var titleCaser = cases.Title(language.English)

// typeLabel turns a defect type such as "off_by_one" into "Off By One"
func typeLabel(t string) string {
	t = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(t))
	if t == "" {
		return "Other"
	}
	return titleCaser.String(t)
}

type typeTally struct {
	label string
	found int
	total int
}

// Summarize renders the human-readable report for a result
func Summarize(defects []models.Defect, r *Result) string {
	found := make(map[int]bool, len(r.Correct))
	for _, line := range r.Correct {
		found[line] = true
	}

	tallies := make(map[string]*typeTally)
	for _, d := range defects {
		label := typeLabel(d.Type)
		t, ok := tallies[label]
		if !ok {
			t = &typeTally{label: label}
			tallies[label] = t
		}
		t.total++
		if found[d.Line] {
			t.found++
		}
	}
	ordered := make([]*typeTally, 0, len(tallies))
	for _, t := range tallies {
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].label < ordered[j].label })

	var b strings.Builder
	b.WriteString("Analysis Results\n")
	fmt.Fprintf(&b, "Correct defects found: %d/%d\n", len(r.Correct), len(r.Correct)+len(r.Missed))
	fmt.Fprintf(&b, "Missed defects: %d\n", len(r.Missed))
	fmt.Fprintf(&b, "False positives: %d\n", len(r.FalsePositives))

	b.WriteString("\nDefects by type:\n")
	if len(ordered) == 0 {
		b.WriteString("- none\n")
	}
	for _, t := range ordered {
		fmt.Fprintf(&b, "- %s: %d/%d found\n", t.label, t.found, t.total)
	}

	b.WriteString("\nScore breakdown:\n")
	fmt.Fprintf(&b, "- Correct points: %d (%d x %d)\n", r.CorrectPoints, len(r.Correct), r.PointsPerDefect)
	fmt.Fprintf(&b, "- Penalty: -%d (%d x %d)\n", r.Penalty, len(r.FalsePositives), FalsePositivePenalty)
	fmt.Fprintf(&b, "- Final score: %d/%d (%.0f%%)\n", r.Score, r.MaxScore, r.Percentage())

	fmt.Fprintf(&b, "\nRating: %s", r.Rating)
	return b.String()
}
