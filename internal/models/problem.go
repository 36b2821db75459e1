package models

import "fmt"

// Difficulty is one of a fixed, ordered set of problem levels
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Difficulties lists every difficulty in ascending order
var Difficulties = []Difficulty{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}

// IsValid reports whether d is a known difficulty
func (d Difficulty) IsValid() bool {
	return d.Rank() >= 0
}

// Rank returns the position of d in the ordered set, or -1 if unknown
func (d Difficulty) Rank() int {
	for i, known := range Difficulties {
		if d == known {
			return i
		}
	}
	return -1
}

// ParseDifficulty validates a raw difficulty string
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(s)
	if !d.IsValid() {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}

// Defect is one canonical bug in a problem's code
type Defect struct {
	Line          int    `yaml:"line" json:"line"`
	Type          string `yaml:"type" json:"type"`
	Severity      string `yaml:"severity" json:"severity"`
	Description   string `yaml:"description" json:"description"`
	Explanation   string `yaml:"explanation" json:"explanation"`
	FixSuggestion string `yaml:"fix_suggestion" json:"fix_suggestion"`
}

// Problem is an immutable catalog entry
type Problem struct {
	ID                 string     `yaml:"id" json:"id"`
	Title              string     `yaml:"title" json:"title"`
	Description        string     `yaml:"description" json:"description"`
	Difficulty         Difficulty `yaml:"difficulty" json:"difficulty"`
	Category           string     `yaml:"category" json:"category"`
	Language           string     `yaml:"language" json:"language,omitempty"`
	Code               string     `yaml:"code" json:"code"`
	Defects            []Defect   `yaml:"bugs" json:"bugs"`
	LearningObjectives []string   `yaml:"learning_objectives" json:"learning_objectives,omitempty"`
}

// DefectLines returns the canonical defect positions in catalog order
func (p *Problem) DefectLines() []int {
	lines := make([]int, 0, len(p.Defects))
	for _, d := range p.Defects {
		lines = append(lines, d.Line)
	}
	return lines
}

// Public strips the defect set so the problem can be shown to a player
// before they have submitted.
func (p *Problem) Public() *PublicProblem {
	return &PublicProblem{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Difficulty:  p.Difficulty,
		Category:    p.Category,
		Language:    p.Language,
		Code:        p.Code,
		DefectCount: len(p.Defects),
	}
}

// PublicProblem is the player-facing view of a problem
type PublicProblem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
	Category    string     `json:"category"`
	Language    string     `json:"language,omitempty"`
	Code        string     `json:"code"`
	DefectCount int        `json:"defect_count"`
}

// CatalogStats summarizes the loaded catalog
type CatalogStats struct {
	Total        int                `json:"total"`
	ByDifficulty map[Difficulty]int `json:"by_difficulty"`
	ByCategory   map[string]int     `json:"by_category"`
}
