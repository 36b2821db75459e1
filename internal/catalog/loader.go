package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/code-review-quest/internal/achievements"
	"github.com/terra-clan/code-review-quest/internal/models"
)

// ErrInvalidProblem is returned for problem definitions that fail validation
var ErrInvalidProblem = errors.New("invalid problem")

// DefaultCategory is assigned to problems that name none
const DefaultCategory = "general"

var badgeFiles = map[string]bool{"badges.yaml": true, "badges.yml": true}

// Loader manages loading and caching of problems and badges
type Loader struct {
	mu       sync.RWMutex
	problems map[string]*models.Problem
	badges   map[string]models.Badge
	failures []error
}

// NewLoader creates a loader that starts with the built-in badge set
func NewLoader() *Loader {
	l := &Loader{
		problems: make(map[string]*models.Problem),
		badges:   make(map[string]models.Badge),
	}
	for _, b := range achievements.DefaultBadges() {
		l.badges[b.ID] = b
	}
	return l
}

// LoadFromDir loads all problem files in dir and one level of subdirectories.
// A badges.yaml file, if present, replaces the built-in badge set.
// Files that fail to load are logged and recorded in Failures.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading catalog from directory", "dir", dir)

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("failed to read catalog dir: %w", err)
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml", "*.json"} {
		for _, glob := range []string{filepath.Join(dir, pattern), filepath.Join(dir, "*", pattern)} {
			matches, err := filepath.Glob(glob)
			if err != nil {
				continue
			}
			files = append(files, matches...)
		}
	}
	sort.Strings(files)

	loaded := 0
	for _, file := range files {
		if badgeFiles[filepath.Base(file)] {
			if err := l.LoadBadgesFromFile(file); err != nil {
				l.recordFailure(file, err)
			}
			continue
		}

		if err := l.LoadFromFile(file); err != nil {
			l.recordFailure(file, err)
			continue
		}
		loaded++
	}

	slog.Info("catalog loaded", "problems", loaded, "total_files", len(files), "badges", len(l.Badges()))
	return nil
}

func (l *Loader) recordFailure(file string, err error) {
	slog.Warn("failed to load catalog file", "file", file, "error", err)
	l.mu.Lock()
	l.failures = append(l.failures, fmt.Errorf("%s: %w", file, err))
	l.mu.Unlock()
}

// Failures returns the errors collected by LoadFromDir
func (l *Loader) Failures() []error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]error(nil), l.failures...)
}

// LoadFromFile loads a single problem from a YAML or JSON file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var problem models.Problem
	if err := yaml.Unmarshal(data, &problem); err != nil {
		return fmt.Errorf("failed to parse problem: %w", err)
	}

	if err := l.Add(&problem); err != nil {
		return err
	}

	slog.Debug("problem loaded", "id", problem.ID, "difficulty", problem.Difficulty, "bugs", len(problem.Defects))
	return nil
}

// LoadBadgesFromFile replaces the badge set with the definitions in path
func (l *Loader) LoadBadgesFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var bf badgesFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return fmt.Errorf("failed to parse badges: %w", err)
	}

	badges := make(map[string]models.Badge, len(bf.Badges))
	for _, b := range bf.Badges {
		if err := achievements.ValidateBadge(b); err != nil {
			return err
		}
		if _, dup := badges[b.ID]; dup {
			return fmt.Errorf("duplicate badge id %s", b.ID)
		}
		if b.Scope == "" {
			b.Scope = models.ScopeAny
		}
		badges[b.ID] = b
	}

	l.mu.Lock()
	l.badges = badges
	l.mu.Unlock()

	slog.Info("badges loaded", "file", path, "count", len(badges))
	return nil
}

// Validate checks a problem definition and fills defaults
func Validate(p *models.Problem) error {
	if p.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidProblem)
	}
	if p.Title == "" {
		return fmt.Errorf("%w: %s: title is required", ErrInvalidProblem, p.ID)
	}
	if !p.Difficulty.IsValid() {
		return fmt.Errorf("%w: %s: unknown difficulty %q", ErrInvalidProblem, p.ID, p.Difficulty)
	}
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("%w: %s: code is required", ErrInvalidProblem, p.ID)
	}

	lineCount := strings.Count(strings.TrimRight(p.Code, "\n"), "\n") + 1
	seen := make(map[int]bool, len(p.Defects))
	for _, d := range p.Defects {
		if d.Line < 1 || d.Line > lineCount {
			return fmt.Errorf("%w: %s: bug line %d outside 1..%d", ErrInvalidProblem, p.ID, d.Line, lineCount)
		}
		if seen[d.Line] {
			return fmt.Errorf("%w: %s: duplicate bug line %d", ErrInvalidProblem, p.ID, d.Line)
		}
		seen[d.Line] = true
	}

	if p.Category == "" {
		p.Category = DefaultCategory
	}
	return nil
}

// Add validates and registers a problem
func (l *Loader) Add(p *models.Problem) error {
	if err := Validate(p); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.problems[p.ID]; exists {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidProblem, p.ID)
	}
	l.problems[p.ID] = p
	return nil
}

// AddBadge validates and registers a badge
func (l *Loader) AddBadge(b models.Badge) error {
	if err := achievements.ValidateBadge(b); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.badges[b.ID] = b
	return nil
}

// GetProblem retrieves a problem by id
func (l *Loader) GetProblem(id string) *models.Problem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.problems[id]
}

// GetProblems returns the problems of one difficulty, ordered by id
func (l *Loader) GetProblems(difficulty models.Difficulty) []*models.Problem {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*models.Problem
	for _, p := range l.problems {
		if p.Difficulty == difficulty {
			result = append(result, p)
		}
	}
	sortProblems(result)
	return result
}

// List returns all loaded problems ordered by difficulty, then id
func (l *Loader) List() []*models.Problem {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.Problem, 0, len(l.problems))
	for _, p := range l.problems {
		result = append(result, p)
	}
	sortProblems(result)
	return result
}

// Stats counts problems by difficulty and category
func (l *Loader) Stats() models.CatalogStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := models.CatalogStats{
		Total:        len(l.problems),
		ByDifficulty: make(map[models.Difficulty]int, len(models.Difficulties)),
		ByCategory:   make(map[string]int),
	}
	for _, d := range models.Difficulties {
		stats.ByDifficulty[d] = 0
	}
	for _, p := range l.problems {
		stats.ByDifficulty[p.Difficulty]++
		stats.ByCategory[p.Category]++
	}
	return stats
}

// Badges returns every badge definition ordered by id
func (l *Loader) Badges() []models.Badge {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]models.Badge, 0, len(l.badges))
	for _, b := range l.badges {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func sortProblems(problems []*models.Problem) {
	sort.Slice(problems, func(i, j int) bool {
		ri, rj := problems[i].Difficulty.Rank(), problems[j].Difficulty.Rank()
		if ri != rj {
			return ri < rj
		}
		return problems[i].ID < problems[j].ID
	})
}

// badgesFile represents the YAML structure of badges.yaml
type badgesFile struct {
	Badges []models.Badge `yaml:"badges"`
}
