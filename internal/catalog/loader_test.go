package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/code-review-quest/internal/models"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const sampleProblem = `id: sample
title: Sample
difficulty: beginner
category: logic
code: |
  a = 1
  b = 0
  print(a / b)
bugs:
  - line: 3
    type: division_by_zero
    severity: high
    description: divides by zero
`

func TestLoadCatalogFromDir(t *testing.T) {
	problemsDir := filepath.Join("..", "..", "problems")
	if _, err := os.Stat(problemsDir); os.IsNotExist(err) {
		t.Skip("problems directory not found, skipping")
	}

	loader := NewLoader()
	require.NoError(t, loader.LoadFromDir(problemsDir))
	assert.Empty(t, loader.Failures())

	assert.GreaterOrEqual(t, len(loader.List()), 4)

	lookup := loader.GetProblem("user-lookup")
	require.NotNil(t, lookup)
	assert.Equal(t, models.DifficultyIntermediate, lookup.Difficulty)
	assert.Len(t, lookup.Defects, 3)

	token := loader.GetProblem("token-check")
	require.NotNil(t, token, "json problems are loaded")
	assert.Equal(t, []int{1, 5, 7}, token.DefectLines())

	stats := loader.Stats()
	assert.Equal(t, len(loader.List()), stats.Total)
	assert.GreaterOrEqual(t, stats.ByCategory["security"], 2)

	ids := make(map[string]bool)
	for _, b := range loader.Badges() {
		ids[b.ID] = true
	}
	assert.True(t, ids["sharp_eye"], "badges.yaml replaces the defaults")
	assert.True(t, ids["first_session"])
}

func TestLoadFromDir_RecordsFailuresAndContinues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.yaml", sampleProblem)
	writeFile(t, dir, "bad-difficulty.yaml", `id: bad
title: Bad
difficulty: impossible
code: "x = 1"
`)
	writeFile(t, dir, "bad-line.yml", `id: bad-line
title: Bad line
difficulty: beginner
code: "x = 1"
bugs:
  - line: 4
    type: logic
`)
	writeFile(t, dir, "broken.json", `{"id": `)

	loader := NewLoader()
	require.NoError(t, loader.LoadFromDir(dir))

	assert.NotNil(t, loader.GetProblem("sample"))
	assert.Nil(t, loader.GetProblem("bad"))
	assert.Nil(t, loader.GetProblem("bad-line"))
	assert.Len(t, loader.Failures(), 3)
}

func TestLoadFromDir_MissingDir(t *testing.T) {
	err := NewLoader().LoadFromDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *models.Problem {
		return &models.Problem{
			ID:         "p",
			Title:      "P",
			Difficulty: models.DifficultyBeginner,
			Code:       "a\nb\nc\n",
			Defects:    []models.Defect{{Line: 1}, {Line: 3}},
		}
	}

	p := valid()
	require.NoError(t, Validate(p))
	assert.Equal(t, DefaultCategory, p.Category)

	p = valid()
	p.Defects = append(p.Defects, models.Defect{Line: 1})
	assert.True(t, errors.Is(Validate(p), ErrInvalidProblem))

	p = valid()
	p.Defects = []models.Defect{{Line: 0}}
	assert.True(t, errors.Is(Validate(p), ErrInvalidProblem))

	p = valid()
	p.Defects = []models.Defect{{Line: 4}}
	assert.True(t, errors.Is(Validate(p), ErrInvalidProblem))

	p = valid()
	p.ID = ""
	assert.True(t, errors.Is(Validate(p), ErrInvalidProblem))

	p = valid()
	p.Defects = nil
	assert.NoError(t, Validate(p), "a problem may have no defects")
}

func TestGetProblemsByDifficulty(t *testing.T) {
	loader := NewLoader()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, loader.Add(&models.Problem{ID: id, Title: id, Difficulty: models.DifficultyBeginner, Code: "x"}))
	}
	require.NoError(t, loader.Add(&models.Problem{ID: "z", Title: "z", Difficulty: models.DifficultyAdvanced, Code: "x"}))

	beginner := loader.GetProblems(models.DifficultyBeginner)
	require.Len(t, beginner, 3)
	assert.Equal(t, "a", beginner[0].ID)
	assert.Equal(t, "c", beginner[2].ID)

	assert.Empty(t, loader.GetProblems(models.DifficultyIntermediate))

	stats := loader.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 0, stats.ByDifficulty[models.DifficultyIntermediate])
	assert.Equal(t, 1, stats.ByDifficulty[models.DifficultyAdvanced])

	assert.Error(t, loader.Add(&models.Problem{ID: "a", Title: "dup", Difficulty: models.DifficultyBeginner, Code: "x"}))
}

func TestBadges(t *testing.T) {
	loader := NewLoader()
	assert.NotEmpty(t, loader.Badges(), "defaults are present before loading")

	dir := t.TempDir()
	writeFile(t, dir, "badges.yaml", `badges:
  - id: only
    name: Only
    requirements:
      bugs_found: 2
`)
	require.NoError(t, loader.LoadFromDir(dir))

	badges := loader.Badges()
	require.Len(t, badges, 1)
	assert.Equal(t, models.ScopeAny, badges[0].Scope)

	writeFile(t, dir, "badges.yaml", `badges:
  - id: empty
    name: Empty
`)
	assert.Error(t, loader.LoadBadgesFromFile(filepath.Join(dir, "badges.yaml")))
	assert.Len(t, loader.Badges(), 1, "a rejected file keeps the previous set")
}
