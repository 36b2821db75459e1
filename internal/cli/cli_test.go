package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/code-review-quest/internal/identity"
)

const validProblem = `id: sum
title: Sum
difficulty: intermediate
category: logic
code: |
  def total(xs):
      s = 0
      for x in xs:
          s = x
      return s
bugs:
  - line: 4
    type: logic_error
    description: overwrites instead of adding
`

const brokenProblem = `id: broken
title: Broken
difficulty: impossible
code: "x = 1"
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeCatalog(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestCatalogValidate_Text(t *testing.T) {
	dir := writeCatalog(t, map[string]string{"sum.yaml": validProblem})

	out, err := execute(t, "catalog", "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 problems")
	assert.Contains(t, out, "intermediate")
	assert.NotContains(t, out, "error:")
}

func TestCatalogValidate_JSONWithFailures(t *testing.T) {
	dir := writeCatalog(t, map[string]string{
		"sum.yaml":    validProblem,
		"broken.yaml": brokenProblem,
	})

	out, err := execute(t, "--format", "json", "catalog", "validate", dir)
	require.Error(t, err)

	var result ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Valid)
	assert.Equal(t, 1, result.Stats.Total)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "broken.yaml")
}

func TestCatalogValidate_MissingDir(t *testing.T) {
	_, err := execute(t, "catalog", "validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestCatalogValidate_ShippedCatalog(t *testing.T) {
	_, err := execute(t, "catalog", "validate", filepath.Join("..", "..", "problems"))
	require.NoError(t, err)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "yaml", "catalog", "validate", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestToken(t *testing.T) {
	out, err := execute(t, "token", "--secret", "s3cret", "--ttl", "1h", "alice")
	require.NoError(t, err)

	userID, ok := identity.NewJWTVerifier("s3cret").Verify(context.Background(), strings.TrimSpace(out))
	require.True(t, ok)
	assert.Equal(t, "alice", userID)
}

func TestToken_RequiresSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	_, err := execute(t, "token", "alice")
	require.Error(t, err)
}
