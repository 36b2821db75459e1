package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/terra-clan/code-review-quest/internal/models"
)

var titleCaser = cases.Title(language.English)

var bestPractices = map[string][]string{
	"runtime_error": {
		"Validate input parameters",
		"Handle edge cases such as empty collections and nil values",
		"Return errors instead of failing silently",
	},
	"logic": {
		"Write unit tests for boundary conditions",
		"Use clear variable names",
		"Break complex logic into smaller functions",
	},
	"security": {
		"Never trust user input",
		"Use parameterized queries for database operations",
		"Follow the principle of least privilege",
	},
	"resource_management": {
		"Close resources explicitly",
		"Release resources on every error path",
		"Monitor resource usage in production",
	},
	"concurrency": {
		"Guard shared state with a lock or confine it to one goroutine",
		"Avoid shared mutable state when possible",
		"Run concurrent tests with the race detector",
	},
}

var defaultPractices = []string{
	"Write clean, readable code",
	"Test thoroughly",
}

func label(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

// BestPractices returns the advice shown for a problem category
func BestPractices(category string) []string {
	key := strings.TrimSuffix(category, "_error")
	if p, ok := bestPractices[category]; ok {
		return p
	}
	if p, ok := bestPractices[key]; ok {
		return p
	}
	return defaultPractices
}

// Explain renders a markdown walkthrough of every defect in p
func Explain(p *models.Problem) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Problem: %s\n", p.Title)
	fmt.Fprintf(&b, "**Difficulty:** %s\n", label(string(p.Difficulty)))
	fmt.Fprintf(&b, "**Category:** %s\n", label(p.Category))
	if p.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", p.Description)
	}

	b.WriteString("\n## Bug Analysis\n")
	for i, d := range p.Defects {
		fmt.Fprintf(&b, "\n### Bug #%d - Line %d\n", i+1, d.Line)
		fmt.Fprintf(&b, "**Type:** %s\n", label(d.Type))
		if d.Severity != "" {
			fmt.Fprintf(&b, "**Severity:** %s\n", label(d.Severity))
		}
		fmt.Fprintf(&b, "**Description:** %s\n", d.Description)
		if d.Explanation != "" {
			fmt.Fprintf(&b, "**Explanation:** %s\n", d.Explanation)
		}
		if d.FixSuggestion != "" {
			fmt.Fprintf(&b, "**Fix Suggestion:** %s\n", d.FixSuggestion)
		}
	}

	if len(p.LearningObjectives) > 0 {
		b.WriteString("\n## Learning Objectives\n")
		for _, o := range p.LearningObjectives {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}

	b.WriteString("\n## Best Practices\n")
	for _, practice := range BestPractices(p.Category) {
		fmt.Fprintf(&b, "- %s\n", practice)
	}

	return b.String()
}
