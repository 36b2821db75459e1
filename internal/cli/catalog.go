package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/terra-clan/code-review-quest/internal/catalog"
	"github.com/terra-clan/code-review-quest/internal/models"
)

// ValidationResult holds catalog validation results.
type ValidationResult struct {
	Valid  bool                `json:"valid"`
	Stats  models.CatalogStats `json:"stats"`
	Badges int                 `json:"badges"`
	Errors []string            `json:"errors,omitempty"`
}

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect problem catalogs",
	}
	cmd.AddCommand(newCatalogValidateCommand(rootOpts))
	return cmd
}

func newCatalogValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalog-dir>",
		Short: "Check every problem and badge file in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogValidate(rootOpts, args[0], cmd.OutOrStdout())
		},
	}
}

func runCatalogValidate(opts *RootOptions, dir string, out io.Writer) error {
	loader := catalog.NewLoader()
	if err := loader.LoadFromDir(dir); err != nil {
		return err
	}

	result := ValidationResult{
		Stats:  loader.Stats(),
		Badges: len(loader.Badges()),
	}
	for _, f := range loader.Failures() {
		result.Errors = append(result.Errors, f.Error())
	}
	result.Valid = len(result.Errors) == 0

	if opts.Format == "json" {
		if err := json.NewEncoder(out).Encode(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%d problems, %d badges\n", result.Stats.Total, result.Badges)
		for _, d := range models.Difficulties {
			fmt.Fprintf(out, "  %-13s %d\n", d, result.Stats.ByDifficulty[d])
		}
		for _, e := range result.Errors {
			fmt.Fprintf(out, "error: %s\n", e)
		}
	}

	if !result.Valid {
		return fmt.Errorf("%d catalog file(s) failed validation", len(result.Errors))
	}
	return nil
}
