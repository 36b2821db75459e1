package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terra-clan/code-review-quest/internal/config"
	"github.com/terra-clan/code-review-quest/internal/storage"
)

// MigrateResult is the json output of the migrate command.
type MigrateResult struct {
	Applied []string `json:"applied"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var dsn, dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		Long: `Apply every pending migrations/*.sql file in name order.

The SQLite backend needs no migrations; its schema is applied on open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dsn == "" {
				dsn = cfg.Database.DSN
			}
			if dir == "" {
				dir = cfg.Database.MigrationsDir
			}

			applied, err := storage.MigrateFromDSN(cmd.Context(), dsn, dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				if applied == nil {
					applied = []string{}
				}
				return json.NewEncoder(out).Encode(MigrateResult{Applied: applied})
			}
			if len(applied) == 0 {
				fmt.Fprintln(out, "database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(out, "applied %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (default DATABASE_DSN)")
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (default DATABASE_MIGRATIONS_DIR)")

	return cmd
}
