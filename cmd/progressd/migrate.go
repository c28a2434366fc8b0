package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/artloop/progression-engine/config"
	"github.com/artloop/progression-engine/internal/infrastructure/persistence/postgres"
)

var errNotPostgres = errors.New("migrations require STORAGE_BACKEND=postgres")

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: c.withMigrator(func(ctx context.Context, cmd *cobra.Command, m *postgres.Migrator) error {
			n, err := m.Migrate(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"applied": n})
		}),
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether each is applied",
		Args:  cobra.NoArgs,
		RunE: c.withMigrator(func(ctx context.Context, cmd *cobra.Command, m *postgres.Migrator) error {
			migs, err := m.Status(ctx)
			if err != nil {
				return err
			}
			type row struct {
				Version int    `json:"version"`
				Name    string `json:"name"`
				Applied bool   `json:"applied"`
			}
			rows := make([]row, 0, len(migs))
			for _, mig := range migs {
				rows = append(rows, row{Version: mig.Version, Name: mig.Name, Applied: mig.IsApplied})
			}
			return printJSON(cmd, rows)
		}),
	}

	rollback := &cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recent migration",
		Args:  cobra.NoArgs,
		RunE: c.withMigrator(func(ctx context.Context, cmd *cobra.Command, m *postgres.Migrator) error {
			if err := m.Rollback(ctx); err != nil {
				return err
			}
			return printJSON(cmd, map[string]bool{"rolled_back": true})
		}),
	}

	cmd.AddCommand(status, rollback)
	return cmd
}

func (c *cli) withMigrator(fn func(context.Context, *cobra.Command, *postgres.Migrator) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if c.cfg.Storage.Backend != config.BackendPostgres {
			return errNotPostgres
		}
		return c.withApp(cmd, func(ctx context.Context, a *app) error {
			return fn(ctx, cmd, postgres.NewMigrator(a.db))
		})
	}
}
