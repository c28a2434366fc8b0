package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/artloop/progression-engine/config"
	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/pkg/logger"
)

// cli carries state shared by every subcommand.
type cli struct {
	cfg      *config.Config
	log      *logger.Logger
	logLevel string
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "progressd",
		Short:         "Progression and achievement engine",
		Long:          "progressd tracks XP, levels, streaks and achievements for creative-learning users.\nConfiguration is read from the environment.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			c.cfg = cfg
			c.log = setupLogger(cfg, cmd.ErrOrStderr(), c.logLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		c.serveCmd(),
		c.migrateCmd(),
		c.createUserCmd(),
		c.recordCmd(),
		c.checkCmd(),
		c.progressCmd(),
		c.achievementsCmd(),
		c.goalCmd(),
	)
	return root
}

// withApp bootstraps the engine for one command and tears it down after.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := bootstrap(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			c.log.Warn("shutdown incomplete", logger.Err(err))
		}
	}()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <user-id>",
		Short: "Show level, XP and streak for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				dto, err := a.engine.GetProgression(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, dto)
			})
		},
	}
}

func (c *cli) goalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goal <user-id>",
		Short: "Show today's adaptive XP goal for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				dto, err := a.engine.DailyGoal(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, dto)
			})
		},
	}
}

func (c *cli) achievementsCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "achievements [user-id]",
		Short: "List the catalog, or a user's achievement progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if len(args) == 1 {
					dto, err := a.engine.GetAchievementProgress(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd, dto)
				}

				catalog := a.engine.Catalog()
				defs := slices.Collect(catalog.All())
				if category != "" {
					cat, err := achievement.ParseCategory(category)
					if err != nil {
						return err
					}
					defs = slices.Collect(catalog.ListByCategory(cat))
				}
				return printJSON(cmd, defs)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only list one category of the catalog")
	return cmd
}
