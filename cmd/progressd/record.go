package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/artloop/progression-engine/internal/application/command"
	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WRITE COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) createUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-user <user-id>",
		Short: "Seed a progression record at level 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				rec, err := a.engine.CreateUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, rec)
			})
		},
	}
}

// ensureUser creates the user unless one already exists.
func ensureUser(ctx context.Context, a *app, userID string) error {
	_, err := a.engine.CreateUser(ctx, userID)
	if err != nil && !shared.IsConflict(err) {
		return err
	}
	return nil
}

func (c *cli) recordCmd() *cobra.Command {
	var create bool
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a user action",
	}
	cmd.PersistentFlags().BoolVar(&create, "create-user", false, "create the user first if it does not exist")

	run := func(build func(args []string) command.RecordActionCommand) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if create {
					if err := ensureUser(ctx, a, args[0]); err != nil {
						return err
					}
				}
				res, err := a.engine.RecordAction(ctx, args[0], build(args))
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		}
	}

	var score int
	lesson := &cobra.Command{
		Use:   "lesson <user-id> <lesson-id>",
		Short: "Record a completed lesson",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(args []string) command.RecordActionCommand {
			return command.RecordActionCommand{Kind: command.ActionLessonCompleted, RefID: args[1], Score: score}
		}),
	}
	lesson.Flags().IntVar(&score, "score", 0, "lesson score, 0-100")

	artwork := &cobra.Command{
		Use:   "artwork <user-id> <artwork-id>",
		Short: "Record a created artwork",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(args []string) command.RecordActionCommand {
			return command.RecordActionCommand{Kind: command.ActionArtworkCreated, RefID: args[1]}
		}),
	}

	share := &cobra.Command{
		Use:   "share <user-id> <artwork-id>",
		Short: "Record a shared artwork",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(args []string) command.RecordActionCommand {
			return command.RecordActionCommand{Kind: command.ActionArtworkShared, RefID: args[1]}
		}),
	}

	var won bool
	challenge := &cobra.Command{
		Use:   "challenge <user-id> <challenge-id>",
		Short: "Record taking part in a challenge",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(args []string) command.RecordActionCommand {
			return command.RecordActionCommand{Kind: command.ActionChallengePlayed, RefID: args[1], Won: won}
		}),
	}
	challenge.Flags().BoolVar(&won, "won", false, "the user won the challenge")

	var date string
	activity := &cobra.Command{
		Use:   "activity <user-id>",
		Short: "Count a day towards the streak",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				if _, err := timeutil.ParseDate(date, nil); err != nil {
					return shared.Invalid("cli", "RecordActivity", "date must be YYYY-MM-DD")
				}
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				var day time.Time
				if date != "" {
					day, _ = timeutil.ParseDate(date, a.engine.Location())
				}
				if create {
					if err := ensureUser(ctx, a, args[0]); err != nil {
						return err
					}
				}
				res, err := a.engine.RecordActivity(ctx, args[0], day)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{
					"streak_days":    res.Streak.StreakDays,
					"longest_streak": res.Streak.LongestStreak,
					"streak_broken":  res.StreakBroken(),
					"unlocked":       res.Unlocked,
				})
			})
		},
	}
	activity.Flags().StringVar(&date, "date", "", "calendar day as YYYY-MM-DD, default today")

	cmd.AddCommand(lesson, artwork, share, challenge, activity)
	return cmd
}

func (c *cli) checkCmd() *cobra.Command {
	var delta int
	cmd := &cobra.Command{
		Use:   "check <user-id> <category>",
		Short: "Advance a category and report newly unlocked achievements",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := achievement.ParseCategory(args[1])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				unlocked, err := a.engine.CheckAchievements(ctx, args[0], cat, delta)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"unlocked": unlocked})
			})
		},
	}
	cmd.Flags().IntVar(&delta, "delta", 1, "progress to add; for streak, the current day count")
	return cmd
}
