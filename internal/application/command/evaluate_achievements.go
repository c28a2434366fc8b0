// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"log/slog"

	"github.com/artloop/progression-engine/internal/application/saga"
	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE ACHIEVEMENTS COMMAND
// Advances every achievement of a category and hands the ones that cross
// their threshold to the unlock flow. Callers must hold the user's lock.
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateAchievementsCommand contains the data to evaluate a category.
type EvaluateAchievementsCommand struct {
	// UserID - owner of the record.
	UserID shared.UserID

	// Category - which achievements to advance.
	Category achievement.Category

	// Delta - positive increment. For absolute categories (streak) it is the
	// current count itself.
	Delta int
}

// Validate validates the command.
func (c EvaluateAchievementsCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.Invalid("command", "EvaluateAchievements", "user id is required")
	}
	if !c.Category.IsValid() {
		return shared.ErrInvalidCategory
	}
	if c.Delta <= 0 {
		return shared.ErrInvalidDelta
	}
	return nil
}

// EvaluateAchievementsResult contains the outcome of an evaluation.
type EvaluateAchievementsResult struct {
	// Unlocked - achievements that newly unlocked during this call.
	Unlocked []achievement.Definition

	// Progressed - non-terminal states that were persisted.
	Progressed []achievement.State

	// Unlocks - detailed result per unlock, same order as Unlocked.
	Unlocks []*saga.UnlockResult
}

// XPAwarded sums the rewards of the unlocked achievements.
func (r *EvaluateAchievementsResult) XPAwarded() int {
	total := 0
	for _, d := range r.Unlocked {
		total += d.XPReward
	}
	return total
}

// Unlocker performs the unlock side effects for one achievement.
type Unlocker interface {
	Execute(ctx context.Context, input saga.UnlockInput) (*saga.UnlockResult, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateAchievementsHandler handles the EvaluateAchievementsCommand.
type EvaluateAchievementsHandler struct {
	catalog   *achievement.Catalog
	ledger    *progression.Ledger
	unlocker  Unlocker
	publisher shared.EventPublisher
	clock     timeutil.Clock
	logger    *slog.Logger
}

// NewEvaluateAchievementsHandler creates a new EvaluateAchievementsHandler.
func NewEvaluateAchievementsHandler(
	catalog *achievement.Catalog,
	ledger *progression.Ledger,
	unlocker Unlocker,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	logger *slog.Logger,
) *EvaluateAchievementsHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluateAchievementsHandler{
		catalog:   catalog,
		ledger:    ledger,
		unlocker:  unlocker,
		publisher: publisher,
		clock:     clock,
		logger:    logger.With("component", "evaluator"),
	}
}

// Handle executes the evaluation.
//
// Already-unlocked achievements are skipped, progress is clamped to the
// threshold, and steps that would not change progress are dropped. All
// non-terminal steps are persisted in one write before any unlock runs, and
// an achievement_progress event is emitted for each. A category with no
// definitions is a no-op.
func (h *EvaluateAchievementsHandler) Handle(ctx context.Context, cmd EvaluateAchievementsCommand) (*EvaluateAchievementsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result := &EvaluateAchievementsResult{
		Unlocked:   []achievement.Definition{},
		Progressed: []achievement.State{},
	}
	if h.catalog.CountByCategory(cmd.Category) == 0 {
		return result, nil
	}

	rec, err := h.ledger.Load(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	next := rec.Clone()
	var crossed []achievement.Definition
	var progressed []achievement.Definition

	for def := range h.catalog.ListByCategory(cmd.Category) {
		current := next.AchievementState(def.ID)

		var step achievement.Step
		if cmd.Category.IsAbsolute() {
			step = current.Reach(def, cmd.Delta)
		} else {
			step, err = current.Advance(def, cmd.Delta)
			if err != nil {
				return nil, err
			}
		}

		switch {
		case !step.Changed:
			continue
		case step.Crossed:
			crossed = append(crossed, def)
		default:
			next.SetAchievementState(step.Next)
			progressed = append(progressed, def)
			result.Progressed = append(result.Progressed, step.Next)
		}
	}

	now := h.clock.Now()
	if len(progressed) > 0 {
		if err := h.ledger.Save(ctx, next, now); err != nil {
			return nil, err
		}
		for i, def := range progressed {
			shared.PublishAll(ctx, h.publisher,
				progression.NewAchievementProgressEvent(cmd.UserID, def, result.Progressed[i].Progress, now))
		}
	}

	for _, def := range crossed {
		res, err := h.unlocker.Execute(ctx, saga.UnlockInput{UserID: cmd.UserID, Definition: def})
		if err != nil {
			if errors.Is(err, shared.ErrAchievementUnlocked) {
				h.logger.Debug("achievement already unlocked", "user_id", cmd.UserID, "achievement_id", def.ID)
				continue
			}
			return result, err
		}
		result.Unlocked = append(result.Unlocked, def)
		result.Unlocks = append(result.Unlocks, res)
	}

	return result, nil
}
