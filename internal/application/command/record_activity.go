package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Counts a day of activity towards the streak and then sets streak
// achievements to the absolute day count. Callers must hold the user's lock.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand contains the data to record a day of activity.
type RecordActivityCommand struct {
	// UserID - owner of the record.
	UserID shared.UserID

	// Today - when the activity happened. Defaults to now if zero.
	Today time.Time
}

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.Invalid("command", "RecordActivity", "user id is required")
	}
	return nil
}

// RecordActivityResult contains the result of recording an activity.
type RecordActivityResult struct {
	// Streak - the streak after the activity.
	Streak progression.StreakUpdate

	// PreviousStreak - the streak before the activity.
	PreviousStreak int

	// Unlocked - streak achievements that newly unlocked.
	Unlocked []achievement.Definition

	// Record - the record after the streak write.
	Record *progression.Record
}

// StreakBroken reports whether a gap reset the streak.
func (r *RecordActivityResult) StreakBroken() bool {
	return r.Streak.Reset
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityHandler handles the RecordActivityCommand.
type RecordActivityHandler struct {
	ledger    *progression.Ledger
	evaluator *EvaluateAchievementsHandler
	clock     timeutil.Clock
	logger    *slog.Logger
}

// NewRecordActivityHandler creates a new RecordActivityHandler.
func NewRecordActivityHandler(
	ledger *progression.Ledger,
	evaluator *EvaluateAchievementsHandler,
	clock timeutil.Clock,
	logger *slog.Logger,
) *RecordActivityHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordActivityHandler{
		ledger:    ledger,
		evaluator: evaluator,
		clock:     clock,
		logger:    logger.With("component", "streak"),
	}
}

// Handle executes the record activity command. A day earlier than the last
// recorded one is rejected with ErrInvalidTimestamp and nothing is written.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	today := cmd.Today
	if today.IsZero() {
		today = h.clock.Now()
	} else {
		today = today.In(timeutil.Location(h.clock))
	}

	rec, err := h.ledger.Load(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	update, err := progression.AdvanceStreak(rec.StreakDays, rec.LongestStreak, rec.LastActivityDate, today)
	if err != nil {
		return nil, err
	}

	result := &RecordActivityResult{
		Streak:         update,
		PreviousStreak: rec.StreakDays,
		Unlocked:       []achievement.Definition{},
		Record:         rec,
	}

	if update.Changed {
		next := rec.Clone()
		update.Apply(next)
		if err := h.ledger.Save(ctx, next, h.clock.Now()); err != nil {
			return nil, err
		}
		result.Record = next

		h.logger.Debug("streak updated",
			"user_id", cmd.UserID,
			"streak_days", update.StreakDays,
			"reset", update.Reset,
		)
	}

	unlocked, err := h.EvaluateStreak(ctx, cmd.UserID, update.StreakDays)
	result.Unlocked = unlocked
	if err != nil {
		return result, err
	}
	return result, nil
}

// EvaluateStreak sets streak achievements to min(days, threshold).
func (h *RecordActivityHandler) EvaluateStreak(ctx context.Context, userID shared.UserID, days int) ([]achievement.Definition, error) {
	if days <= 0 {
		return []achievement.Definition{}, nil
	}
	res, err := h.evaluator.Handle(ctx, EvaluateAchievementsCommand{
		UserID:   userID,
		Category: achievement.CategoryStreak,
		Delta:    days,
	})
	if res == nil {
		return []achievement.Definition{}, err
	}
	return res.Unlocked, err
}
