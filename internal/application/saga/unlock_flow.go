// Package saga contains complex business processes that orchestrate
// multiple domain operations in a coordinated manner.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/retry"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK FLOW SAGA
// Flow: Load Record → Guard Not Unlocked → Mark Terminal State → Award XP →
//
//	Persist (one write, retried) → Publish Events → Celebrate
//
// The terminal state and the XP award land in the same record write, so
// there is never XP without a durable unlock or an unlock without its XP.
// Nothing after the write can undo it; later steps are best-effort.
// ══════════════════════════════════════════════════════════════════════════════

// UnlockInput contains data needed to unlock one achievement.
type UnlockInput struct {
	// UserID - owner of the record.
	UserID shared.UserID

	// Definition - the achievement that just crossed its threshold.
	Definition achievement.Definition
}

// Validate checks if the input is valid.
func (i UnlockInput) Validate() error {
	if !i.UserID.IsValid() {
		return shared.Invalid("saga", "Unlock", "user id is required")
	}
	return i.Definition.Validate()
}

// UnlockResult contains the outcome of a successful unlock.
type UnlockResult struct {
	// Definition - the unlocked achievement.
	Definition achievement.Definition

	// State - the persisted terminal state.
	State achievement.State

	// XP - leveling outcome of the reward.
	XP progression.LevelResult

	// Intensity - celebration that was triggered.
	Intensity progression.Intensity

	// Record - the record as persisted.
	Record *progression.Record

	// UnlockedAt - stamp written into the state.
	UnlockedAt time.Time
}

// UnlockStep represents a step in the unlock flow.
type UnlockStep string

const (
	StepValidate  UnlockStep = "validate"
	StepLoad      UnlockStep = "load_record"
	StepGuard     UnlockStep = "guard_unlocked"
	StepMark      UnlockStep = "mark_unlocked"
	StepAwardXP   UnlockStep = "award_xp"
	StepPersist   UnlockStep = "persist"
	StepPublish   UnlockStep = "publish_events"
	StepCelebrate UnlockStep = "celebrate"
)

// UnlockFlowError describes a failed unlock.
type UnlockFlowError struct {
	Step          UnlockStep
	UserID        shared.UserID
	AchievementID string
	Cause         error
}

func (e *UnlockFlowError) Error() string {
	return fmt.Sprintf("unlock flow failed at step '%s' for %s/%s: %v", e.Step, e.UserID, e.AchievementID, e.Cause)
}

func (e *UnlockFlowError) Unwrap() error {
	return e.Cause
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK FLOW IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UnlockFlowConfig contains configuration for the unlock flow.
type UnlockFlowConfig struct {
	// PersistAttempts - total attempts for the record write.
	PersistAttempts int

	// Clock - time source for the unlock stamp.
	Clock timeutil.Clock

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultUnlockFlowConfig returns default configuration.
func DefaultUnlockFlowConfig() UnlockFlowConfig {
	return UnlockFlowConfig{
		PersistAttempts: 3,
		Clock:           timeutil.SystemClock{},
	}
}

// UnlockFlow performs the side effects of an achievement unlock. Callers
// must hold the user's lock.
type UnlockFlow struct {
	ledger     *progression.Ledger
	publisher  shared.EventPublisher
	celebrator progression.Celebrator
	reporter   shared.ErrorReporter
	retrier    *retry.Retrier
	clock      timeutil.Clock
	logger     *slog.Logger
}

// NewUnlockFlow creates a new unlock flow with all dependencies.
func NewUnlockFlow(
	ledger *progression.Ledger,
	publisher shared.EventPublisher,
	celebrator progression.Celebrator,
	reporter shared.ErrorReporter,
	config UnlockFlowConfig,
) *UnlockFlow {
	if config.PersistAttempts <= 0 {
		config.PersistAttempts = DefaultUnlockFlowConfig().PersistAttempts
	}
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if celebrator == nil {
		celebrator = progression.NopCelebrator{}
	}
	if reporter == nil {
		reporter = shared.NopReporter{}
	}

	return &UnlockFlow{
		ledger:     ledger,
		publisher:  publisher,
		celebrator: celebrator,
		reporter:   reporter,
		retrier:    retry.StoreRetrier(config.PersistAttempts),
		clock:      config.Clock,
		logger:     config.Logger.With("component", "unlock_flow"),
	}
}

// Execute unlocks one achievement. It returns shared.ErrAchievementUnlocked
// if the achievement is already in its terminal state, and a persistence
// error if the write failed, in which case nothing was awarded or emitted.
func (f *UnlockFlow) Execute(ctx context.Context, input UnlockInput) (*UnlockResult, error) {
	def := input.Definition

	if err := input.Validate(); err != nil {
		return nil, f.wrapError(StepValidate, input, err)
	}

	// Step 1: Load the record
	rec, err := f.ledger.Load(ctx, input.UserID)
	if err != nil {
		return nil, f.wrapError(StepLoad, input, err)
	}

	// Step 2: Guard against a second unlock
	current := rec.AchievementState(def.ID)
	if current.IsUnlocked() {
		return nil, f.wrapError(StepGuard, input, shared.ErrAchievementUnlocked)
	}

	// Step 3: Mark the terminal state on a clone
	now := f.clock.Now()
	next := rec.Clone()
	terminal, err := current.Unlocked(def, now)
	if err != nil {
		return nil, f.wrapError(StepMark, input, err)
	}
	next.SetAchievementState(terminal)

	// Step 4: Award XP in the same write
	xp, err := progression.ApplyXP(next.Level, next.XP, def.XPReward)
	if err != nil {
		return nil, f.wrapError(StepAwardXP, input, err)
	}
	next.Level = xp.Level
	next.XP = xp.TotalXP

	// Step 5: Persist with best-effort retry
	if err := f.persist(ctx, next, now); err != nil {
		if !shared.IsPersistence(err) {
			err = shared.WrapError("saga", "Unlock", shared.ErrPersistence, "unlock not recorded", err)
		}
		err = f.wrapError(StepPersist, input, err)
		f.reporter.Report(ctx, shared.NewErrorReport("unlock", input.UserID, shared.SeverityHigh, err).
			With("achievement_id", def.ID).
			With("xp_reward", def.XPReward))
		return nil, err
	}

	// Step 6: Publish events
	events := []shared.Event{progression.NewAchievementUnlockedEvent(input.UserID, def, now)}
	events = append(events, progression.XPEvents(input.UserID, xp, progression.AchievementSource(def.ID), now)...)
	shared.PublishAll(ctx, f.publisher, events...)

	// Step 7: Celebrate, fire-and-forget
	intensity := progression.IntensityForRarity(def.Rarity)
	f.celebrator.Celebrate(intensity)

	f.logger.Info("achievement unlocked",
		"user_id", input.UserID,
		"achievement_id", def.ID,
		"xp_awarded", def.XPReward,
		"level", xp.Level,
		"level_ups", len(xp.LevelUps),
	)

	return &UnlockResult{
		Definition: def,
		State:      terminal,
		XP:         xp,
		Intensity:  intensity,
		Record:     next,
		UnlockedAt: now.UTC(),
	}, nil
}

// persist writes the record, retrying transient store failures. Conflicts,
// missing users, and validation errors are not retried.
func (f *UnlockFlow) persist(ctx context.Context, rec *progression.Record, now time.Time) error {
	return f.retrier.Do(ctx, func(ctx context.Context) error {
		err := f.ledger.Save(ctx, rec, now)
		switch {
		case err == nil:
			return nil
		case shared.IsConflict(err), shared.IsNotFound(err), shared.IsValidation(err), shared.IsContextError(err):
			return retry.Permanent(err)
		default:
			f.logger.Warn("unlock write failed, retrying", "user_id", rec.UserID, "error", err)
			return retry.Retryable(err)
		}
	})
}

// wrapError wraps an error with saga context. The domain kind of the cause
// stays visible to errors.Is.
func (f *UnlockFlow) wrapError(step UnlockStep, input UnlockInput, err error) error {
	var flowErr *UnlockFlowError
	if errors.As(err, &flowErr) {
		return err
	}
	return &UnlockFlowError{
		Step:          step,
		UserID:        input.UserID,
		AchievementID: input.Definition.ID,
		Cause:         err,
	}
}
