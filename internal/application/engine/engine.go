// Package engine exposes the progression engine to callers: the HTTP
// interface, the CLI, and embedding applications. One Engine is constructed
// at startup and shared; it holds no per-user state of its own, every
// mutation goes through the identity store under the user's lock.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/artloop/progression-engine/internal/application/command"
	"github.com/artloop/progression-engine/internal/application/query"
	"github.com/artloop/progression-engine/internal/application/saga"
	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// Notifier is the event fan-out the engine publishes to and lets callers
// subscribe to.
type Notifier interface {
	shared.EventPublisher
	Subscribe(handler shared.EventHandler) (unsubscribe func())
}

// Config wires an Engine.
type Config struct {
	// Store - identity store. Required.
	Store progression.Store

	// Locker - per-user serialization. Required.
	Locker progression.Locker

	// Notifier - event fan-out. Required.
	Notifier Notifier

	// Catalog - achievement definitions. Defaults to the built-in catalog.
	// The engine seals it.
	Catalog *achievement.Catalog

	// Celebrator - unlock feedback. Optional.
	Celebrator progression.Celebrator

	// Reporter - structured failure reports. Optional.
	Reporter shared.ErrorReporter

	// Clock - time source. Defaults to the system clock.
	Clock timeutil.Clock

	// Logger - structured logger. Defaults to slog.Default().
	Logger *slog.Logger

	// Rewards - XP per action. Defaults to progression.DefaultRewards().
	Rewards progression.Rewards

	// GoalPolicy - daily goal shape. Defaults to progression.DefaultGoalPolicy().
	GoalPolicy progression.GoalPolicy

	// StoreTimeout - bound on each identity-store call.
	StoreTimeout time.Duration

	// UnlockAttempts - attempts for the unlock write.
	UnlockAttempts int
}

// Engine is the progression and achievement engine.
type Engine struct {
	catalog  *achievement.Catalog
	ledger   *progression.Ledger
	locker   progression.Locker
	notifier Notifier
	reporter shared.ErrorReporter
	clock    timeutil.Clock
	logger   *slog.Logger

	evaluate     *command.EvaluateAchievementsHandler
	activity     *command.RecordActivityHandler
	actions      *command.RecordActionHandler
	achievements *query.GetAchievementProgressHandler
	goals        *query.GetDailyGoalHandler
	cards        *query.GetProgressionHandler
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("engine: store is required")
	case cfg.Locker == nil:
		return nil, errors.New("engine: locker is required")
	case cfg.Notifier == nil:
		return nil, errors.New("engine: notifier is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = achievement.DefaultCatalog()
	}
	cfg.Catalog.Seal()
	if cfg.Clock == nil {
		cfg.Clock = timeutil.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Reporter == nil {
		cfg.Reporter = shared.NopReporter{}
	}
	if cfg.Rewards == (progression.Rewards{}) {
		cfg.Rewards = progression.DefaultRewards()
	}
	if err := cfg.Rewards.Validate(); err != nil {
		return nil, err
	}

	ledger := progression.NewLedger(cfg.Store, cfg.StoreTimeout)

	unlock := saga.NewUnlockFlow(ledger, cfg.Notifier, cfg.Celebrator, cfg.Reporter, saga.UnlockFlowConfig{
		PersistAttempts: cfg.UnlockAttempts,
		Clock:           cfg.Clock,
		Logger:          cfg.Logger,
	})
	evaluate := command.NewEvaluateAchievementsHandler(cfg.Catalog, ledger, unlock, cfg.Notifier, cfg.Clock, cfg.Logger)
	activity := command.NewRecordActivityHandler(ledger, evaluate, cfg.Clock, cfg.Logger)
	actions := command.NewRecordActionHandler(ledger, evaluate, activity, cfg.Notifier, cfg.Reporter, command.RecordActionHandlerConfig{
		Rewards: cfg.Rewards,
		Clock:   cfg.Clock,
		Logger:  cfg.Logger,
	})

	return &Engine{
		catalog:      cfg.Catalog,
		ledger:       ledger,
		locker:       cfg.Locker,
		notifier:     cfg.Notifier,
		reporter:     cfg.Reporter,
		clock:        cfg.Clock,
		logger:       cfg.Logger.With("component", "engine"),
		evaluate:     evaluate,
		activity:     activity,
		actions:      actions,
		achievements: query.NewGetAchievementProgressHandler(cfg.Catalog, ledger),
		goals:        query.NewGetDailyGoalHandler(ledger, cfg.GoalPolicy, cfg.Clock),
		cards:        query.NewGetProgressionHandler(cfg.Catalog, ledger, cfg.Clock),
	}, nil
}

// Location returns the location calendar days are counted in.
func (e *Engine) Location() *time.Location {
	return timeutil.Location(e.clock)
}

// Catalog returns the sealed achievement catalog.
func (e *Engine) Catalog() *achievement.Catalog {
	return e.catalog
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

// CreateUser seeds a progression record at level 1.
func (e *Engine) CreateUser(ctx context.Context, userID string) (*progression.Record, error) {
	uid, err := shared.NewUserID(userID)
	if err != nil {
		return nil, err
	}

	var rec *progression.Record
	err = e.withUserLock(ctx, uid, func(ctx context.Context) error {
		rec = progression.NewRecord(uid, e.clock.Now())
		return e.ledger.Create(ctx, rec)
	})
	if err != nil {
		return nil, e.surface(ctx, "create_user", uid, err)
	}

	e.logger.Info("user created", "user_id", uid)
	return rec, nil
}

// GetProgression returns the level, XP, and streak card of a user.
func (e *Engine) GetProgression(ctx context.Context, userID string) (*query.ProgressionDTO, error) {
	uid, err := shared.NewUserID(userID)
	if err != nil {
		return nil, err
	}
	dto, err := e.cards.Handle(ctx, query.GetProgressionQuery{UserID: uid})
	if err != nil {
		return nil, e.surface(ctx, "get_progression", uid, err)
	}
	return dto, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// RecordLessonCompletion records a lesson finished with score in [0, 100].
func (e *Engine) RecordLessonCompletion(ctx context.Context, userID, lessonID string, score int) (*command.ActionResult, error) {
	return e.recordAction(ctx, userID, command.RecordActionCommand{
		Kind:  command.ActionLessonCompleted,
		RefID: lessonID,
		Score: score,
	})
}

// RecordArtworkCreation records a new artwork.
func (e *Engine) RecordArtworkCreation(ctx context.Context, userID, artworkID string) (*command.ActionResult, error) {
	return e.recordAction(ctx, userID, command.RecordActionCommand{
		Kind:  command.ActionArtworkCreated,
		RefID: artworkID,
	})
}

// RecordArtworkShared records a shared artwork.
func (e *Engine) RecordArtworkShared(ctx context.Context, userID, artworkID string) (*command.ActionResult, error) {
	return e.recordAction(ctx, userID, command.RecordActionCommand{
		Kind:  command.ActionArtworkShared,
		RefID: artworkID,
	})
}

// RecordChallengeParticipation records taking part in a challenge.
func (e *Engine) RecordChallengeParticipation(ctx context.Context, userID, challengeID string, won bool) (*command.ActionResult, error) {
	return e.recordAction(ctx, userID, command.RecordActionCommand{
		Kind:  command.ActionChallengePlayed,
		RefID: challengeID,
		Won:   won,
	})
}

// RecordAction records any action kind. Used by generic transports.
func (e *Engine) RecordAction(ctx context.Context, userID string, cmd command.RecordActionCommand) (*command.ActionResult, error) {
	return e.recordAction(ctx, userID, cmd)
}

func (e *Engine) recordAction(ctx context.Context, userID string, cmd command.RecordActionCommand) (*command.ActionResult, error) {
	uid, err := shared.NewUserID(userID)
	if err != nil {
		return nil, err
	}
	cmd.UserID = uid
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *command.ActionResult
	err = e.withUserLock(ctx, uid, func(ctx context.Context) error {
		var err error
		result, err = e.actions.Handle(ctx, cmd)
		return err
	})
	if err != nil {
		// The action handler reports its own write failures.
		return nil, e.logFailure(string(cmd.Kind), uid, err)
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS & STREAK
// ══════════════════════════════════════════════════════════════════════════════

// CheckAchievements advances a category by delta and returns the
// achievements that newly unlocked. For the streak category delta is the
// current day count.
func (e *Engine) CheckAchievements(ctx context.Context, userID string, category achievement.Category, delta int) ([]achievement.Definition, error) {
	uid, err := shared.NewUserID(userID)
	if err != nil {
		return nil, err
	}
	cmd := command.EvaluateAchievementsCommand{UserID: uid, Category: category, Delta: delta}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var unlocked []achievement.Definition
	err = e.withUserLock(ctx, uid, func(ctx context.Context) error {
		res, err := e.evaluate.Handle(ctx, cmd)
		if res != nil {
			unlocked = res.Unlocked
		}
		return requireProfile(err)
	})
	if err != nil {
		return unlocked, e.surface(ctx, "check_achievements", uid, err)
	}
	return unlocked, nil
}

// RecordActivity counts today towards the streak and evaluates the streak
// achievements.
func (e *Engine) RecordActivity(ctx context.Context, userID string, today time.Time) (*command.RecordActivityResult, error) {
	uid, err := shared.NewUserID(userID)
	if err != nil {
		return nil, err
	}

	var result *command.RecordActivityResult
	err = e.withUserLock(ctx, uid, func(ctx context.Context) error {
		var err error
		result, err = e.activity.Handle(ctx, command.RecordActivityCommand{UserID: uid, Today: today})
		return requireProfile(err)
	})
	if err != nil {
		return result, e.surface(ctx, "record_activity", uid, err)
	}
	return result, nil
}

// GetAchievementProgress summarizes every catalog entry for a user.
func (e *Engine) GetAchievementProgress(ctx context.Context, userID string) (*query.AchievementProgressDTO, error) {
	uid, err := shared.NewUserID(userID)
	if err != nil {
		return nil, err
	}
	dto, err := e.achievements.Handle(ctx, query.GetAchievementProgressQuery{UserID: uid})
	if err != nil {
		return nil, e.surface(ctx, "get_achievement_progress", uid, err)
	}
	return dto, nil
}

// CalculateDailyXPGoal returns today's adaptive XP target.
func (e *Engine) CalculateDailyXPGoal(ctx context.Context, userID string) (int, error) {
	dto, err := e.DailyGoal(ctx, userID)
	if err != nil {
		return 0, err
	}
	return dto.Goal, nil
}

// DailyGoal returns the daily goal with the average it was derived from.
func (e *Engine) DailyGoal(ctx context.Context, userID string) (*query.DailyGoalDTO, error) {
	uid, err := shared.NewUserID(userID)
	if err != nil {
		return nil, err
	}
	dto, err := e.goals.Handle(ctx, query.GetDailyGoalQuery{UserID: uid})
	if err != nil {
		return nil, e.surface(ctx, "daily_goal", uid, err)
	}
	return dto, nil
}

// SubscribeToProgress registers a handler for every progression event.
// Handlers run synchronously in subscription order. The returned function
// removes the handler and is safe to call more than once.
func (e *Engine) SubscribeToProgress(handler shared.EventHandler) (unsubscribe func()) {
	return e.notifier.Subscribe(handler)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// withUserLock runs fn while holding the user's lock.
func (e *Engine) withUserLock(ctx context.Context, uid shared.UserID, fn func(ctx context.Context) error) error {
	unlock, err := e.locker.Lock(ctx, progression.LockKey(uid))
	if err != nil {
		if shared.IsPersistence(err) {
			return err
		}
		return shared.WrapError("engine", "Lock", shared.ErrPersistence, "user lock unavailable", err)
	}
	defer unlock()
	return fn(ctx)
}

// requireProfile maps a missing user to the no-active-profile precondition.
func requireProfile(err error) error {
	if err != nil && shared.IsNotFound(err) && !shared.IsPrecondition(err) {
		return shared.WrapError("engine", "RequireProfile", shared.ErrPrecondition, "no active profile", shared.ErrNoActiveProfile)
	}
	return err
}

// surface logs a failure and reports storage failures. Failed unlocks are
// already reported by the unlock flow at high severity.
func (e *Engine) surface(ctx context.Context, op string, uid shared.UserID, err error) error {
	if err == nil {
		return nil
	}

	var flowErr *saga.UnlockFlowError
	switch {
	case errors.As(err, &flowErr) && flowErr.Step == saga.StepPersist:
	case shared.IsPersistence(err):
		e.reporter.Report(ctx, shared.NewErrorReport(op, uid, shared.SeverityMedium, err))
	}
	return e.logFailure(op, uid, err)
}

func (e *Engine) logFailure(op string, uid shared.UserID, err error) error {
	if shared.IsPersistence(err) {
		e.logger.Error("operation failed", "operation", op, "user_id", uid, "error", err)
	} else {
		e.logger.Debug("operation rejected", "operation", op, "user_id", uid, "error", err)
	}
	return err
}
