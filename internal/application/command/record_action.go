package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTION COMMAND
// One user action: bump its raw counter, award its XP, count the day towards
// the streak, then advance the matching achievements.
// Callers must hold the user's lock.
// ══════════════════════════════════════════════════════════════════════════════

// ActionKind defines the type of action being recorded.
type ActionKind string

const (
	// ActionLessonCompleted - a lesson was finished with a score.
	ActionLessonCompleted ActionKind = "lesson_completed"

	// ActionArtworkCreated - an artwork was created.
	ActionArtworkCreated ActionKind = "artwork_created"

	// ActionArtworkShared - an artwork was shared.
	ActionArtworkShared ActionKind = "artwork_shared"

	// ActionChallengePlayed - the user took part in a challenge.
	ActionChallengePlayed ActionKind = "challenge_played"
)

// ParseActionKind parses an action name.
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case ActionLessonCompleted, ActionArtworkCreated, ActionArtworkShared, ActionChallengePlayed:
		return k, nil
	default:
		return "", shared.Invalid("command", "ParseActionKind", fmt.Sprintf("unknown action %q", s))
	}
}

// RecordActionCommand contains the data to record an action.
type RecordActionCommand struct {
	// UserID - owner of the record.
	UserID shared.UserID

	// Kind - what happened.
	Kind ActionKind

	// RefID - lesson, artwork, or challenge id.
	RefID string

	// Score - lesson score in [0, 100]. Lessons only.
	Score int

	// Won - challenge outcome. Challenges only.
	Won bool

	// At - when it happened. Defaults to now if zero.
	At time.Time
}

// Validate validates the command.
func (c RecordActionCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.Invalid("command", "RecordAction", "user id is required")
	}
	if strings.TrimSpace(c.RefID) == "" {
		return shared.Invalid("command", "RecordAction", fmt.Sprintf("%s: reference id is required", c.Kind))
	}
	if _, err := ParseActionKind(string(c.Kind)); err != nil {
		return err
	}
	if c.Kind == ActionLessonCompleted && (c.Score < 0 || c.Score > progression.MaxLessonScore) {
		return shared.Invalid("command", "RecordAction", "score must be between 0 and 100")
	}
	return nil
}

// ActionResult contains the result of recording an action.
type ActionResult struct {
	// Kind - what was recorded.
	Kind ActionKind `json:"kind"`

	// XPAwarded - XP for the action itself, unlock rewards excluded.
	XPAwarded int `json:"xp_awarded"`

	// Level - level after the action and any unlocks.
	Level shared.Level `json:"level"`

	// TotalXP - lifetime XP after the action and any unlocks.
	TotalXP shared.XP `json:"total_xp"`

	// LevelUps - crossings caused by the action XP.
	LevelUps []progression.LevelUp `json:"level_ups"`

	// StreakDays - streak after the action.
	StreakDays int `json:"streak_days"`

	// Unlocked - achievements that newly unlocked, streak ones first.
	Unlocked []achievement.Definition `json:"unlocked"`

	// Warnings - low-severity failures that did not abort the action.
	Warnings []string `json:"warnings,omitempty"`
}

// actionPlan is what one action kind does to the record.
type actionPlan struct {
	xp         int
	source     string
	stats      []string
	categories []achievement.Category
}

func (h *RecordActionHandler) plan(cmd RecordActionCommand) (actionPlan, error) {
	switch cmd.Kind {
	case ActionLessonCompleted:
		xp, err := h.rewards.LessonXP(cmd.Score)
		if err != nil {
			return actionPlan{}, err
		}
		return actionPlan{
			xp:         xp,
			source:     progression.SourceLesson,
			stats:      []string{progression.StatLessonsCompleted},
			categories: []achievement.Category{achievement.CategorySkill},
		}, nil
	case ActionArtworkCreated:
		return actionPlan{
			xp:         h.rewards.Artwork,
			source:     progression.SourceArtwork,
			stats:      []string{progression.StatArtworksCreated},
			categories: []achievement.Category{achievement.CategoryCreativity},
		}, nil
	case ActionArtworkShared:
		return actionPlan{
			xp:         h.rewards.Share,
			source:     progression.SourceShare,
			stats:      []string{progression.StatArtworksShared},
			categories: []achievement.Category{achievement.CategorySocial},
		}, nil
	case ActionChallengePlayed:
		p := actionPlan{
			xp:         h.rewards.ChallengeXP(cmd.Won),
			source:     progression.SourceChallenge,
			stats:      []string{progression.StatChallengesPlayed},
			categories: []achievement.Category{achievement.CategorySocial},
		}
		if cmd.Won {
			p.stats = append(p.stats, progression.StatChallengesWon)
			p.categories = append(p.categories, achievement.CategoryMilestone)
		}
		return p, nil
	default:
		return actionPlan{}, shared.Invalid("command", "RecordAction", fmt.Sprintf("unknown action %q", cmd.Kind))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActionHandler handles the RecordActionCommand.
type RecordActionHandler struct {
	ledger    *progression.Ledger
	evaluator *EvaluateAchievementsHandler
	streaks   *RecordActivityHandler
	publisher shared.EventPublisher
	reporter  shared.ErrorReporter
	rewards   progression.Rewards
	clock     timeutil.Clock
	logger    *slog.Logger
}

// RecordActionHandlerConfig contains configuration for the handler.
type RecordActionHandlerConfig struct {
	Rewards progression.Rewards
	Clock   timeutil.Clock
	Logger  *slog.Logger
}

// NewRecordActionHandler creates a new RecordActionHandler.
func NewRecordActionHandler(
	ledger *progression.Ledger,
	evaluator *EvaluateAchievementsHandler,
	streaks *RecordActivityHandler,
	publisher shared.EventPublisher,
	reporter shared.ErrorReporter,
	config RecordActionHandlerConfig,
) *RecordActionHandler {
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Rewards == (progression.Rewards{}) {
		config.Rewards = progression.DefaultRewards()
	}
	if reporter == nil {
		reporter = shared.NopReporter{}
	}
	return &RecordActionHandler{
		ledger:    ledger,
		evaluator: evaluator,
		streaks:   streaks,
		publisher: publisher,
		reporter:  reporter,
		rewards:   config.Rewards,
		clock:     config.Clock,
		logger:    config.Logger.With("component", "actions"),
	}
}

// Handle executes the record action command.
//
// A missing profile is a precondition failure. Stat increments, streak
// problems, and achievement checks are low severity: they are reported and
// the action still succeeds. Only the XP write itself can fail the action.
func (h *RecordActionHandler) Handle(ctx context.Context, cmd RecordActionCommand) (*ActionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	plan, err := h.plan(cmd)
	if err != nil {
		return nil, err
	}

	at := cmd.At
	if at.IsZero() {
		at = h.clock.Now()
	}

	if _, err := h.requireProfile(ctx, cmd.UserID); err != nil {
		return nil, err
	}

	result := &ActionResult{Kind: cmd.Kind, Unlocked: []achievement.Definition{}}

	// Raw counters
	for _, stat := range plan.stats {
		if _, err := h.ledger.IncrementStat(ctx, cmd.UserID, stat); err != nil {
			h.lowSeverity(ctx, result, cmd, "increment_stat", err, "stat", stat)
		}
	}

	// XP and streak in one write
	rec, err := h.requireProfile(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	next := rec.Clone()

	xp, err := progression.ApplyXP(next.Level, next.XP, plan.xp)
	if err != nil {
		return nil, err
	}
	next.Level = xp.Level
	next.XP = xp.TotalXP

	streak, streakErr := progression.AdvanceStreak(next.StreakDays, next.LongestStreak, next.LastActivityDate, at)
	if streakErr != nil {
		h.lowSeverity(ctx, result, cmd, "record_activity", streakErr, "at", at)
	} else if streak.Changed {
		streak.Apply(next)
	}

	if err := h.ledger.Save(ctx, next, h.clock.Now()); err != nil {
		h.reporter.Report(ctx, shared.NewErrorReport(string(cmd.Kind), cmd.UserID, shared.SeverityMedium, err).
			With("ref_id", cmd.RefID).
			With("xp", plan.xp))
		return nil, err
	}

	result.XPAwarded = xp.Gained
	result.LevelUps = xp.LevelUps
	result.StreakDays = next.StreakDays
	result.Level = next.Level
	result.TotalXP = next.XP

	shared.PublishAll(ctx, h.publisher, progression.XPEvents(cmd.UserID, xp, plan.source, at)...)

	// Streak achievements track the absolute day count
	unlocked, err := h.streaks.EvaluateStreak(ctx, cmd.UserID, next.StreakDays)
	result.Unlocked = append(result.Unlocked, unlocked...)
	if err != nil {
		h.lowSeverity(ctx, result, cmd, "check_streak_achievements", err)
	}

	// Category achievements advance by one per action
	for _, cat := range plan.categories {
		res, err := h.evaluator.Handle(ctx, EvaluateAchievementsCommand{UserID: cmd.UserID, Category: cat, Delta: 1})
		if res != nil {
			result.Unlocked = append(result.Unlocked, res.Unlocked...)
		}
		if err != nil {
			h.lowSeverity(ctx, result, cmd, "check_achievements", err, "category", cat)
		}
	}

	if len(result.Unlocked) > 0 {
		if final, err := h.ledger.Load(ctx, cmd.UserID); err == nil {
			result.Level = final.Level
			result.TotalXP = final.XP
		}
	}

	h.logger.Info("action recorded",
		"user_id", cmd.UserID,
		"action", cmd.Kind,
		"ref_id", cmd.RefID,
		"xp", result.XPAwarded,
		"unlocked", len(result.Unlocked),
	)

	return result, nil
}

// requireProfile loads the record and turns a missing user into a
// precondition failure. Store failures are reported here.
func (h *RecordActionHandler) requireProfile(ctx context.Context, userID shared.UserID) (*progression.Record, error) {
	rec, err := h.ledger.Load(ctx, userID)
	switch {
	case err == nil:
		return rec, nil
	case shared.IsNotFound(err):
		return nil, shared.WrapError("command", "RecordAction", shared.ErrPrecondition, "no active profile", shared.ErrNoActiveProfile)
	case shared.IsPersistence(err):
		h.reporter.Report(ctx, shared.NewErrorReport("load_record", userID, shared.SeverityMedium, err))
	}
	return nil, err
}

func (h *RecordActionHandler) lowSeverity(ctx context.Context, result *ActionResult, cmd RecordActionCommand, op string, err error, kv ...any) {
	report := shared.NewErrorReport(op, cmd.UserID, shared.SeverityLow, err).
		With("action", string(cmd.Kind)).
		With("ref_id", cmd.RefID)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			report = report.With(key, kv[i+1])
		}
	}
	h.reporter.Report(ctx, report)
	h.logger.Warn("non-critical step failed", append([]any{"user_id", cmd.UserID, "operation", op, "error", err}, kv...)...)
	result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", op, err))
}
