package query

import (
	"context"
	"maps"
	"time"

	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESSION QUERY
// Level, XP, and streak card for one user.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressionQuery contains the query parameters.
type GetProgressionQuery struct {
	UserID shared.UserID
}

// ProgressionDTO is the progression card.
type ProgressionDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Level
	// ─────────────────────────────────────────────────────────────────────────

	UserID        string  `json:"user_id"`
	Level         int     `json:"level"`
	LevelTitle    string  `json:"level_title"`
	TotalXP       int     `json:"total_xp"`
	NextLevelAt   int     `json:"next_level_at"`
	XPToNextLevel int     `json:"xp_to_next_level"`
	LevelProgress float64 `json:"level_progress"`

	// ─────────────────────────────────────────────────────────────────────────
	// Streak
	// ─────────────────────────────────────────────────────────────────────────

	StreakDays            int        `json:"streak_days"`
	LongestStreak         int        `json:"longest_streak"`
	StreakAtRisk          bool       `json:"streak_at_risk"`
	DaysUntilStreakBreaks int        `json:"days_until_streak_breaks"`
	LastActivityDate      *time.Time `json:"last_activity_date,omitempty"`

	// ─────────────────────────────────────────────────────────────────────────
	// Counters
	// ─────────────────────────────────────────────────────────────────────────

	AchievementsUnlocked int            `json:"achievements_unlocked"`
	Stats                map[string]int `json:"stats"`
	MemberSince          time.Time      `json:"member_since"`
}

// GetProgressionHandler handles the query.
type GetProgressionHandler struct {
	catalog *achievement.Catalog
	ledger  *progression.Ledger
	clock   timeutil.Clock
}

// NewGetProgressionHandler creates a new handler.
func NewGetProgressionHandler(catalog *achievement.Catalog, ledger *progression.Ledger, clock timeutil.Clock) *GetProgressionHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &GetProgressionHandler{catalog: catalog, ledger: ledger, clock: clock}
}

// Handle executes the query.
func (h *GetProgressionHandler) Handle(ctx context.Context, q GetProgressionQuery) (*ProgressionDTO, error) {
	if !q.UserID.IsValid() {
		return nil, shared.Invalid("query", "GetProgression", "user id is required")
	}

	rec, err := loadProfile(ctx, h.ledger, q.UserID, "GetProgression")
	if err != nil {
		return nil, err
	}

	return BuildProgression(h.catalog, rec, h.clock.Now()), nil
}

// BuildProgression maps a record onto the progression card.
func BuildProgression(catalog *achievement.Catalog, rec *progression.Record, now time.Time) *ProgressionDTO {
	level := progression.LevelForXP(rec.XP)
	until := progression.DaysUntilStreakBreaks(rec.StreakDays, rec.LastActivityDate, now)

	unlocked := 0
	for def := range catalog.All() {
		if rec.AchievementState(def.ID).IsUnlocked() {
			unlocked++
		}
	}

	stats := maps.Clone(rec.Stats)
	if stats == nil {
		stats = map[string]int{}
	}

	return &ProgressionDTO{
		UserID:                rec.UserID.String(),
		Level:                 level.Int(),
		LevelTitle:            level.Title(),
		TotalXP:               rec.XP.Int(),
		NextLevelAt:           progression.XPRequiredForLevel(level).Int(),
		XPToNextLevel:         progression.XPToNextLevel(rec.XP),
		LevelProgress:         progression.LevelProgress(rec.XP),
		StreakDays:            progression.EffectiveStreak(rec.StreakDays, rec.LastActivityDate, now),
		LongestStreak:         rec.LongestStreak,
		StreakAtRisk:          until == 1,
		DaysUntilStreakBreaks: until,
		LastActivityDate:      rec.LastActivityDate,
		AchievementsUnlocked:  unlocked,
		Stats:                 stats,
		MemberSince:           rec.CreatedAt,
	}
}
