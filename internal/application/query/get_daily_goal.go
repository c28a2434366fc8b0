package query

import (
	"context"

	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DAILY GOAL QUERY
// Adaptive XP target: lifetime average per day, stretched and clamped.
// ══════════════════════════════════════════════════════════════════════════════

// GetDailyGoalQuery contains the query parameters.
type GetDailyGoalQuery struct {
	UserID shared.UserID
}

// DailyGoalDTO is the daily goal.
type DailyGoalDTO struct {
	// Goal - XP target for today.
	Goal int `json:"goal"`

	// AverageXPPerDay - lifetime XP divided by account age in days.
	AverageXPPerDay float64 `json:"average_xp_per_day"`

	// AccountAgeDays - days since creation, at least 1.
	AccountAgeDays int `json:"account_age_days"`
}

// GetDailyGoalHandler handles the query.
type GetDailyGoalHandler struct {
	ledger *progression.Ledger
	policy progression.GoalPolicy
	clock  timeutil.Clock
}

// NewGetDailyGoalHandler creates a new handler.
func NewGetDailyGoalHandler(ledger *progression.Ledger, policy progression.GoalPolicy, clock timeutil.Clock) *GetDailyGoalHandler {
	if policy == (progression.GoalPolicy{}) {
		policy = progression.DefaultGoalPolicy()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &GetDailyGoalHandler{ledger: ledger, policy: policy, clock: clock}
}

// Handle executes the query.
func (h *GetDailyGoalHandler) Handle(ctx context.Context, q GetDailyGoalQuery) (*DailyGoalDTO, error) {
	if !q.UserID.IsValid() {
		return nil, shared.Invalid("query", "GetDailyGoal", "user id is required")
	}

	rec, err := loadProfile(ctx, h.ledger, q.UserID, "GetDailyGoal")
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	days := max(1, timeutil.DaysSince(rec.CreatedAt, now))
	return &DailyGoalDTO{
		Goal:            progression.DailyXPGoal(rec, now, h.policy),
		AverageXPPerDay: float64(rec.XP.Int()) / float64(days),
		AccountAgeDays:  days,
	}, nil
}
