package progression

import (
	"math"
	"time"

	"github.com/artloop/progression-engine/pkg/timeutil"
)

// GoalPolicy shapes the adaptive daily XP goal.
type GoalPolicy struct {
	// Min - lower clamp of the goal.
	Min int

	// Max - upper clamp of the goal.
	Max int

	// Multiplier - stretch applied to the lifetime daily average.
	Multiplier float64
}

// DefaultGoalPolicy returns the 50..500 clamp with a 1.2x stretch.
func DefaultGoalPolicy() GoalPolicy {
	return GoalPolicy{Min: 50, Max: 500, Multiplier: 1.2}
}

// DailyXPGoal derives today's target from the lifetime average XP per day
// since account creation, scaled by the multiplier and then clamped. An
// account younger than a day counts as one day old.
func DailyXPGoal(rec *Record, now time.Time, policy GoalPolicy) int {
	if rec == nil {
		return policy.Min
	}
	days := max(1, timeutil.DaysSince(rec.CreatedAt, now))
	avg := float64(rec.XP.Int()) / float64(days)
	goal := int(math.Round(avg * policy.Multiplier))
	return min(policy.Max, max(policy.Min, goal))
}
