package progression

import (
	"time"

	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// Consecutive calendar days with at least one recorded activity.
// ══════════════════════════════════════════════════════════════════════════════

// StreakUpdate is the outcome of AdvanceStreak.
type StreakUpdate struct {
	// StreakDays - current run after the activity.
	StreakDays int

	// LongestStreak - best run after the activity.
	LongestStreak int

	// LastActivityDate - start of today's calendar day.
	LastActivityDate time.Time

	// Changed - false when today was already counted.
	Changed bool

	// Reset - true when a gap broke the previous run.
	Reset bool
}

// AdvanceStreak applies an activity on today to a streak. Same day is a
// no-op, the following day extends the run, and any gap restarts it at 1.
// A day earlier than last is rejected and the state is left unchanged.
func AdvanceStreak(streak, longest int, last *time.Time, today time.Time) (StreakUpdate, error) {
	day := timeutil.StartOfDay(today)
	longest = max(longest, streak)

	if last == nil || last.IsZero() {
		return StreakUpdate{
			StreakDays:       1,
			LongestStreak:    max(longest, 1),
			LastActivityDate: day,
			Changed:          true,
		}, nil
	}

	diff := timeutil.DaysBetween(*last, day)
	switch {
	case diff < 0:
		return StreakUpdate{StreakDays: streak, LongestStreak: longest, LastActivityDate: *last},
			shared.ErrInvalidTimestamp
	case diff == 0:
		return StreakUpdate{StreakDays: streak, LongestStreak: longest, LastActivityDate: *last}, nil
	case diff == 1:
		streak++
		return StreakUpdate{
			StreakDays:       streak,
			LongestStreak:    max(longest, streak),
			LastActivityDate: day,
			Changed:          true,
		}, nil
	default:
		return StreakUpdate{
			StreakDays:       1,
			LongestStreak:    max(longest, 1),
			LastActivityDate: day,
			Changed:          true,
			Reset:            true,
		}, nil
	}
}

// Apply copies the update onto a record.
func (u StreakUpdate) Apply(r *Record) {
	r.StreakDays = u.StreakDays
	r.LongestStreak = u.LongestStreak
	day := u.LastActivityDate
	r.LastActivityDate = &day
}

// ─────────────────────────────────────────────────────────────────────────────
// Read-model helpers
// ─────────────────────────────────────────────────────────────────────────────

// IsStreakBroken reports whether the run can no longer be extended because
// yesterday was skipped.
func IsStreakBroken(last *time.Time, now time.Time) bool {
	if last == nil {
		return false
	}
	return timeutil.DaysBetween(*last, now) > 1
}

// DaysUntilStreakBreaks returns 2 if the user was active today, 1 if they
// must be active today, 0 if the run is already gone.
func DaysUntilStreakBreaks(streak int, last *time.Time, now time.Time) int {
	if last == nil || streak == 0 {
		return 0
	}
	switch timeutil.DaysBetween(*last, now) {
	case 0:
		return 2
	case 1:
		return 1
	default:
		return 0
	}
}

// EffectiveStreak is the streak as seen today: zero once broken, even though
// the stored value is only reset by the next activity.
func EffectiveStreak(streak int, last *time.Time, now time.Time) int {
	if IsStreakBroken(last, now) {
		return 0
	}
	return streak
}
