// Package progression contains the Progression bounded context: the per-user
// record owned by the identity store, the leveling and streak math applied to
// it, and the events emitted when it changes.
package progression

import (
	"maps"
	"time"

	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record is the gamification state of one user. The identity store owns it;
// the engine changes it only through read-modify-write on a clone.
type Record struct {
	// UserID - owner of the record.
	UserID shared.UserID `json:"user_id"`

	// Level - always equal to LevelForXP(XP) once any XP has been applied.
	Level shared.Level `json:"level"`

	// XP - lifetime total.
	XP shared.XP `json:"xp"`

	// StreakDays - current run of consecutive active days.
	StreakDays int `json:"streak_days"`

	// LongestStreak - best run ever, never below StreakDays.
	LongestStreak int `json:"longest_streak"`

	// LastActivityDate - calendar day of the last recorded activity, nil if none.
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`

	// Achievements - per-achievement state keyed by definition id.
	Achievements map[string]achievement.State `json:"achievements"`

	// Stats - raw counters such as lessons_completed.
	Stats map[string]int `json:"stats"`

	// CreatedAt - account creation, used for the daily goal average.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt - last successful write.
	UpdatedAt time.Time `json:"updated_at"`

	// Version - bumped by the store on every write. Writes carrying a stale
	// version are rejected.
	Version int64 `json:"version"`
}

// NewRecord seeds a record at level 1 with no XP and no streak.
func NewRecord(userID shared.UserID, now time.Time) *Record {
	now = now.UTC()
	return &Record{
		UserID:       userID,
		Level:        shared.MinLevel,
		XP:           shared.MinXP,
		Achievements: make(map[string]achievement.State),
		Stats:        make(map[string]int),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy that can be mutated without touching r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.LastActivityDate != nil {
		d := *r.LastActivityDate
		c.LastActivityDate = &d
	}
	c.Achievements = make(map[string]achievement.State, len(r.Achievements))
	for id, st := range r.Achievements {
		if st.UnlockedAt != nil {
			at := *st.UnlockedAt
			st.UnlockedAt = &at
		}
		c.Achievements[id] = st
	}
	c.Stats = maps.Clone(r.Stats)
	if c.Stats == nil {
		c.Stats = make(map[string]int)
	}
	return &c
}

// AchievementState returns the stored state or a zero-progress default.
func (r *Record) AchievementState(id string) achievement.State {
	if st, ok := r.Achievements[id]; ok {
		return st
	}
	return achievement.ZeroState(id)
}

// SetAchievementState stores st under its id.
func (r *Record) SetAchievementState(st achievement.State) {
	if r.Achievements == nil {
		r.Achievements = make(map[string]achievement.State)
	}
	r.Achievements[st.ID] = st
}

// Stat returns a raw counter, zero when absent.
func (r *Record) Stat(name string) int {
	return r.Stats[name]
}

// Validate checks the record invariants.
func (r *Record) Validate() error {
	switch {
	case !r.UserID.IsValid():
		return shared.Invalid("progression", "Validate", "invalid user id")
	case !r.Level.IsValid():
		return shared.ErrInvalidLevel
	case !r.XP.IsValid():
		return shared.ErrInvalidXP
	case r.StreakDays < 0 || r.LongestStreak < r.StreakDays:
		return shared.Invalid("progression", "Validate", "longest streak must be at least the current streak")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Stat names
// ─────────────────────────────────────────────────────────────────────────────

// Raw counters kept through the identity store.
const (
	StatLessonsCompleted = "lessons_completed"
	StatArtworksCreated  = "artworks_created"
	StatArtworksShared   = "artworks_shared"
	StatChallengesPlayed = "challenges_played"
	StatChallengesWon    = "challenges_won"
)
