package achievement

import (
	"time"

	"github.com/artloop/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PER-USER STATE
// ══════════════════════════════════════════════════════════════════════════════

// State is one user's progress towards one achievement. It is created lazily
// on the first progress event and never deleted.
type State struct {
	// ID - definition id.
	ID string `json:"id"`

	// Progress - in [0, MaxProgress], never decreases.
	Progress int `json:"progress"`

	// UnlockedAt - set exactly when Progress reaches MaxProgress, then frozen.
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// ZeroState is the default state for an achievement the user has never touched.
func ZeroState(id string) State {
	return State{ID: id}
}

// IsUnlocked reports whether the terminal state has been reached.
func (s State) IsUnlocked() bool {
	return s.UnlockedAt != nil
}

// Status classifies the state for progress summaries.
type Status string

const (
	StatusLocked     Status = "locked"
	StatusInProgress Status = "in_progress"
	StatusUnlocked   Status = "unlocked"
)

// Status returns the summary bucket of the state.
func (s State) Status() Status {
	switch {
	case s.IsUnlocked():
		return StatusUnlocked
	case s.Progress > 0:
		return StatusInProgress
	default:
		return StatusLocked
	}
}

// Fraction returns progress as a ratio in [0, 1].
func (s State) Fraction(def Definition) float64 {
	if def.MaxProgress <= 0 {
		return 0
	}
	return float64(s.Progress) / float64(def.MaxProgress)
}

// ─────────────────────────────────────────────────────────────────────────────
// Transitions
// ─────────────────────────────────────────────────────────────────────────────

// Step is the outcome of applying progress to a state.
type Step struct {
	// Next - the state after the step.
	Next State

	// Changed - false when the step was a no-op.
	Changed bool

	// Crossed - true when Next.Progress reached MaxProgress. The caller must
	// hand the definition to the unlock path instead of persisting Next.
	Crossed bool
}

// Advance adds delta to the progress, clamped to MaxProgress.
// Unlocked states never move. delta must be positive.
func (s State) Advance(def Definition, delta int) (Step, error) {
	if delta <= 0 {
		return Step{}, shared.ErrInvalidDelta
	}
	return s.moveTo(def, s.Progress+delta), nil
}

// Reach sets the progress to an absolute value, clamped to MaxProgress.
// Lower values than the current progress are ignored, so the state stays
// monotonic.
func (s State) Reach(def Definition, value int) Step {
	return s.moveTo(def, value)
}

func (s State) moveTo(def Definition, target int) Step {
	if s.ID == "" {
		s.ID = def.ID
	}
	if s.IsUnlocked() {
		return Step{Next: s}
	}
	target = min(target, def.MaxProgress)
	if target <= s.Progress {
		return Step{Next: s}
	}
	next := s
	next.Progress = target
	return Step{Next: next, Changed: true, Crossed: target >= def.MaxProgress}
}

// Unlocked returns the terminal state for def stamped at the given time.
func (s State) Unlocked(def Definition, at time.Time) (State, error) {
	if s.IsUnlocked() {
		return s, shared.ErrAchievementUnlocked
	}
	stamp := at.UTC()
	return State{ID: def.ID, Progress: def.MaxProgress, UnlockedAt: &stamp}, nil
}

// Check verifies the state invariants against its definition.
func (s State) Check(def Definition) error {
	if s.Progress < 0 || s.Progress > def.MaxProgress {
		return shared.ErrInvalidProgressState
	}
	if s.IsUnlocked() != (s.Progress == def.MaxProgress) {
		return shared.ErrInvalidProgressState
	}
	return nil
}
