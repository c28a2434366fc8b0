package progression

import (
	"github.com/artloop/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVELING
// Linear curve: every level spans XPPerLevel points of lifetime XP.
// ══════════════════════════════════════════════════════════════════════════════

// XPPerLevel is the width of one level.
const XPPerLevel = 1000

// XPRequiredForLevel returns the lifetime XP at which level is left.
// Level 1 ends at 1000, level 2 at 2000.
func XPRequiredForLevel(level shared.Level) shared.XP {
	if level < shared.MinLevel {
		level = shared.MinLevel
	}
	return shared.XP(int(level) * XPPerLevel)
}

// LevelForXP returns the level implied by a lifetime XP total.
func LevelForXP(xp shared.XP) shared.Level {
	if xp < 0 {
		xp = 0
	}
	return shared.Level(int(xp)/XPPerLevel + 1)
}

// LevelUp describes one crossed level boundary.
type LevelUp struct {
	// Level - the level entered.
	Level shared.Level `json:"level"`

	// NextLevelAt - lifetime XP at which Level is left.
	NextLevelAt shared.XP `json:"next_level_at"`

	// XPToNextLevel - NextLevelAt minus the new total, zero for a level
	// passed through within the same award.
	XPToNextLevel int `json:"xp_to_next_level"`
}

// LevelResult is the outcome of ApplyXP.
type LevelResult struct {
	PreviousLevel shared.Level
	Level         shared.Level
	TotalXP       shared.XP
	Gained        int
	LevelUps      []LevelUp
}

// LeveledUp reports whether at least one boundary was crossed.
func (r LevelResult) LeveledUp() bool {
	return len(r.LevelUps) > 0
}

// ApplyXP adds delta to a lifetime total and returns the new level with one
// LevelUp per boundary crossed. A boundary counts as crossed once the total
// reaches it, so exactly 1000 XP is level 2. A large award crosses as many
// levels as it covers. delta must be non-negative.
func ApplyXP(level shared.Level, xp shared.XP, delta int) (LevelResult, error) {
	if delta < 0 {
		return LevelResult{}, shared.ErrInvalidXP
	}
	if !level.IsValid() {
		return LevelResult{}, shared.ErrInvalidLevel
	}
	if !xp.IsValid() {
		return LevelResult{}, shared.ErrInvalidXP
	}

	total, err := xp.Add(delta)
	if err != nil {
		return LevelResult{}, err
	}

	result := LevelResult{
		PreviousLevel: level,
		Level:         level,
		TotalXP:       total,
		Gained:        delta,
	}

	for total >= XPRequiredForLevel(result.Level) {
		result.Level++
		next := XPRequiredForLevel(result.Level)
		result.LevelUps = append(result.LevelUps, LevelUp{
			Level:         result.Level,
			NextLevelAt:   next,
			XPToNextLevel: max(0, int(next-total)),
		})
	}

	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Read-model helpers
// ─────────────────────────────────────────────────────────────────────────────

// XPToNextLevel returns how much XP is still missing to leave the level
// implied by xp.
func XPToNextLevel(xp shared.XP) int {
	return int(XPRequiredForLevel(LevelForXP(xp)) - xp)
}

// LevelProgress returns the fraction of the current level already covered.
func LevelProgress(xp shared.XP) float64 {
	if xp < 0 {
		return 0
	}
	return float64(int(xp)%XPPerLevel) / float64(XPPerLevel)
}
