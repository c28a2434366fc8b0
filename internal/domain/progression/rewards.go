package progression

import (
	"github.com/artloop/progression-engine/internal/domain/shared"
)

// Rewards is the XP table for user actions.
type Rewards struct {
	// LessonBase - XP for finishing any lesson.
	LessonBase int

	// LessonScoreDivisor - score/divisor is added on top of LessonBase.
	LessonScoreDivisor int

	// Artwork - XP for creating an artwork.
	Artwork int

	// Share - XP for sharing an artwork.
	Share int

	// Challenge - XP for taking part in a challenge.
	Challenge int

	// ChallengeWinBonus - extra XP for winning.
	ChallengeWinBonus int
}

// DefaultRewards returns the built-in XP table.
func DefaultRewards() Rewards {
	return Rewards{
		LessonBase:         50,
		LessonScoreDivisor: 2,
		Artwork:            30,
		Share:              10,
		Challenge:          25,
		ChallengeWinBonus:  100,
	}
}

// MaxLessonScore is the top of the lesson score scale.
const MaxLessonScore = 100

// LessonXP returns the XP for a lesson finished with score in [0, 100].
func (r Rewards) LessonXP(score int) (int, error) {
	if score < 0 || score > MaxLessonScore {
		return 0, shared.Invalid("progression", "LessonXP", "score must be between 0 and 100")
	}
	bonus := 0
	if r.LessonScoreDivisor > 0 {
		bonus = score / r.LessonScoreDivisor
	}
	return r.LessonBase + bonus, nil
}

// ChallengeXP returns the XP for a challenge, including the win bonus.
func (r Rewards) ChallengeXP(won bool) int {
	if won {
		return r.Challenge + r.ChallengeWinBonus
	}
	return r.Challenge
}

// Validate checks that no reward is negative.
func (r Rewards) Validate() error {
	for _, v := range []int{r.LessonBase, r.LessonScoreDivisor, r.Artwork, r.Share, r.Challenge, r.ChallengeWinBonus} {
		if v < 0 {
			return shared.Invalid("progression", "Rewards", "rewards must be non-negative")
		}
	}
	return nil
}
