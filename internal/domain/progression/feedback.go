package progression

import (
	"github.com/artloop/progression-engine/internal/domain/achievement"
)

// Intensity is the strength of the celebration shown on unlock.
type Intensity string

const (
	IntensityLight   Intensity = "light"
	IntensityMedium  Intensity = "medium"
	IntensityHeavy   Intensity = "heavy"
	IntensitySuccess Intensity = "success"
)

// IntensityForRarity maps an achievement rarity to its celebration.
func IntensityForRarity(r achievement.Rarity) Intensity {
	switch r {
	case achievement.RarityRare:
		return IntensityMedium
	case achievement.RarityEpic:
		return IntensityHeavy
	case achievement.RarityLegendary:
		return IntensitySuccess
	default:
		return IntensityLight
	}
}

// Celebrator triggers haptic or audio feedback. Fire-and-forget: the engine
// never waits on it or reads a result.
type Celebrator interface {
	Celebrate(intensity Intensity)
}

// NopCelebrator discards every celebration.
type NopCelebrator struct{}

// Celebrate implements Celebrator.
func (NopCelebrator) Celebrate(Intensity) {}
