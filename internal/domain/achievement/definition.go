// Package achievement contains the Achievement bounded context: the immutable
// definitions registered at startup, the catalog that indexes them, and the
// per-user progress state that tracks how close a user is to each unlock.
package achievement

import (
	"fmt"
	"strings"

	"github.com/artloop/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORY
// ══════════════════════════════════════════════════════════════════════════════

// Category groups achievements that advance on the same kind of action.
type Category string

const (
	// CategorySkill - lessons and learning.
	CategorySkill Category = "skill"

	// CategoryStreak - consecutive days of activity. Progress is absolute.
	CategoryStreak Category = "streak"

	// CategoryCreativity - artworks created.
	CategoryCreativity Category = "creativity"

	// CategorySocial - sharing and participation.
	CategorySocial Category = "social"

	// CategoryMilestone - wins and larger goals.
	CategoryMilestone Category = "milestone"
)

// Categories returns all known categories in display order.
func Categories() []Category {
	return []Category{CategorySkill, CategoryStreak, CategoryCreativity, CategorySocial, CategoryMilestone}
}

// IsValid checks if the category is one of the known values.
func (c Category) IsValid() bool {
	switch c {
	case CategorySkill, CategoryStreak, CategoryCreativity, CategorySocial, CategoryMilestone:
		return true
	default:
		return false
	}
}

// IsAbsolute reports whether progress in this category is set to an absolute
// count instead of being advanced by deltas.
func (c Category) IsAbsolute() bool {
	return c == CategoryStreak
}

// String returns the string representation.
func (c Category) String() string {
	return string(c)
}

// ParseCategory parses a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", shared.WrapError("achievement", "ParseCategory", shared.ErrValidation,
			fmt.Sprintf("unknown category %q", s), shared.ErrInvalidCategory)
	}
	return c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RARITY
// ══════════════════════════════════════════════════════════════════════════════

// Rarity scales the celebration, not the reward.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// IsValid checks if the rarity is one of the known values.
func (r Rarity) IsValid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	default:
		return false
	}
}

// Rank orders rarities from common (0) to legendary (3).
func (r Rarity) Rank() int {
	switch r {
	case RarityRare:
		return 1
	case RarityEpic:
		return 2
	case RarityLegendary:
		return 3
	default:
		return 0
	}
}

// String returns the string representation.
func (r Rarity) String() string {
	return string(r)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Definition describes an achievement. Definitions are registered once and
// never change afterwards.
type Definition struct {
	// ID - unique identifier within the catalog.
	ID string `json:"id"`

	// Category - which actions advance this achievement.
	Category Category `json:"category"`

	// Title - short display name.
	Title string `json:"title"`

	// Description - one-line explanation for the UI.
	Description string `json:"description"`

	// IconRef - opaque reference to an icon asset.
	IconRef string `json:"icon_ref"`

	// MaxProgress - unlock threshold, at least 1.
	MaxProgress int `json:"max_progress"`

	// XPReward - XP awarded on unlock.
	XPReward int `json:"xp_reward"`

	// Rarity - celebration tier.
	Rarity Rarity `json:"rarity"`
}

// Validate checks the definition invariants.
func (d Definition) Validate() error {
	var problems []string

	if strings.TrimSpace(d.ID) == "" {
		problems = append(problems, "id is required")
	}
	if !d.Category.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown category %q", d.Category))
	}
	if d.MaxProgress < 1 {
		problems = append(problems, "max progress must be at least 1")
	}
	if d.XPReward < 0 {
		problems = append(problems, "xp reward must be non-negative")
	}
	if !d.Rarity.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown rarity %q", d.Rarity))
	}

	if len(problems) > 0 {
		return shared.WrapError("achievement", "Validate", shared.ErrValidation,
			fmt.Sprintf("definition %q: %s", d.ID, strings.Join(problems, "; ")),
			shared.ErrInvalidDefinition)
	}
	return nil
}
