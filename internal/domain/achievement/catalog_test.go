package achievement

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artloop/progression-engine/internal/domain/shared"
)

func def(id string, cat Category, max int) Definition {
	return Definition{ID: id, Category: cat, Title: id, MaxProgress: max, XPReward: 10, Rarity: RarityCommon}
}

func ids(seq func(func(Definition) bool)) []string {
	var out []string
	for d := range seq {
		out = append(out, d.ID)
	}
	return out
}

func TestCatalog_Register(t *testing.T) {
	c, err := NewCatalog()
	require.NoError(t, err)

	require.NoError(t, c.Register(def("a", CategorySkill, 1)))

	err = c.Register(def("a", CategorySocial, 3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrDuplicateDefinition))
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, 1, c.Len())

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, CategorySkill, got.Category)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCatalog_RegisterInvalid(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"empty id", Definition{Category: CategorySkill, MaxProgress: 1, Rarity: RarityCommon}},
		{"zero max progress", Definition{ID: "x", Category: CategorySkill, MaxProgress: 0, Rarity: RarityCommon}},
		{"negative reward", Definition{ID: "x", Category: CategorySkill, MaxProgress: 1, XPReward: -1, Rarity: RarityCommon}},
		{"unknown category", Definition{ID: "x", Category: "cooking", MaxProgress: 1, Rarity: RarityCommon}},
		{"unknown rarity", Definition{ID: "x", Category: CategorySkill, MaxProgress: 1, Rarity: "mythic"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := NewCatalog()
			err := c.Register(tt.def)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
			assert.Zero(t, c.Len())
		})
	}
}

func TestCatalog_Sealed(t *testing.T) {
	c := MustCatalog(def("a", CategorySkill, 1)).Seal()
	assert.True(t, c.Sealed())

	err := c.Register(def("b", CategorySkill, 1))
	assert.True(t, errors.Is(err, shared.ErrCatalogSealed))
	assert.Equal(t, 1, c.Len())
}

func TestCatalog_ListByCategoryKeepsRegistrationOrder(t *testing.T) {
	c := MustCatalog(
		def("s3", CategorySkill, 3),
		def("c1", CategoryCreativity, 1),
		def("s1", CategorySkill, 1),
		def("s2", CategorySkill, 2),
	)

	assert.Equal(t, []string{"s3", "s1", "s2"}, ids(c.ListByCategory(CategorySkill)))
	assert.Equal(t, []string{"c1"}, ids(c.ListByCategory(CategoryCreativity)))
	assert.Empty(t, ids(c.ListByCategory(CategoryMilestone)))
	assert.Equal(t, []string{"s3", "c1", "s1", "s2"}, ids(c.All()))
	assert.Equal(t, 3, c.CountByCategory(CategorySkill))
}

func TestCatalog_ListByCategoryStopsEarly(t *testing.T) {
	c := MustCatalog(def("a", CategorySkill, 1), def("b", CategorySkill, 1), def("c", CategorySkill, 1))

	var seen []string
	for d := range c.ListByCategory(CategorySkill) {
		seen = append(seen, d.ID)
		if d.ID == "b" {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.True(t, c.Sealed())
	assert.Equal(t, len(DefaultDefinitions()), c.Len())

	for _, cat := range Categories() {
		assert.NotZero(t, c.CountByCategory(cat), "category %s has no achievements", cat)
	}

	streaks := slices.Collect(c.ListByCategory(CategoryStreak))
	require.Len(t, streaks, 3)
	assert.Equal(t, []int{7, 30, 100}, []int{streaks[0].MaxProgress, streaks[1].MaxProgress, streaks[2].MaxProgress})

	first, ok := c.Get("first_lesson")
	require.True(t, ok)
	assert.Equal(t, 1, first.MaxProgress)
	assert.Equal(t, 50, first.XPReward)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Skill ")
	require.NoError(t, err)
	assert.Equal(t, CategorySkill, c)

	_, err = ParseCategory("cooking")
	assert.True(t, shared.IsValidation(err))
}

func TestState_Advance(t *testing.T) {
	d := def("a", CategorySkill, 5)

	tests := []struct {
		name    string
		prior   int
		delta   int
		want    int
		changed bool
		crossed bool
		wantErr bool
	}{
		{"from zero", 0, 1, 1, true, false, false},
		{"clamped", 3, 10, 5, true, true, false},
		{"exact threshold", 4, 1, 5, true, true, false},
		{"zero delta", 2, 0, 0, false, false, true},
		{"negative delta", 2, -1, 0, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := State{ID: "a", Progress: tt.prior}.Advance(d, tt.delta)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, shared.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, step.Next.Progress)
			assert.Equal(t, tt.changed, step.Changed)
			assert.Equal(t, tt.crossed, step.Crossed)
			assert.LessOrEqual(t, step.Next.Progress, d.MaxProgress)
			assert.GreaterOrEqual(t, step.Next.Progress, tt.prior)
		})
	}
}

func TestState_UnlockedNeverMoves(t *testing.T) {
	d := def("a", CategorySkill, 2)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	unlocked, err := ZeroState("a").Unlocked(d, at)
	require.NoError(t, err)
	assert.Equal(t, 2, unlocked.Progress)
	assert.Equal(t, StatusUnlocked, unlocked.Status())
	require.NoError(t, unlocked.Check(d))

	step, err := unlocked.Advance(d, 1)
	require.NoError(t, err)
	assert.False(t, step.Changed)
	assert.False(t, step.Crossed)
	assert.Equal(t, unlocked, step.Next)

	_, err = unlocked.Unlocked(d, at.Add(time.Hour))
	assert.True(t, errors.Is(err, shared.ErrAchievementUnlocked))
}

func TestState_ReachIsMonotonic(t *testing.T) {
	d := def("streak_7", CategoryStreak, 7)

	step := State{ID: "streak_7", Progress: 5}.Reach(d, 2)
	assert.False(t, step.Changed)
	assert.Equal(t, 5, step.Next.Progress)

	step = State{ID: "streak_7", Progress: 5}.Reach(d, 6)
	assert.True(t, step.Changed)
	assert.False(t, step.Crossed)

	step = State{ID: "streak_7", Progress: 5}.Reach(d, 40)
	assert.True(t, step.Crossed)
	assert.Equal(t, 7, step.Next.Progress)
}

func TestState_Status(t *testing.T) {
	assert.Equal(t, StatusLocked, ZeroState("a").Status())
	assert.Equal(t, StatusInProgress, State{ID: "a", Progress: 1}.Status())
	assert.InDelta(t, 0.25, State{ID: "a", Progress: 1}.Fraction(def("a", CategorySkill, 4)), 1e-9)
}
