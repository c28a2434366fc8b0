package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artloop/progression-engine/internal/domain/shared"
)

func TestXPRequiredForLevel(t *testing.T) {
	assert.Equal(t, shared.XP(1000), XPRequiredForLevel(1))
	assert.Equal(t, shared.XP(2000), XPRequiredForLevel(2))
	assert.Equal(t, shared.XP(10000), XPRequiredForLevel(10))
	assert.Equal(t, shared.XP(1000), XPRequiredForLevel(0))
}

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp   shared.XP
		want shared.Level
	}{
		{0, 1},
		{999, 1},
		{1000, 2},
		{1999, 2},
		{2500, 3},
		{10000, 11},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForXP(tt.xp), "xp=%d", tt.xp)
	}
}

func TestApplyXP_MultipleLevelUps(t *testing.T) {
	res, err := ApplyXP(1, 0, 2500)
	require.NoError(t, err)

	assert.Equal(t, shared.Level(3), res.Level)
	assert.Equal(t, shared.XP(2500), res.TotalXP)
	require.Len(t, res.LevelUps, 2)

	assert.Equal(t, LevelUp{Level: 2, NextLevelAt: 2000, XPToNextLevel: 0}, res.LevelUps[0])
	assert.Equal(t, LevelUp{Level: 3, NextLevelAt: 3000, XPToNextLevel: 500}, res.LevelUps[1])
	assert.True(t, res.LeveledUp())
	assert.Equal(t, shared.Level(1), res.PreviousLevel)
}

func TestApplyXP(t *testing.T) {
	tests := []struct {
		name      string
		level     shared.Level
		xp        shared.XP
		delta     int
		wantLevel shared.Level
		wantXP    shared.XP
		wantUps   int
	}{
		{"no level up", 1, 100, 50, 1, 150, 0},
		{"exact boundary", 1, 950, 50, 2, 1000, 1},
		{"zero delta", 2, 1500, 0, 2, 1500, 0},
		{"large award", 1, 0, 10000, 11, 10000, 10},
		{"catches up stale level", 1, 3000, 0, 4, 3000, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ApplyXP(tt.level, tt.xp, tt.delta)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, res.Level)
			assert.Equal(t, tt.wantXP, res.TotalXP)
			assert.Len(t, res.LevelUps, tt.wantUps)
			assert.Equal(t, LevelForXP(res.TotalXP), res.Level)
		})
	}
}

func TestApplyXP_Rejects(t *testing.T) {
	_, err := ApplyXP(1, 0, -1)
	assert.ErrorIs(t, err, shared.ErrInvalidXP)
	assert.True(t, shared.IsValidation(err))

	_, err = ApplyXP(0, 0, 10)
	assert.ErrorIs(t, err, shared.ErrInvalidLevel)
}

func TestLevelProgress(t *testing.T) {
	assert.InDelta(t, 0.0, LevelProgress(0), 1e-9)
	assert.InDelta(t, 0.5, LevelProgress(2500), 1e-9)
	assert.Equal(t, 500, XPToNextLevel(2500))
	assert.Equal(t, 1000, XPToNextLevel(0))
}
