package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
)

func TestCollector_Events(t *testing.T) {
	c := New(false)
	ctx := context.Background()
	now := time.Now()
	def := achievement.Definition{
		ID:          "first_lesson",
		Title:       "First Steps",
		Category:    achievement.CategorySkill,
		Rarity:      achievement.RarityCommon,
		MaxProgress: 1,
		XPReward:    50,
	}

	require.NoError(t, c.Handle(ctx, progression.NewAchievementUnlockedEvent("ana", def, now)))
	require.NoError(t, c.Handle(ctx, progression.NewAchievementProgressEvent("ana", def, 1, now)))
	require.NoError(t, c.Handle(ctx, progression.NewXPGainedEvent("ana", 100, 100, progression.SourceLesson, now)))
	require.NoError(t, c.Handle(ctx, progression.NewXPGainedEvent("ana", 50, 150, progression.AchievementSource("first_lesson"), now)))
	require.NoError(t, c.Handle(ctx, progression.NewLevelUpEvent("ana", progression.LevelUp{Level: 2}, now)))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.unlocks.WithLabelValues("skill", "common")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.progress.WithLabelValues("skill")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.xpGained.WithLabelValues("lesson")))
	assert.Equal(t, 50.0, testutil.ToFloat64(c.xpGained.WithLabelValues("achievement")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.levelUps))
}

func TestCollector_ReportsAndCelebrations(t *testing.T) {
	c := New(false)

	c.ObserveReport(shared.NewErrorReport("save", "ana", shared.SeverityMedium, shared.ErrStoreUnavailable))
	c.ObserveCelebration(progression.IntensityHeavy)
	c.ObserveOperation("record_lesson", 0.01, nil)
	c.ObserveOperation("record_lesson", 0.02, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.reports.WithLabelValues("persistence", "medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.celebrations.WithLabelValues("heavy")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.operationTime))
}

func TestCollector_Handler(t *testing.T) {
	c := New(false)
	c.ObserveCelebration(progression.IntensityLight)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `progression_celebrations_total{intensity="light"} 1`)
}

func TestSourceKind(t *testing.T) {
	assert.Equal(t, "share", sourceKind(progression.SourceShare))
	assert.Equal(t, "achievement", sourceKind("achievement:x"))
	assert.Equal(t, "other", sourceKind("achievement:"))
	assert.Equal(t, "other", sourceKind("bonus"))
}
