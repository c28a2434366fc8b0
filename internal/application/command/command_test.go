package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artloop/progression-engine/internal/application/saga"
	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/internal/infrastructure/persistence/kvstore"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

var day0 = time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)

type faultyStore struct {
	progression.Store

	mu            sync.Mutex
	failIncrement bool
	failUpdate    bool
	updates       int
}

func (s *faultyStore) UpdateUser(ctx context.Context, rec *progression.Record) error {
	s.mu.Lock()
	s.updates++
	fail := s.failUpdate
	s.mu.Unlock()
	if fail {
		return errors.New("write timeout")
	}
	return s.Store.UpdateUser(ctx, rec)
}

func (s *faultyStore) IncrementStat(ctx context.Context, userID shared.UserID, name string) (int, error) {
	s.mu.Lock()
	fail := s.failIncrement
	s.mu.Unlock()
	if fail {
		return 0, errors.New("counter service down")
	}
	return s.Store.IncrementStat(ctx, userID, name)
}

type sink struct {
	mu      sync.Mutex
	events  []shared.Event
	reports []shared.ErrorReport
}

func (s *sink) Publish(_ context.Context, e shared.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *sink) Report(_ context.Context, r shared.ErrorReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
}

func (s *sink) count(t shared.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

type fixture struct {
	store    *faultyStore
	sink     *sink
	ledger   *progression.Ledger
	evaluate *EvaluateAchievementsHandler
	activity *RecordActivityHandler
	actions  *RecordActionHandler
}

func newFixture(t *testing.T, users ...shared.UserID) *fixture {
	t.Helper()
	return newFixtureAt(t, timeutil.FixedClock{T: day0}, users...)
}

func newFixtureAt(t *testing.T, clock timeutil.Clock, users ...shared.UserID) *fixture {
	t.Helper()
	f := &fixture{
		store: &faultyStore{Store: kvstore.NewUserStore(kvstore.NewMemory(), "")},
		sink:  &sink{},
	}
	f.ledger = progression.NewLedger(f.store, time.Second)
	unlock := saga.NewUnlockFlow(f.ledger, f.sink, nil, f.sink, saga.UnlockFlowConfig{PersistAttempts: 1, Clock: clock})
	f.evaluate = NewEvaluateAchievementsHandler(achievement.DefaultCatalog(), f.ledger, unlock, f.sink, clock, nil)
	f.activity = NewRecordActivityHandler(f.ledger, f.evaluate, clock, nil)
	f.actions = NewRecordActionHandler(f.ledger, f.evaluate, f.activity, f.sink, f.sink, RecordActionHandlerConfig{Clock: clock})

	for _, uid := range users {
		require.NoError(t, f.store.CreateUser(context.Background(), progression.NewRecord(uid, day0)))
	}
	return f
}

func (f *fixture) record(t *testing.T, uid shared.UserID) *progression.Record {
	t.Helper()
	rec, err := f.store.GetUser(context.Background(), uid)
	require.NoError(t, err)
	return rec
}

func ids(defs []achievement.Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.ID)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE
// ══════════════════════════════════════════════════════════════════════════════

func TestEvaluate_ProgressAndUnlock(t *testing.T) {
	f := newFixture(t, "ana")
	ctx := context.Background()

	res, err := f.evaluate.Handle(ctx, EvaluateAchievementsCommand{UserID: "ana", Category: achievement.CategorySkill, Delta: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"first_lesson"}, ids(res.Unlocked))
	assert.Len(t, res.Progressed, 2)
	assert.Equal(t, 50, res.XPAwarded())
	assert.Equal(t, 2, f.sink.count(shared.EventAchievementProgress))
	assert.Equal(t, 1, f.sink.count(shared.EventAchievementUnlocked))

	rec := f.record(t, "ana")
	assert.Equal(t, 1, rec.AchievementState("lesson_10").Progress)
	assert.Equal(t, 1, rec.AchievementState("lesson_50").Progress)
	assert.True(t, rec.AchievementState("first_lesson").IsUnlocked())
	assert.Equal(t, shared.XP(50), rec.XP)

	// one write for the batch of progress, one for the unlock
	assert.Equal(t, 2, f.store.updates)
}

func TestEvaluate_UnlockedIsSkipped(t *testing.T) {
	f := newFixture(t, "ana")
	ctx := context.Background()
	cmd := EvaluateAchievementsCommand{UserID: "ana", Category: achievement.CategorySkill, Delta: 1}

	_, err := f.evaluate.Handle(ctx, cmd)
	require.NoError(t, err)
	res, err := f.evaluate.Handle(ctx, cmd)
	require.NoError(t, err)

	assert.Empty(t, res.Unlocked)
	assert.Equal(t, 1, f.sink.count(shared.EventAchievementUnlocked))
	assert.Equal(t, 2, f.record(t, "ana").AchievementState("lesson_10").Progress)
}

func TestEvaluate_LargeDeltaClampsAndUnlocksAll(t *testing.T) {
	f := newFixture(t, "ana")

	res, err := f.evaluate.Handle(context.Background(), EvaluateAchievementsCommand{UserID: "ana", Category: achievement.CategorySkill, Delta: 500})
	require.NoError(t, err)

	assert.Equal(t, []string{"first_lesson", "lesson_10", "lesson_50"}, ids(res.Unlocked))
	assert.Empty(t, res.Progressed)

	rec := f.record(t, "ana")
	assert.Equal(t, 50, rec.AchievementState("lesson_50").Progress)
	assert.Equal(t, shared.XP(50+200+750), rec.XP)
	assert.Equal(t, progression.LevelForXP(rec.XP), rec.Level)
}

func TestEvaluate_StreakIsAbsolute(t *testing.T) {
	f := newFixture(t, "ana")
	ctx := context.Background()

	res, err := f.evaluate.Handle(ctx, EvaluateAchievementsCommand{UserID: "ana", Category: achievement.CategoryStreak, Delta: 7})
	require.NoError(t, err)
	assert.Equal(t, []string{"streak_7"}, ids(res.Unlocked))
	assert.Equal(t, 7, f.record(t, "ana").AchievementState("streak_30").Progress)

	// A shorter run never lowers progress.
	res, err = f.evaluate.Handle(ctx, EvaluateAchievementsCommand{UserID: "ana", Category: achievement.CategoryStreak, Delta: 3})
	require.NoError(t, err)
	assert.Empty(t, res.Unlocked)
	assert.Empty(t, res.Progressed)
	assert.Equal(t, 7, f.record(t, "ana").AchievementState("streak_30").Progress)
}

func TestEvaluate_Validation(t *testing.T) {
	f := newFixture(t, "ana")
	ctx := context.Background()

	_, err := f.evaluate.Handle(ctx, EvaluateAchievementsCommand{UserID: "ana", Category: achievement.CategorySkill, Delta: 0})
	assert.ErrorIs(t, err, shared.ErrInvalidDelta)

	_, err = f.evaluate.Handle(ctx, EvaluateAchievementsCommand{UserID: "ana", Category: "painting", Delta: 1})
	assert.ErrorIs(t, err, shared.ErrInvalidCategory)

	_, err = f.evaluate.Handle(ctx, EvaluateAchievementsCommand{UserID: "nobody", Category: achievement.CategorySkill, Delta: 1})
	assert.True(t, shared.IsNotFound(err))
}

func TestEvaluate_EmptyCategoryIsNoop(t *testing.T) {
	f := newFixture(t)
	catalog := achievement.MustCatalog(achievement.Definition{
		ID: "only", Category: achievement.CategorySkill, Title: "Only", MaxProgress: 1, Rarity: achievement.RarityCommon,
	}).Seal()
	h := NewEvaluateAchievementsHandler(catalog, f.ledger, nil, f.sink, nil, nil)

	res, err := h.Handle(context.Background(), EvaluateAchievementsCommand{UserID: "nobody", Category: achievement.CategorySocial, Delta: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Unlocked)
	assert.Zero(t, f.store.updates)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordActivity_StreakLifecycle(t *testing.T) {
	f := newFixture(t, "ana")
	ctx := context.Background()
	at := func(days int) time.Time { return day0.AddDate(0, 0, days) }

	res, err := f.activity.Handle(ctx, RecordActivityCommand{UserID: "ana", Today: at(0)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak.StreakDays)
	assert.Equal(t, 0, res.PreviousStreak)

	res, err = f.activity.Handle(ctx, RecordActivityCommand{UserID: "ana", Today: at(0).Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.False(t, res.Streak.Changed, "same day is counted once")

	res, err = f.activity.Handle(ctx, RecordActivityCommand{UserID: "ana", Today: at(1)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak.StreakDays)

	res, err = f.activity.Handle(ctx, RecordActivityCommand{UserID: "ana", Today: at(4)})
	require.NoError(t, err)
	assert.True(t, res.StreakBroken())
	assert.Equal(t, 1, res.Streak.StreakDays)
	assert.Equal(t, 2, res.Streak.LongestStreak)

	before := f.store.updates
	_, err = f.activity.Handle(ctx, RecordActivityCommand{UserID: "ana", Today: at(2)})
	assert.ErrorIs(t, err, shared.ErrInvalidTimestamp)
	assert.Equal(t, before, f.store.updates)

	rec := f.record(t, "ana")
	assert.Equal(t, 1, rec.StreakDays)
	assert.Equal(t, 2, rec.LongestStreak)
}

func TestRecordActivity_CountsDaysInClockLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	f := newFixtureAt(t, timeutil.FixedClock{T: day0.In(ny)}, "ana")
	ctx := context.Background()

	// 23:00 and 03:00 UTC the next morning are both March 5 in New York.
	evening := time.Date(2024, time.March, 5, 23, 0, 0, 0, time.UTC)
	_, err = f.activity.Handle(ctx, RecordActivityCommand{UserID: "ana", Today: evening})
	require.NoError(t, err)

	res, err := f.activity.Handle(ctx, RecordActivityCommand{UserID: "ana", Today: evening.Add(4 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak.StreakDays)
	assert.False(t, res.Streak.Changed)
}

func TestRecordActivity_SevenDaysUnlocksStreak(t *testing.T) {
	f := newFixture(t, "ana")
	ctx := context.Background()

	var unlocked []string
	for d := range 7 {
		res, err := f.activity.Handle(ctx, RecordActivityCommand{UserID: "ana", Today: day0.AddDate(0, 0, d)})
		require.NoError(t, err)
		unlocked = append(unlocked, ids(res.Unlocked)...)
	}

	assert.Equal(t, []string{"streak_7"}, unlocked)
	rec := f.record(t, "ana")
	assert.Equal(t, 7, rec.StreakDays)
	assert.Equal(t, shared.XP(100), rec.XP)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTION
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordAction_Lesson(t *testing.T) {
	f := newFixture(t, "ana")

	res, err := f.actions.Handle(context.Background(), RecordActionCommand{
		UserID: "ana", Kind: ActionLessonCompleted, RefID: "lesson-1", Score: 80,
	})
	require.NoError(t, err)

	assert.Equal(t, 90, res.XPAwarded)
	assert.Equal(t, []string{"first_lesson"}, ids(res.Unlocked))
	assert.Equal(t, shared.XP(140), res.TotalXP)
	assert.Equal(t, 1, res.StreakDays)
	assert.Empty(t, res.Warnings)

	rec := f.record(t, "ana")
	assert.Equal(t, 1, rec.Stat(progression.StatLessonsCompleted))
	assert.Equal(t, shared.XP(140), rec.XP)
	assert.Equal(t, 2, f.sink.count(shared.EventXPGained))
}

func TestRecordAction_ChallengeWin(t *testing.T) {
	f := newFixture(t, "ana")

	res, err := f.actions.Handle(context.Background(), RecordActionCommand{
		UserID: "ana", Kind: ActionChallengePlayed, RefID: "weekly-7", Won: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 125, res.XPAwarded)
	assert.ElementsMatch(t, []string{"first_share", "first_challenge_win"}, ids(res.Unlocked))

	rec := f.record(t, "ana")
	assert.Equal(t, 1, rec.Stat(progression.StatChallengesPlayed))
	assert.Equal(t, 1, rec.Stat(progression.StatChallengesWon))
}

func TestRecordAction_MissingProfile(t *testing.T) {
	f := newFixture(t)

	_, err := f.actions.Handle(context.Background(), RecordActionCommand{UserID: "ghost", Kind: ActionArtworkCreated, RefID: "a1"})
	require.Error(t, err)
	assert.True(t, shared.IsPrecondition(err))
	assert.ErrorIs(t, err, shared.ErrNoActiveProfile)
	assert.Empty(t, f.sink.events)
}

func TestRecordAction_StatFailureIsLowSeverity(t *testing.T) {
	f := newFixture(t, "ana")
	f.store.failIncrement = true

	res, err := f.actions.Handle(context.Background(), RecordActionCommand{UserID: "ana", Kind: ActionArtworkCreated, RefID: "a1"})
	require.NoError(t, err)

	assert.Equal(t, 30, res.XPAwarded)
	require.Len(t, res.Warnings, 1)
	require.Len(t, f.sink.reports, 1)
	assert.Equal(t, shared.SeverityLow, f.sink.reports[0].Severity)
	assert.Equal(t, "increment_stat", f.sink.reports[0].Operation)
	assert.Zero(t, f.record(t, "ana").Stat(progression.StatArtworksCreated))
}

func TestRecordAction_WriteFailureAbortsAction(t *testing.T) {
	f := newFixture(t, "ana")
	f.store.failUpdate = true

	_, err := f.actions.Handle(context.Background(), RecordActionCommand{UserID: "ana", Kind: ActionArtworkShared, RefID: "a1"})
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))

	require.Len(t, f.sink.reports, 1)
	assert.Equal(t, shared.SeverityMedium, f.sink.reports[0].Severity)
	assert.Zero(t, f.sink.count(shared.EventXPGained))
	assert.Equal(t, shared.XP(0), f.record(t, "ana").XP)
}

func TestRecordAction_Validation(t *testing.T) {
	tests := []struct {
		name string
		cmd  RecordActionCommand
	}{
		{"score too high", RecordActionCommand{UserID: "ana", Kind: ActionLessonCompleted, RefID: "l", Score: 101}},
		{"negative score", RecordActionCommand{UserID: "ana", Kind: ActionLessonCompleted, RefID: "l", Score: -1}},
		{"missing ref", RecordActionCommand{UserID: "ana", Kind: ActionArtworkCreated}},
		{"unknown kind", RecordActionCommand{UserID: "ana", Kind: "sculpted", RefID: "x"}},
		{"bad user", RecordActionCommand{UserID: "", Kind: ActionArtworkCreated, RefID: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, shared.IsValidation(tt.cmd.Validate()))
		})
	}
}

func TestParseActionKind(t *testing.T) {
	k, err := ParseActionKind(" Lesson_Completed ")
	require.NoError(t, err)
	assert.Equal(t, ActionLessonCompleted, k)

	_, err = ParseActionKind("nap")
	assert.True(t, shared.IsValidation(err))
}
