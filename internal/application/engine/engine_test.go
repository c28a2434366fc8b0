package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/internal/infrastructure/locking"
	"github.com/artloop/progression-engine/internal/infrastructure/messaging"
	"github.com/artloop/progression-engine/internal/infrastructure/persistence/kvstore"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

var today = time.Date(2024, time.June, 10, 15, 0, 0, 0, time.UTC)

type reports struct {
	mu   sync.Mutex
	list []shared.ErrorReport
}

func (r *reports) Report(_ context.Context, rep shared.ErrorReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, rep)
}

func (r *reports) severities() []shared.Severity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.Severity, 0, len(r.list))
	for _, rep := range r.list {
		out = append(out, rep.Severity)
	}
	return out
}

type cheers struct {
	mu   sync.Mutex
	list []progression.Intensity
}

func (c *cheers) Celebrate(i progression.Intensity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, i)
}

// downStore fails every call.
type downStore struct{}

var errDown = errors.New("identity store offline")

func (downStore) GetUser(context.Context, shared.UserID) (*progression.Record, error) {
	return nil, errDown
}
func (downStore) CreateUser(context.Context, *progression.Record) error { return errDown }
func (downStore) UpdateUser(context.Context, *progression.Record) error { return errDown }
func (downStore) IncrementStat(context.Context, shared.UserID, string) (int, error) {
	return 0, errDown
}

type brokenLocker struct{}

func (brokenLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("lock service unreachable")
}

type harness struct {
	engine   *Engine
	store    *kvstore.UserStore
	reports  *reports
	cheers   *cheers
	notifier *messaging.Notifier
}

type option func(*Config)

func withCatalog(c *achievement.Catalog) option { return func(cfg *Config) { cfg.Catalog = c } }
func withStore(s progression.Store) option     { return func(cfg *Config) { cfg.Store = s } }
func withLocker(l progression.Locker) option   { return func(cfg *Config) { cfg.Locker = l } }

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{
		store:    kvstore.NewUserStore(kvstore.NewMemory(), ""),
		reports:  &reports{},
		cheers:   &cheers{},
		notifier: messaging.NewNotifier(messaging.NotifierConfig{}),
	}
	cfg := Config{
		Store:          h.store,
		Locker:         locking.NewKeyedMutex(),
		Notifier:       h.notifier,
		Celebrator:     h.cheers,
		Reporter:       h.reports,
		Clock:          timeutil.FixedClock{T: today},
		StoreTimeout:   time.Second,
		UnlockAttempts: 2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	h.engine = e
	return h
}

func (h *harness) events(t *testing.T) *[]shared.Event {
	t.Helper()
	var mu sync.Mutex
	got := &[]shared.Event{}
	unsubscribe := h.engine.SubscribeToProgress(func(_ context.Context, e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		*got = append(*got, e)
		return nil
	})
	t.Cleanup(unsubscribe)
	return got
}

func count(events []shared.Event, typ shared.EventType) int {
	n := 0
	for _, e := range events {
		if e.EventType() == typ {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// CONSTRUCTION & ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Locker: locking.NewKeyedMutex(), Notifier: messaging.NewNotifier(messaging.NotifierConfig{})})
	assert.Error(t, err)

	_, err = New(Config{Store: downStore{}, Notifier: messaging.NewNotifier(messaging.NotifierConfig{})})
	assert.Error(t, err)

	_, err = New(Config{Store: downStore{}, Locker: locking.NewKeyedMutex()})
	assert.Error(t, err)
}

func TestNew_SealsCatalog(t *testing.T) {
	catalog := achievement.MustCatalog(achievement.DefaultDefinitions()...)
	h := newHarness(t, withCatalog(catalog))

	assert.True(t, h.engine.Catalog().Sealed())
	err := catalog.Register(achievement.Definition{ID: "late", Category: achievement.CategorySkill, MaxProgress: 1, Rarity: achievement.RarityCommon})
	assert.ErrorIs(t, err, shared.ErrCatalogSealed)
}

func TestCreateUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, err := h.engine.CreateUser(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, shared.MinLevel, rec.Level)
	assert.Equal(t, shared.XP(0), rec.XP)

	_, err = h.engine.CreateUser(ctx, "ana")
	assert.ErrorIs(t, err, shared.ErrUserExists)

	_, err = h.engine.CreateUser(ctx, "not a valid id!")
	assert.True(t, shared.IsValidation(err))

	card, err := h.engine.GetProgression(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 1, card.Level)
	assert.Equal(t, 1000, card.XPToNextLevel)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT PROPERTIES
// ══════════════════════════════════════════════════════════════════════════════

func TestFreshUserProgress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.CreateUser(ctx, "ana")
	require.NoError(t, err)

	dto, err := h.engine.GetAchievementProgress(ctx, "ana")
	require.NoError(t, err)

	n := h.engine.Catalog().Len()
	assert.Equal(t, n, dto.Total)
	assert.Zero(t, dto.Unlocked)
	assert.Empty(t, dto.InProgress)
	assert.Len(t, dto.Locked, n)
}

func TestFirstLessonUnlocksOnce(t *testing.T) {
	catalog := achievement.MustCatalog(achievement.Definition{
		ID: "first_lesson", Category: achievement.CategorySkill, Title: "First Stroke",
		MaxProgress: 1, XPReward: 50, Rarity: achievement.RarityCommon,
	})
	h := newHarness(t, withCatalog(catalog))
	ctx := context.Background()
	_, err := h.engine.CreateUser(ctx, "ana")
	require.NoError(t, err)
	events := h.events(t)

	unlocked, err := h.engine.CheckAchievements(ctx, "ana", achievement.CategorySkill, 1)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "first_lesson", unlocked[0].ID)

	card, err := h.engine.GetProgression(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 50, card.TotalXP)

	// Idempotence: the maxed achievement never moves or re-notifies.
	before, err := h.store.GetUser(ctx, "ana")
	require.NoError(t, err)

	unlocked, err = h.engine.CheckAchievements(ctx, "ana", achievement.CategorySkill, 1)
	require.NoError(t, err)
	assert.Empty(t, unlocked)

	after, err := h.store.GetUser(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "no write for a no-op evaluation")
	assert.Equal(t, 1, count(*events, shared.EventAchievementUnlocked))
	assert.Equal(t, []progression.Intensity{progression.IntensityLight}, h.cheers.list)
}

func TestProgressIsClampedAndMonotonic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.CreateUser(ctx, "ana")
	require.NoError(t, err)

	prev := 0
	for _, delta := range []int{3, 4, 1, 20} {
		_, err := h.engine.CheckAchievements(ctx, "ana", achievement.CategoryCreativity, delta)
		require.NoError(t, err)

		rec, err := h.store.GetUser(ctx, "ana")
		require.NoError(t, err)
		got := rec.AchievementState("artwork_10").Progress
		assert.Equal(t, min(prev+delta, 10), got)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}

	_, err = h.engine.CheckAchievements(ctx, "ana", achievement.CategoryCreativity, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidDelta)
	_, err = h.engine.CheckAchievements(ctx, "ana", "pottery", 1)
	assert.ErrorIs(t, err, shared.ErrInvalidCategory)
}

func TestStreakAcrossDays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.CreateUser(ctx, "ana")
	require.NoError(t, err)

	longest := 0
	for i, d := range []int{0, 1, 2, 5, 6} {
		res, err := h.engine.RecordActivity(ctx, "ana", today.AddDate(0, 0, d))
		require.NoError(t, err, "day %d", i)
		assert.GreaterOrEqual(t, res.Streak.LongestStreak, longest)
		longest = res.Streak.LongestStreak
	}

	rec, err := h.store.GetUser(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.StreakDays)
	assert.Equal(t, 3, rec.LongestStreak)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestActions_EndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.CreateUser(ctx, "ana")
	require.NoError(t, err)
	events := h.events(t)

	res, err := h.engine.RecordLessonCompletion(ctx, "ana", "lesson-1", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, res.XPAwarded)

	_, err = h.engine.RecordArtworkCreation(ctx, "ana", "art-1")
	require.NoError(t, err)
	_, err = h.engine.RecordArtworkShared(ctx, "ana", "art-1")
	require.NoError(t, err)
	_, err = h.engine.RecordChallengeParticipation(ctx, "ana", "weekly", false)
	require.NoError(t, err)

	card, err := h.engine.GetProgression(ctx, "ana")
	require.NoError(t, err)
	// 100 + 30 + 10 + 25 for the actions, 50 + 50 + 30 for three first unlocks
	assert.Equal(t, 295, card.TotalXP)
	assert.Equal(t, 1, card.StreakDays)
	assert.Equal(t, 3, card.AchievementsUnlocked)
	assert.Equal(t, 1, card.Stats[progression.StatChallengesPlayed])

	assert.Equal(t, 3, count(*events, shared.EventAchievementUnlocked))
	assert.Equal(t, 7, count(*events, shared.EventXPGained))

	goal, err := h.engine.CalculateDailyXPGoal(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 354, goal)
}

func TestActions_BigAwardCrossesSeveralLevels(t *testing.T) {
	h := newHarness(t, withCatalog(achievement.MustCatalog()))
	ctx := context.Background()
	_, err := h.engine.CreateUser(ctx, "ana")
	require.NoError(t, err)
	events := h.events(t)

	for i := range 25 {
		_, err := h.engine.RecordLessonCompletion(ctx, "ana", fmt.Sprintf("l-%d", i), 100)
		require.NoError(t, err)
	}

	card, err := h.engine.GetProgression(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 2500, card.TotalXP)
	assert.Equal(t, 3, card.Level)
	assert.Equal(t, 2, count(*events, shared.EventLevelUp))
}

func TestActions_NoProfile(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.RecordArtworkCreation(context.Background(), "ghost", "art-1")
	assert.ErrorIs(t, err, shared.ErrNoActiveProfile)

	_, err = h.engine.CheckAchievements(context.Background(), "ghost", achievement.CategorySkill, 1)
	assert.ErrorIs(t, err, shared.ErrNoActiveProfile)

	_, err = h.engine.RecordActivity(context.Background(), "ghost", today)
	assert.ErrorIs(t, err, shared.ErrNoActiveProfile)

	_, err = h.engine.DailyGoal(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrNoActiveProfile)

	assert.Empty(t, h.reports.list)
}

// ══════════════════════════════════════════════════════════════════════════════
// FAILURES & CONCURRENCY
// ══════════════════════════════════════════════════════════════════════════════

func TestStoreOutageIsReported(t *testing.T) {
	h := newHarness(t, withStore(downStore{}))
	ctx := context.Background()

	_, err := h.engine.RecordArtworkCreation(ctx, "ana", "art-1")
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))
	assert.ErrorIs(t, err, errDown)

	_, err = h.engine.GetAchievementProgress(ctx, "ana")
	assert.True(t, shared.IsPersistence(err))

	assert.Equal(t, []shared.Severity{shared.SeverityMedium, shared.SeverityMedium}, h.reports.severities())
}

func TestLockFailureIsPersistence(t *testing.T) {
	h := newHarness(t, withLocker(brokenLocker{}))

	_, err := h.engine.CheckAchievements(context.Background(), "ana", achievement.CategorySkill, 1)
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))
	assert.Len(t, h.reports.list, 1)
}

func TestConcurrentActionsOnOneUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.CreateUser(ctx, "ana")
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.RecordArtworkCreation(ctx, "ana", fmt.Sprintf("art-%d", i))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := h.store.GetUser(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, n, rec.Stat(progression.StatArtworksCreated))
	assert.Equal(t, n, rec.AchievementState("artwork_100").Progress)
	// 20 artworks plus first_artwork and artwork_10
	assert.Equal(t, shared.XP(n*30+50+250), rec.XP)
}

func TestConcurrentUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	users := []string{"ana", "ben", "cho", "dia"}
	for _, u := range users {
		_, err := h.engine.CreateUser(ctx, u)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 5 {
				_, err := h.engine.RecordArtworkShared(ctx, u, fmt.Sprintf("%s-%d", u, i))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for _, u := range users {
		rec, err := h.store.GetUser(ctx, shared.UserID(u))
		require.NoError(t, err)
		assert.Equal(t, 5, rec.Stat(progression.StatArtworksShared), u)
	}
}

func TestSubscriberFailureDoesNotFailAction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.CreateUser(ctx, "ana")
	require.NoError(t, err)

	unsubscribe := h.engine.SubscribeToProgress(func(context.Context, shared.Event) error {
		panic("analytics crashed")
	})
	_, err = h.engine.RecordArtworkCreation(ctx, "ana", "art-1")
	require.NoError(t, err)
	assert.Positive(t, h.notifier.Stats().Panics)

	unsubscribe()
	unsubscribe()
	assert.Zero(t, h.notifier.Subscribers())
}
