package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
)

var created = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*UserStore, *Memory) {
	t.Helper()
	kv := NewMemory()
	return NewUserStore(kv, ""), kv
}

func seed(t *testing.T, s *UserStore, id string) *progression.Record {
	t.Helper()
	rec := progression.NewRecord(shared.UserID(id), created)
	require.NoError(t, s.CreateUser(context.Background(), rec))
	return rec
}

func TestMemory_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()

	_, err := kv.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	value := []byte("v1")
	require.NoError(t, kv.Set(ctx, "a", value))
	value[0] = 'x'

	got, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got, "stored value must not alias the caller's slice")

	require.NoError(t, kv.Remove(ctx, "a"))
	require.NoError(t, kv.Remove(ctx, "a"))
	assert.Equal(t, 0, kv.Len())
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUserStore_CreateAndGet(t *testing.T) {
	s, kv := newStore(t)
	rec := seed(t, s, "ana")

	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, 1, kv.Len())

	got, err := s.GetUser(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, shared.UserID("ana"), got.UserID)
	assert.Equal(t, shared.MinLevel, got.Level)
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestUserStore_CreateDuplicate(t *testing.T) {
	s, _ := newStore(t)
	seed(t, s, "ana")

	err := s.CreateUser(context.Background(), progression.NewRecord("ana", created))
	assert.ErrorIs(t, err, shared.ErrUserExists)
	assert.True(t, shared.IsConflict(err))
}

func TestUserStore_GetMissing(t *testing.T) {
	s, _ := newStore(t)

	_, err := s.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
	assert.True(t, shared.IsNotFound(err))
}

func TestUserStore_UpdateVersioning(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	rec := seed(t, s, "ana")

	next := rec.Clone()
	next.XP = 300
	unlockedAt := created.Add(time.Hour)
	next.SetAchievementState(achievement.State{ID: "first_lesson", Progress: 1, UnlockedAt: &unlockedAt})
	require.NoError(t, s.UpdateUser(ctx, next))
	assert.Equal(t, int64(2), next.Version)

	got, err := s.GetUser(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, shared.XP(300), got.XP)
	st := got.AchievementState("first_lesson")
	require.NotNil(t, st.UnlockedAt)
	assert.True(t, st.UnlockedAt.Equal(unlockedAt))

	// rec still carries version 1
	stale := rec.Clone()
	stale.XP = 10
	err = s.UpdateUser(ctx, stale)
	assert.ErrorIs(t, err, shared.ErrStaleRecord)
	assert.Equal(t, int64(1), stale.Version)
}

func TestUserStore_UpdateRejectsInvalid(t *testing.T) {
	s, _ := newStore(t)
	rec := seed(t, s, "ana")

	bad := rec.Clone()
	bad.XP = -1
	err := s.UpdateUser(context.Background(), bad)
	assert.True(t, shared.IsValidation(err))
}

func TestUserStore_IncrementStat(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	seed(t, s, "ana")

	for want := 1; want <= 3; want++ {
		n, err := s.IncrementStat(ctx, "ana", progression.StatLessonsCompleted)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	got, err := s.GetUser(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stat(progression.StatLessonsCompleted))
	assert.Equal(t, int64(4), got.Version)

	_, err = s.IncrementStat(ctx, "nobody", progression.StatLessonsCompleted)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

type brokenKV struct{ err error }

func (b brokenKV) Get(context.Context, string) ([]byte, error) { return nil, b.err }
func (b brokenKV) Set(context.Context, string, []byte) error    { return b.err }
func (b brokenKV) Remove(context.Context, string) error         { return b.err }

func TestUserStore_BackendFailure(t *testing.T) {
	boom := errors.New("connection refused")
	s := NewUserStore(brokenKV{err: boom}, "test:")

	_, err := s.GetUser(context.Background(), "ana")
	assert.ErrorIs(t, err, boom)
	assert.False(t, shared.IsNotFound(err))

	err = s.CreateUser(context.Background(), progression.NewRecord("ana", created))
	assert.ErrorIs(t, err, boom)
}
