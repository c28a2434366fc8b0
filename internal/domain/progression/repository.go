package progression

import (
	"context"
	"time"

	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// The identity store owns the progression record. Implementations live in
// infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Store is the identity-store contract consumed by the engine. It must give
// read-your-writes within one process.
type Store interface {
	// GetUser returns the record of a user.
	// Returns ErrUserNotFound if the user does not exist.
	GetUser(ctx context.Context, userID shared.UserID) (*Record, error)

	// CreateUser stores a freshly seeded record.
	// Returns ErrUserExists if the user already has one.
	CreateUser(ctx context.Context, rec *Record) error

	// UpdateUser replaces the stored record. The write is rejected with
	// ErrStaleRecord when rec.Version is not the stored version; on success
	// rec.Version is bumped.
	UpdateUser(ctx context.Context, rec *Record) error

	// IncrementStat bumps a raw counter and returns the new value.
	// Returns ErrUserNotFound if the user does not exist.
	IncrementStat(ctx context.Context, userID shared.UserID, name string) (int, error)
}

// Locker serializes work on one key. Lock blocks until the key is free or
// ctx is done, and returns the function that releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockKey is the Locker key for a user's progression.
func LockKey(userID shared.UserID) string {
	return "progression:user:" + userID.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Ledger is the engine's only path to the Store. Every call carries a bounded
// timeout and store failures are normalized into the persistence kind.
type Ledger struct {
	store   Store
	timeout time.Duration
}

// DefaultStoreTimeout bounds a single identity-store call.
const DefaultStoreTimeout = 2 * time.Second

// NewLedger creates a ledger over store. A non-positive timeout falls back
// to DefaultStoreTimeout.
func NewLedger(store Store, timeout time.Duration) *Ledger {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Ledger{store: store, timeout: timeout}
}

// Timeout returns the per-call store timeout.
func (l *Ledger) Timeout() time.Duration {
	return l.timeout
}

func (l *Ledger) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.timeout)
}

// Load reads a user's record. Returns ErrUserNotFound if absent.
func (l *Ledger) Load(ctx context.Context, userID shared.UserID) (*Record, error) {
	ctx, cancel := l.bounded(ctx)
	defer cancel()

	rec, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, shared.Persistence("progression", "Load", err)
	}
	if rec == nil {
		return nil, shared.ErrUserNotFound
	}
	return rec, nil
}

// Save writes a record. On success rec carries the new version.
func (l *Ledger) Save(ctx context.Context, rec *Record, now time.Time) error {
	ctx, cancel := l.bounded(ctx)
	defer cancel()

	prev := rec.UpdatedAt
	rec.UpdatedAt = now.UTC()
	if err := l.store.UpdateUser(ctx, rec); err != nil {
		rec.UpdatedAt = prev
		return shared.Persistence("progression", "Save", err)
	}
	return nil
}

// Create stores a new record.
func (l *Ledger) Create(ctx context.Context, rec *Record) error {
	ctx, cancel := l.bounded(ctx)
	defer cancel()

	if err := l.store.CreateUser(ctx, rec); err != nil {
		return shared.Persistence("progression", "Create", err)
	}
	return nil
}

// IncrementStat bumps a raw counter.
func (l *Ledger) IncrementStat(ctx context.Context, userID shared.UserID, name string) (int, error) {
	ctx, cancel := l.bounded(ctx)
	defer cancel()

	n, err := l.store.IncrementStat(ctx, userID, name)
	if err != nil {
		return 0, shared.Persistence("progression", "IncrementStat", err)
	}
	return n, nil
}

// GetAchievementState returns a user's state for one achievement, or the
// zero-progress default when the user never touched it.
func (l *Ledger) GetAchievementState(ctx context.Context, userID shared.UserID, id string) (achievement.State, error) {
	rec, err := l.Load(ctx, userID)
	if err != nil {
		return achievement.State{}, err
	}
	return rec.AchievementState(id), nil
}

// SetAchievementState persists a full state through read-modify-write.
func (l *Ledger) SetAchievementState(ctx context.Context, userID shared.UserID, st achievement.State, now time.Time) error {
	rec, err := l.Load(ctx, userID)
	if err != nil {
		return err
	}
	next := rec.Clone()
	next.SetAchievementState(st)
	return l.Save(ctx, next, now)
}
