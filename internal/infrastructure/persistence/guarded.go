// Package persistence holds the storage backends of the engine and the
// decorators shared by all of them.
package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/circuitbreaker"
)

// GuardedStore puts a circuit breaker in front of a progression.Store.
// While the circuit is open every call fails fast with ErrStoreUnavailable.
// Missing users, stale versions and rejected records do not count as store
// failures.
type GuardedStore struct {
	inner   progression.Store
	breaker *circuitbreaker.Breaker
}

var _ progression.Store = (*GuardedStore)(nil)

// NewGuardedStore wraps inner.
func NewGuardedStore(inner progression.Store, logger *slog.Logger) *GuardedStore {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.New(circuitbreaker.Settings{
		Name:     "identity-store",
		Trip:     5,
		Cooldown: 10 * time.Second,
		Counts:   isStoreFailure,
		OnTransition: func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &GuardedStore{inner: inner, breaker: breaker}
}

// Breaker exposes the circuit breaker for health reporting.
func (g *GuardedStore) Breaker() *circuitbreaker.Breaker {
	return g.breaker
}

// Check fails while the circuit is open. It never touches the store.
func (g *GuardedStore) Check(context.Context) error {
	if snap := g.breaker.Snapshot(); snap.State == circuitbreaker.StateOpen {
		return fmt.Errorf("circuit open since %s", snap.OpenedAt.Format(time.RFC3339))
	}
	return nil
}

func isStoreFailure(err error) bool {
	return err != nil && !(shared.IsNotFound(err) || shared.IsConflict(err) || shared.IsValidation(err))
}

func unavailable(err error) error {
	if circuitbreaker.IsRejected(err) {
		return shared.WrapError("persistence", "Guard", shared.ErrPersistence, "identity store circuit open", shared.ErrStoreUnavailable)
	}
	return err
}

// GetUser implements progression.Store.
func (g *GuardedStore) GetUser(ctx context.Context, userID shared.UserID) (*progression.Record, error) {
	rec, err := circuitbreaker.Call(ctx, g.breaker, func(ctx context.Context) (*progression.Record, error) {
		return g.inner.GetUser(ctx, userID)
	})
	return rec, unavailable(err)
}

// CreateUser implements progression.Store.
func (g *GuardedStore) CreateUser(ctx context.Context, rec *progression.Record) error {
	return unavailable(g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.inner.CreateUser(ctx, rec)
	}))
}

// UpdateUser implements progression.Store.
func (g *GuardedStore) UpdateUser(ctx context.Context, rec *progression.Record) error {
	return unavailable(g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.inner.UpdateUser(ctx, rec)
	}))
}

// IncrementStat implements progression.Store.
func (g *GuardedStore) IncrementStat(ctx context.Context, userID shared.UserID, name string) (int, error) {
	n, err := circuitbreaker.Call(ctx, g.breaker, func(ctx context.Context) (int, error) {
		return g.inner.IncrementStat(ctx, userID, name)
	})
	return n, unavailable(err)
}
