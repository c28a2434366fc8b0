package metrics

import (
	"context"
	"time"

	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
)

// InstrumentedStore times every identity-store call into the collector's
// operation histogram.
type InstrumentedStore struct {
	inner     progression.Store
	collector *Collector
}

var _ progression.Store = (*InstrumentedStore)(nil)

// InstrumentStore wraps inner.
func InstrumentStore(inner progression.Store, collector *Collector) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, collector: collector}
}

// observe reads *err when the deferred call runs, after the result is set.
func (s *InstrumentedStore) observe(op string, start time.Time, err *error) {
	s.collector.ObserveOperation(op, time.Since(start).Seconds(), *err)
}

// GetUser implements progression.Store.
func (s *InstrumentedStore) GetUser(ctx context.Context, userID shared.UserID) (rec *progression.Record, err error) {
	defer s.observe("get_user", time.Now(), &err)
	return s.inner.GetUser(ctx, userID)
}

// CreateUser implements progression.Store.
func (s *InstrumentedStore) CreateUser(ctx context.Context, rec *progression.Record) (err error) {
	defer s.observe("create_user", time.Now(), &err)
	return s.inner.CreateUser(ctx, rec)
}

// UpdateUser implements progression.Store.
func (s *InstrumentedStore) UpdateUser(ctx context.Context, rec *progression.Record) (err error) {
	defer s.observe("update_user", time.Now(), &err)
	return s.inner.UpdateUser(ctx, rec)
}

// IncrementStat implements progression.Store.
func (s *InstrumentedStore) IncrementStat(ctx context.Context, userID shared.UserID, name string) (n int, err error) {
	defer s.observe("increment_stat", time.Now(), &err)
	return s.inner.IncrementStat(ctx, userID, name)
}
