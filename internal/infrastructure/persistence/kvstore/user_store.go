package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
)

// DefaultKeyPrefix namespaces progression records in the backend.
const DefaultKeyPrefix = "progression:record:"

// UserStore implements progression.Store over a KV.
//
// Version checks are read-then-write. They are exact within one process; across
// processes the engine's distributed user lock keeps writers apart.
type UserStore struct {
	kv     KV
	prefix string
	mu     sync.Mutex
}

// NewUserStore creates a store over kv. An empty prefix uses DefaultKeyPrefix.
func NewUserStore(kv KV, prefix string) *UserStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &UserStore{kv: kv, prefix: prefix}
}

var _ progression.Store = (*UserStore)(nil)

func (s *UserStore) key(userID shared.UserID) string {
	return s.prefix + userID.String()
}

// GetUser implements progression.Store.
func (s *UserStore) GetUser(ctx context.Context, userID shared.UserID) (*progression.Record, error) {
	return s.read(ctx, userID)
}

// CreateUser implements progression.Store.
func (s *UserStore) CreateUser(ctx context.Context, rec *progression.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.read(ctx, rec.UserID)
	switch {
	case err == nil:
		return shared.ErrUserExists
	case !errors.Is(err, shared.ErrUserNotFound):
		return err
	}

	rec.Version = 1
	if err := s.write(ctx, rec); err != nil {
		rec.Version = 0
		return err
	}
	return nil
}

// UpdateUser implements progression.Store.
func (s *UserStore) UpdateUser(ctx context.Context, rec *progression.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.read(ctx, rec.UserID)
	if err != nil {
		return err
	}
	if stored.Version != rec.Version {
		return shared.ErrStaleRecord
	}

	rec.Version++
	if err := s.write(ctx, rec); err != nil {
		rec.Version--
		return err
	}
	return nil
}

// IncrementStat implements progression.Store.
func (s *UserStore) IncrementStat(ctx context.Context, userID shared.UserID, name string) (int, error) {
	if name == "" {
		return 0, shared.Invalid("kvstore", "IncrementStat", "stat name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(ctx, userID)
	if err != nil {
		return 0, err
	}
	if rec.Stats == nil {
		rec.Stats = make(map[string]int)
	}
	rec.Stats[name]++
	rec.Version++
	if err := s.write(ctx, rec); err != nil {
		return 0, err
	}
	return rec.Stats[name], nil
}

// Delete removes a user's record.
func (s *UserStore) Delete(ctx context.Context, userID shared.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(ctx, s.key(userID)); err != nil {
		return fmt.Errorf("kvstore: remove %s: %w", userID, err)
	}
	return nil
}

func (s *UserStore) read(ctx context.Context, userID shared.UserID) (*progression.Record, error) {
	data, err := s.kv.Get(ctx, s.key(userID))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %s: %w", userID, err)
	}

	var rec progression.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("kvstore: decode %s: %w", userID, err)
	}
	return &rec, nil
}

func (s *UserStore) write(ctx context.Context, rec *progression.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("kvstore: encode %s: %w", rec.UserID, err)
	}
	if err := s.kv.Set(ctx, s.key(rec.UserID), data); err != nil {
		return fmt.Errorf("kvstore: set %s: %w", rec.UserID, err)
	}
	return nil
}
