// Package kvstore keeps progression records in a key-value backend.
//
// The backend is anything with Get, Set and Remove: an in-process map for
// tests and single-node runs, or Redis for shared deployments. Records are
// stored as JSON under "<prefix><user id>".
package kvstore

import (
	"context"
	"errors"
	"sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// KV CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// ErrKeyNotFound is returned by Get when the key is absent.
var ErrKeyNotFound = errors.New("kvstore: key not found")

// KV is a durable key-value backend.
type KV interface {
	// Get returns the value stored under key or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMORY BACKEND
// ══════════════════════════════════════════════════════════════════════════════

// Memory is an in-process KV. Values are copied in and out.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-process KV.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get implements KV.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set implements KV.
func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Remove implements KV.
func (m *Memory) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
