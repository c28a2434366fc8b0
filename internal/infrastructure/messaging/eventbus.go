// Package messaging fans progression events out to subscribers: in-process
// handlers, the Redis bridge, and the metrics collector.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/artloop/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// Notifier delivers every published event to every subscriber, synchronously
// and in subscription order. A failing or panicking subscriber is logged and
// skipped; Publish itself never fails.
type Notifier struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *slog.Logger
	stats  *NotifierStats
}

type subscription struct {
	id      uint64
	handler shared.EventHandler
}

// NotifierConfig contains configuration for Notifier.
type NotifierConfig struct {
	// Logger - subscriber failures are logged here.
	Logger *slog.Logger
}

// NewNotifier creates a Notifier with no subscribers.
func NewNotifier(config NotifierConfig) *Notifier {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Notifier{
		logger: config.Logger.With("component", "notifier"),
		stats:  &NotifierStats{},
	}
}

var _ shared.EventPublisher = (*Notifier)(nil)

// Subscribe registers handler. The returned function removes it and may be
// called any number of times. A nil handler is ignored.
func (n *Notifier) Subscribe(handler shared.EventHandler) (unsubscribe func()) {
	if handler == nil {
		return func() {}
	}

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, handler: handler})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(id) })
	}
}

func (n *Notifier) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, s := range n.subs {
		if s.id == id {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of registered handlers.
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Publish delivers event to a snapshot of the current subscribers.
func (n *Notifier) Publish(ctx context.Context, event shared.Event) {
	if event == nil {
		return
	}

	n.mu.RLock()
	subs := make([]subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	n.stats.published.Add(1)
	for _, s := range subs {
		if err := n.deliver(ctx, s.handler, event); err != nil {
			n.stats.failures.Add(1)
			n.logger.Error("subscriber failed",
				"event_type", event.EventType(),
				"event_id", event.EventID(),
				"aggregate_id", event.AggregateID(),
				"error", err,
			)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, handler shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			n.stats.panics.Add(1)
			n.logger.Error("subscriber panic recovered",
				"event_type", event.EventType(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(ctx, event)
}

// Stats returns the delivery counters.
func (n *Notifier) Stats() NotifierStatsSnapshot {
	return n.stats.snapshot()
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// NotifierStats counts deliveries.
type NotifierStats struct {
	published atomic.Int64
	failures  atomic.Int64
	panics    atomic.Int64
}

// NotifierStatsSnapshot is a point-in-time copy of NotifierStats.
type NotifierStatsSnapshot struct {
	Published int64
	Failures  int64
	Panics    int64
}

func (s *NotifierStats) snapshot() NotifierStatsSnapshot {
	return NotifierStatsSnapshot{
		Published: s.published.Load(),
		Failures:  s.failures.Load(),
		Panics:    s.panics.Load(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrHandlerPanic wraps a recovered subscriber panic.
	ErrHandlerPanic = errors.New("subscriber panicked")

	// ErrQueueFull is returned when an async subscriber drops an event.
	ErrQueueFull = errors.New("subscriber queue is full")

	// ErrClosed is returned by an async subscriber after Close.
	ErrClosed = errors.New("subscriber is closed")
)
