package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASYNC SUBSCRIBER
// Moves a slow subscriber (a network bridge) off the notification path. Events
// are queued, delivered by one worker in publish order, retried with backoff,
// and parked in a dead letter queue when every attempt fails.
// ══════════════════════════════════════════════════════════════════════════════

// AsyncSubscriber wraps a handler behind a bounded queue.
type AsyncSubscriber struct {
	name      string
	handler   shared.EventHandler
	queue     chan shared.Event
	retrier   *retry.Retrier
	timeout   time.Duration
	deadQueue *DeadLetterQueue
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// AsyncSubscriberConfig contains configuration for AsyncSubscriber.
type AsyncSubscriberConfig struct {
	// Name - identifies the subscriber in logs and dead letters.
	Name string

	// QueueSize - events buffered before Handle starts dropping.
	QueueSize int

	// MaxAttempts - delivery attempts per event.
	MaxAttempts int

	// InitialBackoff - wait before the first retry.
	InitialBackoff time.Duration

	// Timeout - bound on a single delivery attempt.
	Timeout time.Duration

	// DeadLetterSize - failed events kept for inspection.
	DeadLetterSize int

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultAsyncSubscriberConfig returns sensible defaults.
func DefaultAsyncSubscriberConfig(name string) AsyncSubscriberConfig {
	return AsyncSubscriberConfig{
		Name:           name,
		QueueSize:      256,
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		Timeout:        2 * time.Second,
		DeadLetterSize: 100,
	}
}

// NewAsyncSubscriber starts the worker for handler. Call Close to drain it.
func NewAsyncSubscriber(handler shared.EventHandler, config AsyncSubscriberConfig) *AsyncSubscriber {
	defaults := DefaultAsyncSubscriberConfig(config.Name)
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &AsyncSubscriber{
		name:    config.Name,
		handler: handler,
		queue:   make(chan shared.Event, config.QueueSize),
		retrier: retry.New(
			retry.WithMaxAttempts(config.MaxAttempts),
			retry.WithInitialDelay(config.InitialBackoff),
			retry.WithMaxDelay(10*config.InitialBackoff),
		),
		timeout:   config.Timeout,
		deadQueue: NewDeadLetterQueue(config.DeadLetterSize),
		logger:    config.Logger.With("component", "async_subscriber", "subscriber", config.Name),
		done:      make(chan struct{}),
	}

	go s.run()
	return s
}

// Handle enqueues event. It matches shared.EventHandler so the subscriber
// can be registered on a Notifier directly. A full queue drops the event.
func (s *AsyncSubscriber) Handle(_ context.Context, event shared.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- event:
		return nil
	default:
		s.deadQueue.Add(DeadLetterEntry{
			Event:       event,
			HandlerName: s.name,
			Error:       ErrQueueFull,
			FailedAt:    time.Now().UTC(),
		})
		return ErrQueueFull
	}
}

func (s *AsyncSubscriber) run() {
	defer close(s.done)

	for event := range s.queue {
		s.process(event)
	}
}

func (s *AsyncSubscriber) process(event shared.Event) {
	attempts := 0
	err := s.retrier.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return retry.Retryable(s.invoke(ctx, event))
	})
	if err == nil {
		return
	}

	s.deadQueue.Add(DeadLetterEntry{
		Event:       event,
		HandlerName: s.name,
		Error:       err,
		Attempts:    attempts,
		FailedAt:    time.Now().UTC(),
	})
	s.logger.Error("event delivery failed",
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"attempts", attempts,
		"error", err,
	)
}

func (s *AsyncSubscriber) invoke(ctx context.Context, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic recovered",
				"event_type", event.EventType(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return s.handler(ctx, event)
}

// Close stops accepting events and waits until the queue is drained or ctx
// ends.
func (s *AsyncSubscriber) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeadLetters returns the dead letter queue.
func (s *AsyncSubscriber) DeadLetters() *DeadLetterQueue {
	return s.deadQueue
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry represents a failed event.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	Attempts    int
	FailedAt    time.Time
}

// DeadLetterQueue stores events that failed processing, oldest dropped
// first when full.
type DeadLetterQueue struct {
	mu      sync.RWMutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a new dead letter queue.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add adds an entry to the queue.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns all entries.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]DeadLetterEntry, len(q.entries))
	copy(result, q.entries)
	return result
}

// Size returns the current queue size.
func (q *DeadLetterQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}

	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}
