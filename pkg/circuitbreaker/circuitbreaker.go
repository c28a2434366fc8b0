// Package circuitbreaker stops callers from piling requests onto a backend
// that keeps failing. After a run of counted failures the breaker opens and
// rejects calls until a cool-down passes; then a limited number of probe
// calls decide whether it closes again.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	// StateClosed - calls go through.
	StateClosed State = iota

	// StateOpen - calls are rejected with ErrOpen.
	StateOpen

	// StateHalfOpen - a few probes go through, the rest get ErrProbing.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrOpen is returned without calling the backend while the breaker is open.
	ErrOpen = errors.New("circuitbreaker: open")

	// ErrProbing is returned while the half-open probe slots are taken.
	ErrProbing = errors.New("circuitbreaker: probe in flight")
)

// IsRejected reports whether err came from the breaker rather than the backend.
func IsRejected(err error) bool {
	return errors.Is(err, ErrOpen) || errors.Is(err, ErrProbing)
}

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS
// ══════════════════════════════════════════════════════════════════════════════

// Settings tunes a Breaker. Zero fields take the defaults.
type Settings struct {
	// Name - shows up in transition callbacks.
	Name string

	// Trip - consecutive counted failures that open the breaker (default 5).
	Trip int

	// Recover - consecutive probe successes that close it again (default 1).
	Recover int

	// Cooldown - time spent open before probing (default 10s).
	Cooldown time.Duration

	// Probes - concurrent calls allowed while half-open (default 1).
	Probes int

	// Counts - decides which errors count against the backend. Nil counts
	// every non-nil error.
	Counts func(error) bool

	// OnTransition - called under the breaker lock on every state change.
	OnTransition func(name string, from, to State)

	// Now - time source, for tests.
	Now func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.Trip <= 0 {
		s.Trip = 5
	}
	if s.Recover <= 0 {
		s.Recover = 1
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 10 * time.Second
	}
	if s.Probes <= 0 {
		s.Probes = 1
	}
	if s.Counts == nil {
		s.Counts = func(err error) bool { return err != nil }
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is a point-in-time view of a Breaker.
type Snapshot struct {
	State     State
	Failures  int // consecutive counted failures
	Successes int // consecutive successes since the last failure
	Rejected  int // calls refused since creation
	OpenedAt  time.Time
}

// Breaker is safe for concurrent use.
type Breaker struct {
	set Settings

	mu       sync.Mutex
	state    State
	failures int
	success  int
	inFlight int
	rejected int
	openedAt time.Time
}

// New creates a closed breaker.
func New(set Settings) *Breaker {
	return &Breaker{set: set.withDefaults()}
}

// Do runs fn unless the breaker rejects the call.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.record(probe, err)
	return err
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.set.Now().Sub(b.openedAt) < b.set.Cooldown {
			b.rejected++
			return false, ErrOpen
		}
		b.moveTo(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.inFlight >= b.set.Probes {
			b.rejected++
			return false, ErrProbing
		}
		b.inFlight++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe && b.inFlight > 0 {
		b.inFlight--
	}

	if err != nil && b.set.Counts(err) {
		b.failures++
		b.success = 0
		if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.set.Trip) {
			b.openedAt = b.set.Now()
			b.moveTo(StateOpen)
		}
		return
	}

	b.failures = 0
	b.success++
	if b.state == StateHalfOpen && b.success >= b.set.Recover {
		b.moveTo(StateClosed)
	}
}

func (b *Breaker) moveTo(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.failures, b.success, b.inFlight = 0, 0, 0
	if b.set.OnTransition != nil {
		b.set.OnTransition(b.set.Name, from, to)
	}
}

// State returns the current position. An open breaker whose cool-down has
// passed still reports open until the next call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the breaker counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:     b.state,
		Failures:  b.failures,
		Successes: b.success,
		Rejected:  b.rejected,
		OpenedAt:  b.openedAt,
	}
}

// Name returns Settings.Name.
func (b *Breaker) Name() string {
	return b.set.Name
}
