// Package feedback provides the celebration sink used on unlock.
package feedback

import (
	"slices"
	"sync"

	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/pkg/logger"
)

// LogCelebrator records celebrations in the log. A server has no device to
// vibrate, so each trigger becomes a debug line and a counter bump.
type LogCelebrator struct {
	log *logger.Logger

	mu     sync.Mutex
	counts map[progression.Intensity]int
	hooks  []func(progression.Intensity)
}

var _ progression.Celebrator = (*LogCelebrator)(nil)

// NewLogCelebrator creates a LogCelebrator. A nil log uses logger.Default().
func NewLogCelebrator(log *logger.Logger) *LogCelebrator {
	if log == nil {
		log = logger.Default()
	}
	return &LogCelebrator{
		log:    log.With(logger.Component("celebrator")),
		counts: make(map[progression.Intensity]int),
	}
}

// OnCelebrate registers fn to run on every trigger.
func (c *LogCelebrator) OnCelebrate(fn func(progression.Intensity)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Celebrate implements progression.Celebrator. It never blocks on I/O and
// never panics on a misbehaving hook.
func (c *LogCelebrator) Celebrate(intensity progression.Intensity) {
	c.mu.Lock()
	c.counts[intensity]++
	hooks := slices.Clone(c.hooks)
	c.mu.Unlock()

	for _, fn := range hooks {
		c.run(fn, intensity)
	}
	c.log.Debug("celebration triggered", logger.String("intensity", string(intensity)))
}

func (c *LogCelebrator) run(fn func(progression.Intensity), intensity progression.Intensity) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("celebration hook panicked", logger.Any("panic", r))
		}
	}()
	fn(intensity)
}

// Count returns how many celebrations of intensity were triggered.
func (c *LogCelebrator) Count(intensity progression.Intensity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[intensity]
}
