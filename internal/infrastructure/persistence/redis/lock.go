package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTED LOCK
// SET NX PX with a random token; release deletes the key only while it still
// carries our token.
// ══════════════════════════════════════════════════════════════════════════════

// releaseScript deletes KEYS[1] only if it holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errLockBusy = errors.New("redis: lock is held")

// LockerConfig contains configuration for Locker.
type LockerConfig struct {
	// TTL - how long a lock survives a crashed holder.
	TTL time.Duration

	// RetryInterval - initial wait between acquisition attempts.
	RetryInterval time.Duration

	// MaxAttempts - acquisition attempts before giving up.
	MaxAttempts int

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultLockerConfig returns sensible defaults.
func DefaultLockerConfig() LockerConfig {
	return LockerConfig{
		TTL:           10 * time.Second,
		RetryInterval: 20 * time.Millisecond,
		MaxAttempts:   50,
	}
}

// Locker is a distributed progression.Locker.
type Locker struct {
	client  *Client
	ttl     time.Duration
	retrier *retry.Retrier
	logger  *slog.Logger
}

var _ progression.Locker = (*Locker)(nil)

// NewLocker creates a distributed locker on client.
func NewLocker(client *Client, config LockerConfig) *Locker {
	defaults := DefaultLockerConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaults.RetryInterval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Locker{
		client:  client,
		ttl:     config.TTL,
		retrier: retry.LockRetrier(config.MaxAttempts, config.RetryInterval),
		logger:  config.Logger.With("component", "redis_lock"),
	}
}

// Lock implements progression.Locker.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := LockKey(key)
	token := uuid.NewString()

	err := l.retrier.Do(ctx, func(ctx context.Context) error {
		ok, err := l.client.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		switch {
		case err != nil:
			return retry.Retryable(err)
		case !ok:
			return retry.Retryable(errLockBusy)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errLockBusy) || ctx.Err() != nil {
			return nil, shared.WrapError("redis", "Lock", shared.ErrPersistence, "timed out waiting for "+key, shared.ErrLockTimeout)
		}
		return nil, shared.WrapError("redis", "Lock", shared.ErrPersistence, "lock backend unavailable", err)
	}

	return func() {
		// Release must outlive a cancelled request context.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client.rdb, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("lock release failed", "key", redisKey, "error", err)
		}
	}, nil
}
