package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/artloop/progression-engine/config"
	"github.com/artloop/progression-engine/internal/application/engine"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/infrastructure/feedback"
	"github.com/artloop/progression-engine/internal/infrastructure/locking"
	"github.com/artloop/progression-engine/internal/infrastructure/messaging"
	"github.com/artloop/progression-engine/internal/infrastructure/metrics"
	"github.com/artloop/progression-engine/internal/infrastructure/persistence"
	"github.com/artloop/progression-engine/internal/infrastructure/persistence/kvstore"
	"github.com/artloop/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/artloop/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/artloop/progression-engine/internal/infrastructure/reporting"
	"github.com/artloop/progression-engine/internal/interface/http/handlers"
	"github.com/artloop/progression-engine/pkg/logger"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION GRAPH
// Everything a command needs, built from config in dependency order.
// ══════════════════════════════════════════════════════════════════════════════

type app struct {
	cfg     *config.Config
	log     *logger.Logger
	engine  *engine.Engine
	metrics *metrics.Collector
	health  *handlers.CompositeHealthChecker
	db      *postgres.Connection

	closers []func(context.Context) error
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for _, fn := range slices.Backward(a.closers) {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// bootstrap wires the engine. On error everything acquired so far is closed.
func bootstrap(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{
		cfg:    cfg,
		log:    log,
		health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	loc, err := timeutil.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return nil, err
	}
	slogger := log.Slog()

	// ─────────────────────────────────────────────────────────────────────────
	// Backends
	// ─────────────────────────────────────────────────────────────────────────
	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		log.Info("connecting to Redis...", logger.String("host", cfg.Redis.Host), logger.Int("port", cfg.Redis.Port))
		redisClient, err = redis.NewClient(ctx, redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.onClose(func(context.Context) error { return redisClient.Close() })
		a.health.AddCheck("redis", handlers.NewPingCheck(redisClient))
	}

	var store progression.Store
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		log.Info("connecting to database...")
		a.db, err = postgres.Connect(ctx, cfg.Storage.DatabaseURL, postgres.PoolOptions{
			MaxConns:          int32(cfg.Storage.MaxConns),
			MinConns:          int32(cfg.Storage.MinConns),
			MaxConnLifetime:   cfg.Storage.ConnMaxLifetime,
			MaxConnIdleTime:   cfg.Storage.ConnMaxIdleTime,
			HealthCheckPeriod: postgres.DefaultPoolOptions().HealthCheckPeriod,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db := a.db
		a.onClose(func(context.Context) error { db.Close(); return nil })
		a.health.AddCheck("postgres", handlers.NewPingCheck(db))
		store = postgres.NewUserStore(db, loc)
	case config.BackendRedis:
		store = kvstore.NewUserStore(redisClient, cfg.Storage.KeyPrefix)
	default:
		store = kvstore.NewUserStore(kvstore.NewMemory(), cfg.Storage.KeyPrefix)
	}
	guarded := persistence.NewGuardedStore(store, slogger)
	a.health.AddCheck("identity_store_circuit", guarded.Check)
	store = guarded

	var locker progression.Locker = locking.NewKeyedMutex()
	if cfg.Lock.Backend == config.LockRedis {
		locker = redis.NewLocker(redisClient, redis.LockerConfig{
			TTL:         cfg.Lock.TTL,
			MaxAttempts: cfg.Lock.Attempts,
			Logger:      slogger,
		})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Events, reports, celebrations
	// ─────────────────────────────────────────────────────────────────────────
	notifier := messaging.NewNotifier(messaging.NotifierConfig{Logger: slogger})
	reporter := reporting.New(log)
	celebrator := feedback.NewLogCelebrator(log)

	if cfg.Observability.MetricsEnabled {
		a.metrics = metrics.New(true)
		store = metrics.InstrumentStore(store, a.metrics)
		notifier.Subscribe(a.metrics.Handle)
		reporter.OnReport(a.metrics.ObserveReport)
		celebrator.OnCelebrate(a.metrics.ObserveCelebration)
	}

	if cfg.Events.RedisChannel != "" {
		bridge := messaging.NewBridge(redisClient, cfg.Events.RedisChannel)
		forwarder := messaging.NewAsyncSubscriber(bridge.Handle, messaging.AsyncSubscriberConfig{
			Name:      "redis_bridge",
			QueueSize: cfg.Events.QueueSize,
			Logger:    slogger,
		})
		notifier.Subscribe(forwarder.Handle)
		a.onClose(forwarder.Close)
		log.Info("forwarding events", logger.String("channel", bridge.Channel()), logger.String("instance_id", bridge.InstanceID()))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Engine
	// ─────────────────────────────────────────────────────────────────────────
	p := cfg.Progression
	a.engine, err = engine.New(engine.Config{
		Store:      store,
		Locker:     locker,
		Notifier:   notifier,
		Celebrator: celebrator,
		Reporter:   reporter,
		Clock:      timeutil.SystemClock{Loc: loc},
		Logger:     slogger,
		Rewards: progression.Rewards{
			LessonBase:         p.LessonXP,
			LessonScoreDivisor: p.LessonScoreDivisor,
			Artwork:            p.ArtworkXP,
			Share:              p.ShareXP,
			Challenge:          p.ChallengeXP,
			ChallengeWinBonus:  p.ChallengeWinBonus,
		},
		GoalPolicy: progression.GoalPolicy{
			Min:        p.GoalMin,
			Max:        p.GoalMax,
			Multiplier: p.GoalMultiplier,
		},
		StoreTimeout:   p.StoreTimeout,
		UnlockAttempts: p.RetryAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	log.Info("engine ready",
		logger.String("storage", cfg.Storage.Backend),
		logger.String("lock", cfg.Lock.Backend),
		logger.String("timezone", cfg.App.Timezone),
		logger.Bool("metrics", a.metrics != nil),
	)
	return a, nil
}

// setupLogger builds the process logger and makes it the slog default.
func setupLogger(cfg *config.Config, out io.Writer, level string) *logger.Logger {
	if level == "" {
		level = cfg.Observability.LogLevel
	}
	log := logger.New(logger.Options{
		Output:    out,
		Level:     logger.ParseLevel(level),
		AddCaller: cfg.App.Debug,
	}).With(logger.String("service", cfg.App.Name), logger.String("env", string(cfg.App.Environment)))
	slog.SetDefault(log.Slog())
	return log
}
