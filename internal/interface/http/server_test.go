package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artloop/progression-engine/internal/application/engine"
	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/infrastructure/locking"
	"github.com/artloop/progression-engine/internal/infrastructure/messaging"
	"github.com/artloop/progression-engine/internal/infrastructure/persistence/kvstore"
	"github.com/artloop/progression-engine/internal/interface/http/handlers"
	"github.com/artloop/progression-engine/pkg/logger"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

var today = time.Date(2024, time.June, 10, 15, 0, 0, 0, time.UTC)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func newTestServer(t *testing.T, mutate func(*Config, *Dependencies)) *Server {
	t.Helper()
	e, err := engine.New(engine.Config{
		Store:        kvstore.NewUserStore(kvstore.NewMemory(), ""),
		Locker:       locking.NewKeyedMutex(),
		Notifier:     messaging.NewNotifier(messaging.NotifierConfig{}),
		Clock:        timeutil.FixedClock{T: today},
		StoreTimeout: time.Second,
	})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	deps := Dependencies{
		Engine: e,
		Logger: logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError}),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	s := NewServer(cfg, deps)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/health", "/healthz", "/ready", "/live"} {
		rec, env := do(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, env.Success, path)
	}
}

func TestHealth_FailingCheck(t *testing.T) {
	s := newTestServer(t, func(_ *Config, d *Dependencies) {
		checker := handlers.NewCompositeHealthChecker("test")
		checker.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
		d.HealthChecker = checker
	})

	rec, env := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	status := decode[handlers.HealthStatus](t, env)
	assert.False(t, status.Healthy)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)

	rec, _ = do(t, s, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t, nil)
	rec, _ := do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s = newTestServer(t, func(_ *Config, d *Dependencies) {
		d.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("progression_level_ups_total 0\n"))
		})
	})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	out := httptest.NewRecorder()
	s.Handler().ServeHTTP(out, req)
	assert.Equal(t, http.StatusOK, out.Code)
	assert.Contains(t, out.Body.String(), "progression_level_ups_total")
}

// ══════════════════════════════════════════════════════════════════════════════
// API
// ══════════════════════════════════════════════════════════════════════════════

func TestCatalog(t *testing.T) {
	s := newTestServer(t, nil)

	_, env := do(t, s, http.MethodGet, "/api/v1/achievements", nil)
	all := decode[[]achievement.Definition](t, env)
	assert.Len(t, all, achievement.DefaultCatalog().Len())

	_, env = do(t, s, http.MethodGet, "/api/v1/achievements?category=streak", nil)
	streak := decode[[]achievement.Definition](t, env)
	require.Len(t, streak, 3)
	assert.Equal(t, "streak_7", streak[0].ID)

	rec, env := do(t, s, http.MethodGet, "/api/v1/achievements?category=naps", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", env.Error.Code)
}

func TestCreateUser(t *testing.T) {
	s := newTestServer(t, nil)

	rec, env := do(t, s, http.MethodPost, "/api/v1/users", createUserRequest{UserID: "ana"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[map[string]any](t, env)
	assert.Equal(t, "ana", created["user_id"])
	assert.EqualValues(t, 1, created["level"])

	rec, env = do(t, s, http.MethodPost, "/api/v1/users", createUserRequest{UserID: "ana"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", env.Error.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/users", createUserRequest{UserID: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, s, http.MethodPost, "/api/v1/users", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", env.Error.Code)
}

func TestLessonFlow(t *testing.T) {
	s := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/api/v1/users", createUserRequest{UserID: "ana"})

	rec, env := do(t, s, http.MethodPost, "/api/v1/users/ana/lessons", map[string]any{"lesson_id": "l-1", "score": 80})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[actionResponse](t, env)
	assert.Equal(t, "lesson_completed", res.Kind)
	assert.Equal(t, 90, res.XPAwarded)
	assert.Equal(t, 140, res.TotalXP)
	assert.Equal(t, 1, res.StreakDays)
	require.Len(t, res.Unlocked, 1)
	assert.Equal(t, "first_lesson", res.Unlocked[0].ID)
	assert.NotNil(t, res.LevelUps)

	_, env = do(t, s, http.MethodGet, "/api/v1/users/ana/progression", nil)
	card := decode[map[string]any](t, env)
	assert.EqualValues(t, 140, card["total_xp"])
	assert.EqualValues(t, 1, card["achievements_unlocked"])

	_, env = do(t, s, http.MethodGet, "/api/v1/users/ana/achievements", nil)
	summary := decode[map[string]any](t, env)
	assert.EqualValues(t, 1, summary["unlocked"])

	_, env = do(t, s, http.MethodGet, "/api/v1/users/ana/daily-goal", nil)
	goal := decode[map[string]any](t, env)
	assert.EqualValues(t, 168, goal["goal"])
}

func TestActions(t *testing.T) {
	s := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/api/v1/users", createUserRequest{UserID: "ana"})

	rec, env := do(t, s, http.MethodPost, "/api/v1/users/ana/artworks", map[string]any{"artwork_id": "a-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, decode[actionResponse](t, env).XPAwarded)

	rec, env = do(t, s, http.MethodPost, "/api/v1/users/ana/artworks/a-1/share", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, decode[actionResponse](t, env).XPAwarded)

	rec, env = do(t, s, http.MethodPost, "/api/v1/users/ana/challenges", map[string]any{"challenge_id": "c-1", "won": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 125, decode[actionResponse](t, env).XPAwarded)

	rec, env = do(t, s, http.MethodPost, "/api/v1/users/ana/actions", actionRequest{Kind: "artwork_created", RefID: "a-2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "artwork_created", decode[actionResponse](t, env).Kind)

	rec, env = do(t, s, http.MethodPost, "/api/v1/users/ana/actions", actionRequest{Kind: "nap", RefID: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", env.Error.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/users/ana/lessons", map[string]any{"lesson_id": "l-1", "score": 101})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoActiveProfile(t *testing.T) {
	s := newTestServer(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/users/ghost/progression"},
		{http.MethodGet, "/api/v1/users/ghost/achievements"},
		{http.MethodGet, "/api/v1/users/ghost/daily-goal"},
		{http.MethodPost, "/api/v1/users/ghost/artworks/a-1/share"},
		{http.MethodPost, "/api/v1/users/ghost/activity"},
	} {
		rec, env := do(t, s, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.path)
		require.NotNil(t, env.Error, tc.path)
		assert.Equal(t, "no_active_profile", env.Error.Code, tc.path)
	}
}

func TestActivityAndCheck(t *testing.T) {
	s := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/api/v1/users", createUserRequest{UserID: "ana"})

	rec, env := do(t, s, http.MethodPost, "/api/v1/users/ana/activity", activityRequest{Date: "2024-06-10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	act := decode[activityResponse](t, env)
	assert.Equal(t, 1, act.StreakDays)
	assert.True(t, act.Counted)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/users/ana/activity", activityRequest{Date: "2024-06-09"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "earlier day is rejected")

	rec, _ = do(t, s, http.MethodPost, "/api/v1/users/ana/activity", activityRequest{Date: "06/10/2024"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, s, http.MethodPost, "/api/v1/users/ana/achievements/check", checkRequest{Category: "creativity", Delta: 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	check := decode[checkResponse](t, env)
	require.Len(t, check.Unlocked, 1)
	assert.Equal(t, "first_artwork", check.Unlocked[0].ID)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/users/ana/achievements/check", checkRequest{Category: "creativity", Delta: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

func TestRequestID(t *testing.T) {
	s := newTestServer(t, nil)

	rec, env := do(t, s, http.MethodGet, "/live", nil)
	id := rec.Header().Get("X-Request-ID")
	assert.Len(t, id, 36)
	assert.Equal(t, id, env.RequestID)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-42")
	out := httptest.NewRecorder()
	s.Handler().ServeHTTP(out, req)
	assert.Equal(t, "req-42", out.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", out.Header().Get("X-Content-Type-Options"))
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *Config, _ *Dependencies) { c.RateLimitPerMinute = 2 })

	for range 2 {
		rec, _ := do(t, s, http.MethodGet, "/live", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := do(t, s, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", env.Error.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

type panicky struct{ Progression }

func (panicky) Catalog() *achievement.Catalog { panic("boom") }

func TestRecovery(t *testing.T) {
	s := newTestServer(t, func(_ *Config, d *Dependencies) { d.Engine = panicky{d.Engine} })

	rec, env := do(t, s, http.MethodGet, "/api/v1/achievements", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_server_error", env.Error.Code)
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, func(c *Config, _ *Dependencies) { c.MaxBodyBytes = 16 })

	rec, _ := do(t, s, http.MethodPost, "/api/v1/users", createUserRequest{UserID: "a-very-long-user-identifier"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUserReadsAreNotCached(t *testing.T) {
	s := newTestServer(t, nil)
	rec, _ := do(t, s, http.MethodPost, "/api/v1/users", createUserRequest{UserID: "ana"})
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, path := range []string{
		"/api/v1/users/ana/progression",
		"/api/v1/users/ana/achievements",
		"/api/v1/users/ana/daily-goal",
	} {
		rec, _ := do(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store", path)
	}

	rec, _ = do(t, s, http.MethodGet, "/api/v1/achievements", nil)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}
