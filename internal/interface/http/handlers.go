package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/artloop/progression-engine/internal/application/command"
	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "Progression Engine API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":       "/health",
			"achievements": "/api/v1/achievements",
			"users":        "/api/v1/users",
		},
	}, nil)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status, nil)
		return
	}
	writeJSON(w, r, http.StatusOK, status, nil)
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		}, nil)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"}, nil)
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG & ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

// handleCatalog handles GET /api/v1/achievements[?category=skill]
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := s.deps.Engine.Catalog()

	var defs []achievement.Definition
	if raw := r.URL.Query().Get("category"); raw != "" {
		cat, err := achievement.ParseCategory(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		defs = slices.Collect(catalog.ListByCategory(cat))
	} else {
		defs = slices.Collect(catalog.All())
	}
	if defs == nil {
		defs = []achievement.Definition{}
	}

	writeJSON(w, r, http.StatusOK, defs, &ResponseMeta{TotalCount: len(defs)})
}

type createUserRequest struct {
	UserID string `json:"user_id"`
}

// handleCreateUser handles POST /api/v1/users
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := s.deps.Engine.CreateUser(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, rec, nil)
}

// handleGetProgression handles GET /api/v1/users/{id}/progression
func (s *Server) handleGetProgression(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Engine.GetProgression(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto, nil)
}

// handleGetAchievements handles GET /api/v1/users/{id}/achievements
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Engine.GetAchievementProgress(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto, &ResponseMeta{TotalCount: dto.Total})
}

// handleDailyGoal handles GET /api/v1/users/{id}/daily-goal
func (s *Server) handleDailyGoal(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Engine.DailyGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS & STREAK
// ══════════════════════════════════════════════════════════════════════════════

type checkRequest struct {
	Category string `json:"category"`
	Delta    int    `json:"delta"`
}

type checkResponse struct {
	Unlocked []achievement.Definition `json:"unlocked"`
}

// handleCheckAchievements handles POST /api/v1/users/{id}/achievements/check
func (s *Server) handleCheckAchievements(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cat, err := achievement.ParseCategory(req.Category)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	unlocked, err := s.deps.Engine.CheckAchievements(r.Context(), r.PathValue("id"), cat, req.Delta)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, checkResponse{Unlocked: orEmpty(unlocked)}, nil)
}

type activityRequest struct {
	// Date - YYYY-MM-DD in the engine's timezone. Empty means today.
	Date string `json:"date"`
}

type activityResponse struct {
	StreakDays     int                      `json:"streak_days"`
	LongestStreak  int                      `json:"longest_streak"`
	PreviousStreak int                      `json:"previous_streak"`
	Counted        bool                     `json:"counted"`
	StreakBroken   bool                     `json:"streak_broken"`
	Unlocked       []achievement.Definition `json:"unlocked"`
}

// handleRecordActivity handles POST /api/v1/users/{id}/activity
func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var today time.Time
	if req.Date != "" {
		d, err := timeutil.ParseDate(req.Date, s.deps.Engine.Location())
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
		today = d
	}

	res, err := s.deps.Engine.RecordActivity(r.Context(), r.PathValue("id"), today)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, activityResponse{
		StreakDays:     res.Streak.StreakDays,
		LongestStreak:  res.Streak.LongestStreak,
		PreviousStreak: res.PreviousStreak,
		Counted:        res.Streak.Changed,
		StreakBroken:   res.StreakBroken(),
		Unlocked:       orEmpty(res.Unlocked),
	}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIONS
// ══════════════════════════════════════════════════════════════════════════════

type actionRequest struct {
	Kind  string `json:"kind"`
	RefID string `json:"ref_id"`
	Score int    `json:"score"`
	Won   bool   `json:"won"`
}

type actionResponse struct {
	Kind       string                   `json:"kind"`
	XPAwarded  int                      `json:"xp_awarded"`
	Level      int                      `json:"level"`
	TotalXP    int                      `json:"total_xp"`
	StreakDays int                      `json:"streak_days"`
	LevelUps   []progression.LevelUp    `json:"level_ups"`
	Unlocked   []achievement.Definition `json:"unlocked"`
	Warnings   []string                 `json:"warnings,omitempty"`
}

// handleLesson handles POST /api/v1/users/{id}/lessons
func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LessonID string `json:"lesson_id"`
		Score    int    `json:"score"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.record(w, r, command.RecordActionCommand{Kind: command.ActionLessonCompleted, RefID: req.LessonID, Score: req.Score})
}

// handleArtwork handles POST /api/v1/users/{id}/artworks
func (s *Server) handleArtwork(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ArtworkID string `json:"artwork_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.record(w, r, command.RecordActionCommand{Kind: command.ActionArtworkCreated, RefID: req.ArtworkID})
}

// handleShare handles POST /api/v1/users/{id}/artworks/{artworkID}/share
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	s.record(w, r, command.RecordActionCommand{Kind: command.ActionArtworkShared, RefID: r.PathValue("artworkID")})
}

// handleChallenge handles POST /api/v1/users/{id}/challenges
func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChallengeID string `json:"challenge_id"`
		Won         bool   `json:"won"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.record(w, r, command.RecordActionCommand{Kind: command.ActionChallengePlayed, RefID: req.ChallengeID, Won: req.Won})
}

// handleAction handles POST /api/v1/users/{id}/actions
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind, err := command.ParseActionKind(req.Kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.record(w, r, command.RecordActionCommand{Kind: kind, RefID: req.RefID, Score: req.Score, Won: req.Won})
}

func (s *Server) record(w http.ResponseWriter, r *http.Request, cmd command.RecordActionCommand) {
	res, err := s.deps.Engine.RecordAction(r.Context(), r.PathValue("id"), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	levelUps := res.LevelUps
	if levelUps == nil {
		levelUps = []progression.LevelUp{}
	}
	writeJSON(w, r, http.StatusOK, actionResponse{
		Kind:       string(res.Kind),
		XPAwarded:  res.XPAwarded,
		Level:      int(res.Level),
		TotalXP:    int(res.TotalXP),
		StreakDays: res.StreakDays,
		LevelUps:   levelUps,
		Unlocked:   orEmpty(res.Unlocked),
		Warnings:   res.Warnings,
	}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON body into v. An empty body leaves v zero.
// It writes the error response itself and reports whether to continue.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return false
	}
	return true
}

func orEmpty(defs []achievement.Definition) []achievement.Definition {
	if defs == nil {
		return []achievement.Definition{}
	}
	return defs
}
