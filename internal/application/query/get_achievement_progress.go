// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENT PROGRESS QUERY
// Summary of every catalog entry for one user: unlocked, in progress, locked.
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementProgressQuery contains the query parameters.
type GetAchievementProgressQuery struct {
	// UserID - whose progress to summarize.
	UserID shared.UserID

	// Category - optional filter; empty means every category.
	Category achievement.Category
}

// Validate checks the query parameters.
func (q GetAchievementProgressQuery) Validate() error {
	if !q.UserID.IsValid() {
		return shared.Invalid("query", "GetAchievementProgress", "user id is required")
	}
	if q.Category != "" && !q.Category.IsValid() {
		return shared.ErrInvalidCategory
	}
	return nil
}

// AchievementEntryDTO pairs a definition with the user's state.
type AchievementEntryDTO struct {
	achievement.Definition
	Progress   int        `json:"progress"`
	Fraction   float64    `json:"fraction"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// AchievementProgressDTO is the achievement summary.
type AchievementProgressDTO struct {
	// Total - number of catalog entries considered.
	Total int `json:"total"`

	// Unlocked - number of unlocked entries.
	Unlocked int `json:"unlocked"`

	// UnlockedList - unlocked entries in catalog order.
	UnlockedList []AchievementEntryDTO `json:"unlocked_list"`

	// InProgress - started but not unlocked.
	InProgress []AchievementEntryDTO `json:"in_progress"`

	// Locked - never touched.
	Locked []achievement.Definition `json:"locked"`

	// XPEarned - total XP granted by unlocked achievements.
	XPEarned int `json:"xp_earned"`
}

// Completion returns the unlocked share in [0, 1].
func (d *AchievementProgressDTO) Completion() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Unlocked) / float64(d.Total)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementProgressHandler handles the query.
type GetAchievementProgressHandler struct {
	catalog *achievement.Catalog
	ledger  *progression.Ledger
}

// NewGetAchievementProgressHandler creates a new handler.
func NewGetAchievementProgressHandler(catalog *achievement.Catalog, ledger *progression.Ledger) *GetAchievementProgressHandler {
	return &GetAchievementProgressHandler{catalog: catalog, ledger: ledger}
}

// Handle executes the query. A missing user is a precondition failure.
func (h *GetAchievementProgressHandler) Handle(ctx context.Context, q GetAchievementProgressQuery) (*AchievementProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	rec, err := loadProfile(ctx, h.ledger, q.UserID, "GetAchievementProgress")
	if err != nil {
		return nil, err
	}

	return Summarize(h.catalog, rec, q.Category), nil
}

// Summarize buckets every definition of the catalog (optionally one
// category) by the record's state.
func Summarize(catalog *achievement.Catalog, rec *progression.Record, cat achievement.Category) *AchievementProgressDTO {
	dto := &AchievementProgressDTO{
		UnlockedList: []AchievementEntryDTO{},
		InProgress:   []AchievementEntryDTO{},
		Locked:       []achievement.Definition{},
	}

	seq := catalog.All()
	if cat != "" {
		seq = catalog.ListByCategory(cat)
	}

	for def := range seq {
		dto.Total++
		st := rec.AchievementState(def.ID)
		entry := AchievementEntryDTO{
			Definition: def,
			Progress:   st.Progress,
			Fraction:   st.Fraction(def),
			UnlockedAt: st.UnlockedAt,
		}
		switch st.Status() {
		case achievement.StatusUnlocked:
			dto.Unlocked++
			dto.XPEarned += def.XPReward
			dto.UnlockedList = append(dto.UnlockedList, entry)
		case achievement.StatusInProgress:
			dto.InProgress = append(dto.InProgress, entry)
		default:
			dto.Locked = append(dto.Locked, def)
		}
	}

	return dto
}

// loadProfile reads a record for a query and maps a missing user to the
// no-active-profile precondition.
func loadProfile(ctx context.Context, ledger *progression.Ledger, userID shared.UserID, op string) (*progression.Record, error) {
	rec, err := ledger.Load(ctx, userID)
	if shared.IsNotFound(err) {
		return nil, shared.WrapError("query", op, shared.ErrPrecondition, "no active profile", shared.ErrNoActiveProfile)
	}
	return rec, err
}
