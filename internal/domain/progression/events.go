package progression

import (
	"time"

	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN EVENTS
// Each notification is one of four tagged variants with a fixed field set.
// Subscribers switch on the concrete type or on EventType().
// ══════════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent - an achievement reached its terminal state.
type AchievementUnlockedEvent struct {
	shared.BaseEvent
	AchievementID string               `json:"achievement_id"`
	Title         string               `json:"title"`
	Category      achievement.Category `json:"category"`
	Rarity        achievement.Rarity   `json:"rarity"`
	XPAwarded     int                  `json:"xp_awarded"`
	UnlockedAt    time.Time            `json:"unlocked_at"`
}

// NewAchievementUnlockedEvent creates the unlock notification.
func NewAchievementUnlockedEvent(userID shared.UserID, def achievement.Definition, at time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventAchievementUnlocked, userID.String(), at),
		AchievementID: def.ID,
		Title:         def.Title,
		Category:      def.Category,
		Rarity:        def.Rarity,
		XPAwarded:     def.XPReward,
		UnlockedAt:    at.UTC(),
	}
}

// AchievementProgressEvent - a non-terminal progress step was persisted.
type AchievementProgressEvent struct {
	shared.BaseEvent
	AchievementID string               `json:"achievement_id"`
	Category      achievement.Category `json:"category"`
	Progress      int                  `json:"progress"`
	MaxProgress   int                  `json:"max_progress"`
}

// NewAchievementProgressEvent creates the progress notification.
func NewAchievementProgressEvent(userID shared.UserID, def achievement.Definition, progress int, at time.Time) AchievementProgressEvent {
	return AchievementProgressEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventAchievementProgress, userID.String(), at),
		AchievementID: def.ID,
		Category:      def.Category,
		Progress:      progress,
		MaxProgress:   def.MaxProgress,
	}
}

// LevelUpEvent - one level boundary was crossed.
type LevelUpEvent struct {
	shared.BaseEvent
	Level         int `json:"level"`
	NextLevelAt   int `json:"next_level_at"`
	XPToNextLevel int `json:"xp_to_next_level"`
}

// NewLevelUpEvent creates a level-up notification.
func NewLevelUpEvent(userID shared.UserID, up LevelUp, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventLevelUp, userID.String(), at),
		Level:         up.Level.Int(),
		NextLevelAt:   up.NextLevelAt.Int(),
		XPToNextLevel: up.XPToNextLevel,
	}
}

// XPGainedEvent - XP was added to the lifetime total.
type XPGainedEvent struct {
	shared.BaseEvent
	Amount  int    `json:"amount"`
	TotalXP int    `json:"total_xp"`
	Source  string `json:"source"`
}

// NewXPGainedEvent creates the XP notification.
func NewXPGainedEvent(userID shared.UserID, amount int, total shared.XP, source string, at time.Time) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventXPGained, userID.String(), at),
		Amount:    amount,
		TotalXP:   total.Int(),
		Source:    source,
	}
}

// XPEvents builds the xp_gained event followed by one level_up per crossing.
func XPEvents(userID shared.UserID, result LevelResult, source string, at time.Time) []shared.Event {
	if result.Gained == 0 {
		return nil
	}
	events := make([]shared.Event, 0, 1+len(result.LevelUps))
	events = append(events, NewXPGainedEvent(userID, result.Gained, result.TotalXP, source, at))
	for _, up := range result.LevelUps {
		events = append(events, NewLevelUpEvent(userID, up, at))
	}
	return events
}

// XP sources.
const (
	SourceLesson    = "lesson"
	SourceArtwork   = "artwork"
	SourceShare     = "share"
	SourceChallenge = "challenge"
)

// AchievementSource is the xp_gained source for an unlock reward.
func AchievementSource(id string) string {
	return "achievement:" + id
}
