// Package shared contains common domain types, errors, and events
// that are used across all domain packages.
package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Progression event types. The set is closed: every notification the engine
// emits carries exactly one of these tags.
const (
	EventAchievementUnlocked EventType = "achievement_unlocked"
	EventAchievementProgress EventType = "achievement_progress"
	EventLevelUp             EventType = "level_up"
	EventXPGained            EventType = "xp_gained"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventID returns a unique identifier for the event.
	EventID() string

	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventID implements Event interface.
func (e BaseEvent) EventID() string {
	return e.ID
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped at the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   at.UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// EventHandler handles one delivered event. A returned error is logged by
// the bus and never reaches the publisher.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher publishes domain events to interested parties. Publishing
// is best-effort and never fails the state change that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

// PublishAll publishes events in order.
func PublishAll(ctx context.Context, p EventPublisher, events ...Event) {
	if p == nil {
		return
	}
	for _, e := range events {
		p.Publish(ctx, e)
	}
}
