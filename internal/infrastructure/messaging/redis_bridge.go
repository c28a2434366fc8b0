package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/artloop/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB BRIDGE
// Forwards every progression event to a pub/sub channel as a JSON envelope,
// for analytics and other processes.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultChannel is the channel events are forwarded to.
const DefaultChannel = "progression:events"

// ChannelPublisher publishes a raw payload on a channel. The Redis client
// implements it.
type ChannelPublisher interface {
	PublishMessage(ctx context.Context, channel string, payload []byte) error
}

// Envelope is the wire form of a forwarded event.
type Envelope struct {
	InstanceID  string           `json:"instance_id"`
	EventID     string           `json:"event_id"`
	EventType   shared.EventType `json:"event_type"`
	AggregateID string           `json:"aggregate_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Payload     json.RawMessage  `json:"payload"`
}

// Bridge forwards events to a ChannelPublisher.
type Bridge struct {
	client     ChannelPublisher
	channel    string
	instanceID string
}

// NewBridge creates a bridge. An empty channel uses DefaultChannel.
func NewBridge(client ChannelPublisher, channel string) *Bridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bridge{
		client:     client,
		channel:    channel,
		instanceID: "progressd-" + uuid.NewString()[:8],
	}
}

// InstanceID identifies this process in forwarded envelopes.
func (b *Bridge) InstanceID() string {
	return b.instanceID
}

// Channel returns the target channel.
func (b *Bridge) Channel() string {
	return b.channel
}

// Encode builds the envelope for event.
func (b *Bridge) Encode(event shared.Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event.EventType(), err)
	}

	data, err := json.Marshal(Envelope{
		InstanceID:  b.instanceID,
		EventID:     event.EventID(),
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Handle is a shared.EventHandler that forwards event.
func (b *Bridge) Handle(ctx context.Context, event shared.Event) error {
	data, err := b.Encode(event)
	if err != nil {
		return err
	}
	if err := b.client.PublishMessage(ctx, b.channel, data); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}
