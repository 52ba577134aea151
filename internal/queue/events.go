package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/mrz-worker/internal/mrz"
)

// Event names published on the outcome channel
const (
	EventMatch   = "scan:match"
	EventNoMatch = "scan:no_match"
	EventError   = "scan:error"
)

// Event is one scan outcome as seen by pub/sub subscribers
type Event struct {
	Event     string                 `json:"event"`
	FrameID   string                 `json:"frameId"`
	SessionID string                 `json:"sessionId,omitempty"`
	Record    *mrz.Record            `json:"record,omitempty"`
	Error     map[string]interface{} `json:"error,omitempty"`
	ElapsedMs int64                  `json:"elapsedMs"`
	Timestamp string                 `json:"timestamp"`
}

// NewEvent stamps an event with the current time
func NewEvent(name, frameID, sessionID string, elapsed time.Duration) *Event {
	return &Event{
		Event:     name,
		FrameID:   frameID,
		SessionID: sessionID,
		ElapsedMs: elapsed.Milliseconds(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// EventPublisher publishes outcome events on a Redis pub/sub channel
type EventPublisher struct {
	client  *redis.Client
	channel string
}

// NewEventPublisher creates a publisher on channel. The client is shared.
func NewEventPublisher(client *redis.Client, channel string) *EventPublisher {
	if channel == "" {
		channel = "mrz:events"
	}
	return &EventPublisher{client: client, channel: channel}
}

// Publish sends one event. Having no subscribers is not an error.
func (p *EventPublisher) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", p.channel, err)
	}
	return nil
}

// Channel returns the pub/sub channel name
func (p *EventPublisher) Channel() string {
	return p.channel
}
