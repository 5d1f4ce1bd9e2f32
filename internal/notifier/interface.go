package notifier

import (
	"context"
	"time"
)

// Event types published by the service.
const (
	EventBatchIngested = "batch.ingested"
	EventRunCompleted  = "portfolio.run_completed"
)

// Event is a domain occurrence delivered to notifiers.
type Event struct {
	Type       string         `json:"event"`
	OccurredAt time.Time      `json:"occurred_at"`
	UserID     string         `json:"user_id"`
	Data       map[string]any `json:"data"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(eventType, userID string, data map[string]any) Event {
	return Event{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		UserID:     userID,
		Data:       data,
	}
}

// Notifier defines the interface for event notification
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Send delivers a single event
	Send(ctx context.Context, ev Event) error
}
