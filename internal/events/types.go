package events

import (
	"context"
	"time"
)

// EventType names a kind of event, e.g. "album.cover.updated".
type EventType string

// EventPriority orders events for consumers that care.
type EventPriority int

const (
	PriorityLow EventPriority = iota
	PriorityNormal
	PriorityHigh
)

// Event is a message published on the bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Priority  EventPriority          `json:"priority"`
	Tags      []string               `json:"tags,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler consumes delivered events.
type EventHandler func(ctx context.Context, event Event)

// EventBus publishes events to subscribers.
type EventBus interface {
	// Publish queues event for every matching subscriber without blocking.
	Publish(ctx context.Context, event Event) error
	// Subscribe registers handler for the given types, or all types when none
	// are given. It returns a subscription ID.
	Subscribe(handler EventHandler, types ...EventType) string
	// Unsubscribe removes a subscription.
	Unsubscribe(id string)
	// Close stops delivery and waits for in-flight handlers.
	Close()
}
