// Package events provides a domain event system for the GCR simulator. It
// decouples the engine from its collaborators (dashboards, aggregators,
// persistence) through publish/subscribe messaging.
//
// The package supports multiple backends through the Bus interface:
//   - InMemoryBus: synchronous in-process dispatch, the default
//   - NATSBus: distributed messaging (build tag events_nats)
//   - RedisBus: lightweight pub/sub (build tag events_redis)
//
// Usage:
//
//	bus := events.NewInMemoryBus()
//
//	bus.Subscribe(ctx, events.EventTickCompleted, func(e events.Event) {
//	    log.Printf("year %v complete", e.Payload)
//	})
//
//	bus.Publish(ctx, events.NewEvent(events.EventTickCompleted, snapshot))
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Event Type Constants
// =============================================================================

// Standard event types emitted by the simulation driver.
const (
	// EventRunStarted fires once per run before the first tick.
	EventRunStarted = "sim.run.started"

	// EventTickCompleted fires after each completed annual tick with the
	// year's snapshot as payload.
	EventTickCompleted = "sim.tick.completed"

	// EventRunCompleted fires when every tick completed; payload is the
	// final year's snapshot.
	EventRunCompleted = "sim.run.completed"

	// EventRunAborted fires when a run stops at a tick boundary; payload
	// carries the failing tick index and cause.
	EventRunAborted = "sim.run.aborted"

	// EventEnsembleCompleted fires after a Monte-Carlo ensemble with the
	// aggregate summary.
	EventEnsembleCompleted = "sim.ensemble.completed"
)

// TopicAll subscribes a handler to every event type.
const TopicAll = "*"

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrBusClosed is returned when publishing to a closed bus.
	ErrBusClosed = errors.New("events: bus is closed")

	// ErrNilHandler is returned when subscribing with a nil handler.
	ErrNilHandler = errors.New("events: nil handler")

	// ErrEmptyTopic is returned when subscribing to an empty topic.
	ErrEmptyTopic = errors.New("events: empty topic")

	// ErrEmptyEventType is returned when publishing an event with no type.
	ErrEmptyEventType = errors.New("events: empty event type")
)

// =============================================================================
// Event Types
// =============================================================================

// Event is one domain event. Events are immutable once created and carry
// everything needed to understand what happened.
type Event struct {
	// ID is a unique identifier for this event instance.
	ID string `json:"id"`

	// Type identifies the kind of event (e.g., "sim.tick.completed").
	Type string `json:"type"`

	// Payload contains the event-specific data. JSON-serializable.
	Payload any `json:"payload"`

	// RunID correlates events from the same simulation run.
	RunID string `json:"run_id,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Source identifies which component generated the event.
	Source string `json:"source,omitempty"`
}

// NewEvent creates a new Event with a generated ID and current timestamp.
func NewEvent(eventType string, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// WithRunID sets the run correlation ID and returns the event.
func (e Event) WithRunID(runID string) Event {
	e.RunID = runID
	return e
}

// WithSource sets the source component.
func (e Event) WithSource(source string) Event {
	e.Source = source
	return e
}

// Validate checks that the event has required fields.
func (e Event) Validate() error {
	if e.Type == "" {
		return ErrEmptyEventType
	}
	return nil
}

// JSON serializes the event to JSON bytes.
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// =============================================================================
// Bus Interface
// =============================================================================

// Handler is a function that processes events.
type Handler func(Event)

// Bus defines the interface for event publishing and subscription.
// Implementations must be safe for concurrent use: ensemble runs publish
// from multiple goroutines.
type Bus interface {
	// Publish sends an event to all subscribers of its type.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for events matching the topic; the
	// TopicAll wildcard matches everything.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close shuts down the bus and releases resources.
	Close() error
}

// =============================================================================
// In-Memory Bus
// =============================================================================

// InMemoryBus dispatches events synchronously in-process. It is the default
// backend: a single simulation run needs no broker, and synchronous
// dispatch keeps event order identical to tick order.
type InMemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	closed      bool
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subscribers: make(map[string][]Handler)}
}

// Publish sends an event to all matching subscribers.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := event.Validate(); err != nil {
		return err
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	for _, h := range b.subscribers[event.Type] {
		h(event)
	}
	for _, h := range b.subscribers[TopicAll] {
		h(event)
	}
	return nil
}

// Subscribe registers a handler for the given topic.
func (b *InMemoryBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if topic == "" {
		return ErrEmptyTopic
	}
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.subscribers[topic] = append(b.subscribers[topic], handler)
	return nil
}

// Close shuts down the bus. Further publishes return ErrBusClosed.
func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = make(map[string][]Handler)
	return nil
}
