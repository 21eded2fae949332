//go:build events_nats

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus implements the Bus interface over NATS, for fleets where many
// ensemble workers publish snapshots to shared aggregators.
type NATSBus struct {
	nc     *nats.Conn
	mu     sync.RWMutex
	subs   []*nats.Subscription
	closed bool
	config NATSConfig
}

// NATSConfig configures the NATS event bus.
type NATSConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// SubjectPrefix namespaces simulation subjects ("gcrsim" by default),
	// so sim.tick.completed publishes on "gcrsim.sim.tick.completed".
	SubjectPrefix string

	// MaxReconnects is the maximum number of reconnection attempts.
	MaxReconnects int

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns a configuration with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "gcrsim",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
	}
}

// NewNATSBus creates a new NATS-based event bus.
func NewNATSBus(config NATSConfig) (*NATSBus, error) {
	if config.URL == "" {
		config.URL = nats.DefaultURL
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = "gcrsim"
	}

	nc, err := nats.Connect(config.URL,
		nats.Name("gcrsim event bus"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATSBus{nc: nc, config: config}, nil
}

// subject maps an event topic onto a NATS subject.
func (b *NATSBus) subject(topic string) string {
	if topic == TopicAll {
		return b.config.SubjectPrefix + ".>"
	}
	return b.config.SubjectPrefix + "." + topic
}

// Publish sends an event to the topic's subject.
func (b *NATSBus) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := event.Validate(); err != nil {
		return err
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrBusClosed
	}

	data, err := event.JSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.nc.Publish(b.subject(event.Type), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe registers a handler for the given topic.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
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

	sub, err := b.nc.Subscribe(b.subject(topic), func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	b.subs = append(b.subs, sub)
	return nil
}

// Close drains subscriptions and closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.nc.Close()
	return nil
}
