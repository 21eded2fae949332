//go:build events_redis

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements the Bus interface over Redis Pub/Sub, suitable for
// single-site deployments where a full broker is overkill.
type RedisBus struct {
	client *redis.Client
	mu     sync.RWMutex
	subs   []context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	config RedisConfig
}

// RedisConfig configures the Redis event bus.
type RedisConfig struct {
	// Addr is the Redis server address.
	Addr string

	// Password for Redis authentication.
	Password string

	// DB is the Redis database number.
	DB int

	// ChannelPrefix namespaces simulation channels ("gcrsim" by default).
	ChannelPrefix string
}

// DefaultRedisConfig returns a configuration with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		ChannelPrefix: "gcrsim",
	}
}

// NewRedisBus creates a new Redis-backed event bus.
func NewRedisBus(ctx context.Context, config RedisConfig) (*RedisBus, error) {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}
	if config.ChannelPrefix == "" {
		config.ChannelPrefix = "gcrsim"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBus{client: client, config: config}, nil
}

// channel maps an event topic onto a Redis channel pattern.
func (b *RedisBus) channel(topic string) string {
	if topic == TopicAll {
		return b.config.ChannelPrefix + ".*"
	}
	return b.config.ChannelPrefix + "." + topic
}

// Publish sends an event to the topic's channel.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
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
	if err := b.client.Publish(ctx, b.channel(event.Type), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe registers a handler for the given topic.
func (b *RedisBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
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

	subCtx, cancel := context.WithCancel(context.Background())
	b.subs = append(b.subs, cancel)

	var pubsub *redis.PubSub
	if topic == TopicAll {
		pubsub = b.client.PSubscribe(subCtx, b.channel(topic))
	} else {
		pubsub = b.client.Subscribe(subCtx, b.channel(topic))
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				handler(event)
			}
		}
	}()
	return nil
}

// Close cancels subscriptions and closes the client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, cancel := range b.subs {
		cancel()
	}
	b.mu.Unlock()

	b.wg.Wait()
	return b.client.Close()
}
