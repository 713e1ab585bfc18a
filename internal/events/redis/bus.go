// Package redis carries transition events and measurements over Redis
// pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/goodtune/ontime/internal/events"
	"github.com/goodtune/ontime/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultChannelPrefix      = "ontime:events:"
	DefaultStateChannelPrefix = "ontime:state:"
)

var _ events.Bus = (*Bus)(nil)

// Config holds channel naming
type Config struct {
	ChannelPrefix      string
	StateChannelPrefix string
}

// Bus implements events.Bus on Redis pub/sub. Each entity uses its own
// channel, and each subscription is drained by one goroutine so events are
// handled in publish order.
type Bus struct {
	client *redis.Client
	config Config
	logger zerolog.Logger
}

// NewBus creates a bus on an existing client. The caller keeps ownership of
// client.
func NewBus(client *redis.Client, config Config, logger zerolog.Logger) *Bus {
	if config.ChannelPrefix == "" {
		config.ChannelPrefix = DefaultChannelPrefix
	}
	if config.StateChannelPrefix == "" {
		config.StateChannelPrefix = DefaultStateChannelPrefix
	}

	return &Bus{
		client: client,
		config: config,
		logger: logger.With().Str("component", "redis-bus").Logger(),
	}
}

// Channel returns the event channel for entityID
func (b *Bus) Channel(entityID string) string {
	return b.config.ChannelPrefix + entityID
}

// StateChannel returns the measurement channel for a sensor
func (b *Bus) StateChannel(uniqueID string) string {
	return b.config.StateChannelPrefix + uniqueID
}

// Subscribe listens on the entity's channel until the subscription is closed
func (b *Bus) Subscribe(ctx context.Context, entityID string, handler events.Handler) (events.Subscription, error) {
	channel := b.Channel(entityID)
	pubsub := b.client.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &subscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
		logger: b.logger.With().Str("channel", channel).Logger(),
	}
	go sub.run(entityID, handler)

	b.logger.Debug().Str("channel", channel).Msg("Subscribed to transition events")
	return sub, nil
}

// Publish sends event on its entity's channel
func (b *Bus) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.client.Publish(ctx, b.Channel(event.EntityID), payload).Err()
}

// PublishState sends an encoded measurement on the sensor's state channel
func (b *Bus) PublishState(ctx context.Context, uniqueID string, state interface{}) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return b.client.Publish(ctx, b.StateChannel(uniqueID), payload).Err()
}

type subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func (s *subscription) run(entityID string, handler events.Handler) {
	defer close(s.done)

	for msg := range s.pubsub.Channel() {
		metrics.EventsReceived.WithLabelValues(entityID).Inc()

		var event events.Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			metrics.TransitionsIgnored.WithLabelValues(entityID, "undecodable").Inc()
			s.logger.Warn().Err(err).Str("payload", msg.Payload).Msg("Dropping undecodable event")
			continue
		}
		if event.EntityID == "" {
			event.EntityID = entityID
		}

		handler(event)
	}
}

// Close unsubscribes and waits for the handler goroutine to finish
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}
