// Package listener forwards transition notifications for one entity to its
// accumulator.
package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/ontime/internal/events"
	"github.com/goodtune/ontime/internal/metrics"
	"github.com/rs/zerolog"
)

// Applier receives the interval between two notifications.
type Applier interface {
	ApplyTransition(previous, current time.Time)
}

// Config holds listener configuration
type Config struct {
	EntityID string

	// ActiveOnly limits forwarding to active -> inactive transitions. By
	// default every transition between two defined states is forwarded.
	ActiveOnly bool
}

// Listener subscribes to one entity on a Bus. It holds no state beyond the
// subscription.
type Listener struct {
	bus    events.Bus
	target Applier
	config Config
	sub    events.Subscription
	logger zerolog.Logger
	mu     sync.Mutex
}

// New creates a listener; call Start to subscribe.
func New(bus events.Bus, target Applier, config Config, logger zerolog.Logger) *Listener {
	return &Listener{
		bus:    bus,
		target: target,
		config: config,
		logger: logger.With().
			Str("component", "listener").
			Str("entity_id", config.EntityID).
			Logger(),
	}
}

// Start subscribes to the entity's notifications.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub != nil {
		return nil
	}

	sub, err := l.bus.Subscribe(ctx, l.config.EntityID, l.Handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", l.config.EntityID, err)
	}
	l.sub = sub

	l.logger.Debug().Bool("active_only", l.config.ActiveOnly).Msg("Listening for transitions")
	return nil
}

// Close releases the subscription.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub == nil {
		return nil
	}
	err := l.sub.Close()
	l.sub = nil
	return err
}

// Handle filters one notification and forwards it to the accumulator.
func (l *Listener) Handle(e events.Event) {
	if reason := l.ignoreReason(e); reason != "" {
		metrics.TransitionsIgnored.WithLabelValues(l.config.EntityID, reason).Inc()
		l.logger.Debug().
			Str("reason", reason).
			Str("old_state", string(e.OldState)).
			Str("new_state", string(e.NewState)).
			Msg("Ignoring notification")
		return
	}

	l.target.ApplyTransition(e.OldTimestamp, e.NewTimestamp)
}

func (l *Listener) ignoreReason(e events.Event) string {
	switch {
	case e.EntityID != l.config.EntityID:
		return "other_entity"
	case !e.OldState.Defined() || !e.NewState.Defined():
		return "unknown_state"
	case e.OldTimestamp.IsZero() || e.NewTimestamp.IsZero():
		return "missing_timestamp"
	case l.config.ActiveOnly && !(e.OldState == events.StateActive && e.NewState == events.StateInactive):
		return "not_active_interval"
	}
	return ""
}
