// Package sensor assembles one accumulator, its store key and its
// transition listener per monitored entity.
package sensor

import (
	"context"
	"time"

	"github.com/goodtune/ontime/internal/config"
	"github.com/goodtune/ontime/internal/events"
	"github.com/goodtune/ontime/internal/listener"
	"github.com/goodtune/ontime/internal/storage"
	"github.com/goodtune/ontime/internal/units"
	"github.com/goodtune/ontime/internal/usage"
	"github.com/rs/zerolog"
)

// Fixed sensor classification exposed with every state.
const (
	DeviceClass = "duration"
	StateClass  = "measurement"
)

// Publisher receives every state change of a sensor.
type Publisher interface {
	PublishState(ctx context.Context, uniqueID string, state interface{}) error
}

// Options are the collaborators shared by all sensors.
type Options struct {
	Records storage.RecordStore

	// Bus delivers transition events. When nil the sensor only accepts
	// resets.
	Bus events.Bus

	// Publisher receives state changes. Optional.
	Publisher Publisher

	PersistTimeout time.Duration
	Clock          usage.Clock
}

// State is the outbound representation of a sensor.
type State struct {
	UniqueID    string            `json:"unique_id"`
	EntityID    string            `json:"entity_id"`
	Name        string            `json:"name"`
	Value       *float64          `json:"value"`
	Unit        units.Unit        `json:"unit"`
	Available   bool              `json:"available"`
	DeviceClass string            `json:"device_class"`
	StateClass  string            `json:"state_class"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Sensor is one cumulative-usage measurement.
type Sensor struct {
	uniqueID       string
	name           string
	accumulator    *usage.Accumulator
	listener       *listener.Listener
	resetTime      string
	clock          usage.Clock
	scheduler      *usage.ResetScheduler
	publisher      Publisher
	publishTimeout time.Duration
	logger         zerolog.Logger
}

// KeyFor returns the store key of a configured sensor: the key override,
// or storage.DefaultKey(unique_id).
func KeyFor(cfg config.SensorConfig) string {
	if cfg.Key != "" {
		return cfg.Key
	}
	return storage.DefaultKey(cfg.UniqueID)
}

// New builds a sensor from its configuration.
func New(cfg config.SensorConfig, opts Options, logger zerolog.Logger) *Sensor {
	key := KeyFor(cfg)

	timeout := opts.PersistTimeout
	if timeout == 0 {
		timeout = usage.DefaultPersistTimeout
	}

	s := &Sensor{
		uniqueID:       cfg.UniqueID,
		name:           cfg.Name,
		resetTime:      cfg.ResetTime,
		clock:          opts.Clock,
		publisher:      opts.Publisher,
		publishTimeout: timeout,
		logger: logger.With().
			Str("component", "sensor").
			Str("unique_id", cfg.UniqueID).
			Logger(),
	}

	s.accumulator = usage.NewAccumulator(opts.Records, usage.Config{
		EntityID:       cfg.EntityID,
		Key:            key,
		Unit:           units.Parse(cfg.Unit),
		PersistTimeout: timeout,
		Clock:          opts.Clock,
	}, logger)

	if s.publisher != nil {
		s.accumulator.OnChange(s.publish)
	}

	if opts.Bus != nil {
		s.listener = listener.New(opts.Bus, s.accumulator, listener.Config{
			EntityID:   cfg.EntityID,
			ActiveOnly: cfg.ActiveOnly,
		}, logger)
	}

	return s
}

// Start restores persisted state, subscribes to transitions and starts the
// daily reset when one is configured.
func (s *Sensor) Start(ctx context.Context) error {
	s.accumulator.Load(ctx)

	var scheduler *usage.ResetScheduler
	if s.resetTime != "" && s.scheduler == nil {
		var err error
		scheduler, err = usage.NewResetScheduler(s.accumulator, s.resetTime, s.clock, s.logger)
		if err != nil {
			return err
		}
	}

	if s.listener != nil {
		if err := s.listener.Start(ctx); err != nil {
			return err
		}
	}

	// s.scheduler is only set once the scheduler is running.
	if scheduler != nil {
		scheduler.Start()
		s.scheduler = scheduler
	}

	s.logger.Info().
		Str("entity_id", s.accumulator.EntityID()).
		Str("key", s.accumulator.Key()).
		Str("unit", string(s.accumulator.Unit())).
		Msg("Sensor started")
	return nil
}

// Close stops the daily reset and releases the listener subscription.
func (s *Sensor) Close() error {
	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler = nil
	}
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// UniqueID returns the sensor identifier.
func (s *Sensor) UniqueID() string {
	return s.uniqueID
}

// Name returns the display name.
func (s *Sensor) Name() string {
	return s.name
}

// EntityID returns the monitored entity.
func (s *Sensor) EntityID() string {
	return s.accumulator.EntityID()
}

// Key returns the store key.
func (s *Sensor) Key() string {
	return s.accumulator.Key()
}

// Unit returns the configured display unit.
func (s *Sensor) Unit() units.Unit {
	return s.accumulator.Unit()
}

// Reset zeroes the accumulated time.
func (s *Sensor) Reset() {
	s.accumulator.Reset()
}

// ApplyTransition forwards an interval directly to the accumulator.
func (s *Sensor) ApplyTransition(previous, current time.Time) {
	s.accumulator.ApplyTransition(previous, current)
}

// Value returns the accumulated time in unit.
func (s *Sensor) Value(unit units.Unit) (float64, bool) {
	return s.accumulator.CurrentValue(unit)
}

// State returns the current outbound state.
func (s *Sensor) State() State {
	return s.state(s.accumulator.Measurement())
}

func (s *Sensor) state(m usage.Measurement) State {
	st := State{
		UniqueID:    s.uniqueID,
		EntityID:    m.EntityID,
		Name:        s.name,
		Unit:        m.Unit,
		Available:   m.Available,
		DeviceClass: DeviceClass,
		StateClass:  StateClass,
		Attributes:  m.Attributes(),
	}
	if m.Available {
		value := m.Value
		st.Value = &value
	}
	return st
}

// publish runs as an accumulator observer
func (s *Sensor) publish(m usage.Measurement) {
	ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
	defer cancel()

	if err := s.publisher.PublishState(ctx, s.uniqueID, s.state(m)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish state")
	}
}
