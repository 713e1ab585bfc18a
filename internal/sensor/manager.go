package sensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/ontime/internal/config"
	"github.com/rs/zerolog"
)

// ErrUnknownSensor is returned for an unconfigured unique ID.
var ErrUnknownSensor = errors.New("sensor: unknown sensor")

// Manager owns the configured sensors. Sensors share no state; the manager
// only indexes them.
type Manager struct {
	sensors map[string]*Sensor
	order   []*Sensor
	logger  zerolog.Logger
}

// NewManager builds one sensor per configuration entry.
func NewManager(cfgs []config.SensorConfig, opts Options, logger zerolog.Logger) *Manager {
	m := &Manager{
		sensors: make(map[string]*Sensor, len(cfgs)),
		logger:  logger.With().Str("component", "sensor-manager").Logger(),
	}

	for _, cfg := range cfgs {
		s := New(cfg, opts, logger)
		m.sensors[cfg.UniqueID] = s
		m.order = append(m.order, s)
	}

	return m
}

// Start starts every sensor. On failure the already started sensors are
// closed again.
func (m *Manager) Start(ctx context.Context) error {
	for i, s := range m.order {
		if err := s.Start(ctx); err != nil {
			for _, started := range m.order[:i] {
				_ = started.Close()
			}
			return fmt.Errorf("start sensor %s: %w", s.UniqueID(), err)
		}
	}

	m.logger.Info().Int("sensors", len(m.order)).Msg("Sensors started")
	return nil
}

// Get returns the sensor with uniqueID.
func (m *Manager) Get(uniqueID string) (*Sensor, bool) {
	s, ok := m.sensors[uniqueID]
	return s, ok
}

// List returns all sensors in configuration order.
func (m *Manager) List() []*Sensor {
	out := make([]*Sensor, len(m.order))
	copy(out, m.order)
	return out
}

// Reset zeroes the sensor with uniqueID.
func (m *Manager) Reset(uniqueID string) error {
	s, ok := m.sensors[uniqueID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSensor, uniqueID)
	}
	s.Reset()
	return nil
}

// Close releases every sensor's subscription.
func (m *Manager) Close() error {
	var errs []error
	for _, s := range m.order {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sensor %s: %w", s.UniqueID(), err))
		}
	}
	return errors.Join(errs...)
}
