package usage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goodtune/ontime/internal/metrics"
	"github.com/goodtune/ontime/internal/storage"
	"github.com/goodtune/ontime/internal/units"
	"github.com/rs/zerolog"
)

const (
	// DefaultPersistTimeout bounds every load and save.
	DefaultPersistTimeout = 2 * time.Second
)

// Config holds accumulator configuration
type Config struct {
	EntityID       string
	Key            string
	Unit           units.Unit
	PersistTimeout time.Duration
	Clock          Clock
}

// Accumulator tracks the cumulative active seconds of one entity and
// persists the running total after every change.
type Accumulator struct {
	records        storage.RecordStore
	entityID       string
	key            string
	unit           units.Unit
	persistTimeout time.Duration
	clock          Clock
	record         *storage.UsageRecord // nil until initialized
	observers      []Observer
	logger         zerolog.Logger
	mu             sync.Mutex
}

// NewAccumulator creates an uninitialized accumulator. Call Load to pick up
// persisted state.
func NewAccumulator(records storage.RecordStore, config Config, logger zerolog.Logger) *Accumulator {
	if config.PersistTimeout == 0 {
		config.PersistTimeout = DefaultPersistTimeout
	}
	if config.Clock == nil {
		config.Clock = RealClock{}
	}
	if config.Key == "" {
		config.Key = storage.DefaultKey(config.EntityID)
	}

	return &Accumulator{
		records:        records,
		entityID:       config.EntityID,
		key:            config.Key,
		unit:           units.Parse(string(config.Unit)),
		persistTimeout: config.PersistTimeout,
		clock:          config.Clock,
		logger: logger.With().
			Str("component", "accumulator").
			Str("entity_id", config.EntityID).
			Str("key", config.Key).
			Logger(),
	}
}

// OnChange registers an observer.
func (a *Accumulator) OnChange(fn Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.observers = append(a.observers, fn)
}

// Load replaces the in-memory state with the persisted record. Absent or
// malformed data leaves the accumulator uninitialized; it reports whether a
// record was loaded.
func (a *Accumulator) Load(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.persistTimeout)
	defer cancel()

	record, err := a.records.Load(ctx, a.key)
	switch {
	case err == nil:
		a.record = record
		a.logger.Debug().
			Float64("accumulated_seconds", record.AccumulatedSeconds).
			Time("last_reset_at", record.LastResetAt).
			Time("last_update_at", record.LastUpdateAt).
			Msg("Loaded persisted usage")
		a.publish()
		return true

	case errors.Is(err, storage.ErrNotFound):
		a.logger.Debug().Msg("No persisted usage, starting uninitialized")

	case errors.Is(err, storage.ErrMalformed):
		metrics.LoadFailures.WithLabelValues(a.entityID, "malformed").Inc()
		a.logger.Error().Err(err).Msg("Discarding malformed persisted usage")

	default:
		metrics.LoadFailures.WithLabelValues(a.entityID, "unavailable").Inc()
		a.logger.Error().Err(err).Msg("Failed to load persisted usage")
	}

	a.record = nil
	return false
}

// ApplyTransition adds the span between two event timestamps to the total.
// A zero timestamp means the notification carried none and the call is
// ignored. Negative and zero deltas are added verbatim.
func (a *Accumulator) ApplyTransition(previous, current time.Time) {
	if previous.IsZero() || current.IsZero() {
		a.logger.Debug().
			Time("previous", previous).
			Time("current", current).
			Msg("Ignoring transition without timestamps")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	if a.record == nil {
		record := storage.NewRecord(now)
		a.record = &record
	}

	delta := current.Sub(previous).Seconds()
	a.record.AccumulatedSeconds += delta
	a.record.LastUpdateAt = now

	if delta < 0 {
		a.logger.Warn().
			Time("previous", previous).
			Time("current", current).
			Float64("delta_seconds", delta).
			Msg("Applied negative delta")
	}

	a.logger.Debug().
		Float64("delta_seconds", delta).
		Float64("accumulated_seconds", a.record.AccumulatedSeconds).
		Msg("Applied transition")

	metrics.TransitionsApplied.WithLabelValues(a.entityID).Inc()
	a.persist()
	a.publish()
}

// Reset zeroes the total and moves both timestamps to now. It always
// succeeds; a failed save is logged.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	record := storage.NewRecord(a.clock.Now())
	a.record = &record

	a.logger.Info().Time("last_reset_at", record.LastResetAt).Msg("Usage reset")

	metrics.Resets.WithLabelValues(a.entityID).Inc()
	a.persist()
	a.publish()
}

// CurrentValue returns the total converted to unit, or false while the
// accumulator is uninitialized.
func (a *Accumulator) CurrentValue(unit units.Unit) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.record == nil {
		return 0, false
	}
	return units.Convert(a.record.AccumulatedSeconds, unit), true
}

// Record returns a copy of the current record.
func (a *Accumulator) Record() (storage.UsageRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.record == nil {
		return storage.UsageRecord{}, false
	}
	return *a.record, true
}

// Measurement returns the current value in the configured unit.
func (a *Accumulator) Measurement() Measurement {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.measurement()
}

// EntityID returns the monitored entity.
func (a *Accumulator) EntityID() string {
	return a.entityID
}

// Key returns the storage key.
func (a *Accumulator) Key() string {
	return a.key
}

// Unit returns the configured display unit.
func (a *Accumulator) Unit() units.Unit {
	return a.unit
}

// measurement must be called with the lock held
func (a *Accumulator) measurement() Measurement {
	m := Measurement{
		EntityID: a.entityID,
		Unit:     a.unit,
	}
	if a.record != nil {
		m.Available = true
		m.Value = units.Convert(a.record.AccumulatedSeconds, a.unit)
		m.LastResetAt = a.record.LastResetAt
		m.LastUpdateAt = a.record.LastUpdateAt
	}
	return m
}

// persist saves the current record (must be called with lock held).
// Failures keep the in-memory record authoritative.
func (a *Accumulator) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), a.persistTimeout)
	defer cancel()

	start := time.Now()
	err := a.records.Save(ctx, a.key, *a.record)
	metrics.PersistDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.PersistFailures.WithLabelValues(a.entityID).Inc()
		a.logger.Error().
			Err(err).
			Float64("accumulated_seconds", a.record.AccumulatedSeconds).
			Msg("Failed to persist usage, keeping in-memory state")
	}
}

// publish notifies observers and metrics (must be called with lock held)
func (a *Accumulator) publish() {
	m := a.measurement()
	if a.record != nil {
		metrics.AccumulatedSeconds.WithLabelValues(a.entityID).Set(a.record.AccumulatedSeconds)
	}
	for _, fn := range a.observers {
		fn(m)
	}
}
