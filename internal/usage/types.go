package usage

import (
	"time"

	"github.com/goodtune/ontime/internal/storage"
	"github.com/goodtune/ontime/internal/units"
)

// Measurement is the value published to consumers after every change.
type Measurement struct {
	EntityID     string     `json:"entity_id"`
	Value        float64    `json:"value"`
	Unit         units.Unit `json:"unit"`
	Available    bool       `json:"available"`
	LastResetAt  time.Time  `json:"last_reset_at"`
	LastUpdateAt time.Time  `json:"last_update_at"`
}

// Attributes returns the record timestamps as auxiliary attributes, or nil
// while the measurement is unavailable.
func (m Measurement) Attributes() map[string]string {
	if !m.Available {
		return nil
	}
	return storage.UsageRecord{
		LastResetAt:  m.LastResetAt,
		LastUpdateAt: m.LastUpdateAt,
	}.Attributes()
}

// Observer is notified with the new measurement after the accumulator
// changes. Observers run with the accumulator locked and must not call
// back into it.
type Observer func(Measurement)
