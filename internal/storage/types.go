package storage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// UsageRecord is the persisted state of one accumulator.
type UsageRecord struct {
	LastResetAt        time.Time `json:"last_reset_at"`
	LastUpdateAt       time.Time `json:"last_update_at"`
	AccumulatedSeconds float64   `json:"accumulated_seconds"`
}

// NewRecord returns a zeroed record with both timestamps set to now.
func NewRecord(now time.Time) UsageRecord {
	return UsageRecord{
		LastResetAt:  now,
		LastUpdateAt: now,
	}
}

// Attributes returns the auxiliary attributes exposed alongside the value.
func (r UsageRecord) Attributes() map[string]string {
	return map[string]string{
		"last_reset_at":  FormatTimestamp(r.LastResetAt),
		"last_update_at": FormatTimestamp(r.LastUpdateAt),
	}
}

// Field names shared by all backends.
const (
	FieldLastResetAt        = "last_reset_at"
	FieldLastUpdateAt       = "last_update_at"
	FieldAccumulatedSeconds = "accumulated_seconds"

	// FieldLegacyUsage is the seconds field written by older state files.
	FieldLegacyUsage = "usage_in_sec"
)

// ParseFields builds a record from flat string fields. All three fields
// must be present and valid, otherwise the error wraps ErrMalformed.
func ParseFields(data map[string]string) (*UsageRecord, error) {
	if len(data) == 0 {
		return nil, ErrNotFound
	}

	lastResetAt, err := parseRequiredTime(data, FieldLastResetAt)
	if err != nil {
		return nil, err
	}

	lastUpdateAt, err := parseRequiredTime(data, FieldLastUpdateAt)
	if err != nil {
		return nil, err
	}

	raw, ok := data[FieldAccumulatedSeconds]
	if !ok {
		raw, ok = data[FieldLegacyUsage]
	}
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, FieldAccumulatedSeconds)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return nil, fmt.Errorf("%w: invalid %s %q", ErrMalformed, FieldAccumulatedSeconds, raw)
	}

	return &UsageRecord{
		LastResetAt:        lastResetAt,
		LastUpdateAt:       lastUpdateAt,
		AccumulatedSeconds: seconds,
	}, nil
}

// Fields flattens a record for storage.
func (r UsageRecord) Fields() map[string]string {
	return map[string]string{
		FieldLastResetAt:        FormatTimestamp(r.LastResetAt),
		FieldLastUpdateAt:       FormatTimestamp(r.LastUpdateAt),
		FieldAccumulatedSeconds: strconv.FormatFloat(r.AccumulatedSeconds, 'g', -1, 64),
	}
}

func parseRequiredTime(data map[string]string, field string) (time.Time, error) {
	raw, ok := data[field]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: missing %s", ErrMalformed, field)
	}
	t, err := ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrMalformed, field, err)
	}
	return t, nil
}

// timestampLayouts are tried in order when parsing a stored timestamp.
// Layouts without a zone are read in local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// FormatTimestamp encodes t for storage.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// ParseTimestamp decodes a stored timestamp. It accepts RFC 3339 and
// zone-less ISO-8601 text.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if layout == time.RFC3339Nano {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// DefaultKey derives the storage key for a sensor from its unique ID.
func DefaultKey(uniqueID string) string {
	return "d_" + uniqueID
}

// KeyFunc derives a storage key from a sensor's unique ID.
type KeyFunc func(uniqueID string) string

// NormalizeKey strips the ".json" suffix the file backend accepts on keys,
// so two keys naming the same record compare equal.
func NormalizeKey(key string) string {
	return strings.TrimSuffix(key, ".json")
}
