package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrMalformed is returned when a stored record cannot be parsed or is
// missing a required field. Callers treat it like ErrNotFound.
var ErrMalformed = errors.New("storage: malformed record")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Records() RecordStore
}

// RecordStore persists one UsageRecord per key. There is a single writer
// per key, so Save overwrites in place.
type RecordStore interface {
	// Load returns the complete record for key. It never returns a partially
	// populated record: missing data yields ErrNotFound and unparseable or
	// incomplete data yields an error wrapping ErrMalformed.
	Load(ctx context.Context, key string) (*UsageRecord, error)
	Save(ctx context.Context, key string, record UsageRecord) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// IsAbsent reports whether err means "no usable record".
func IsAbsent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformed)
}
