package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goodtune/ontime/internal/storage"
)

// State is the observed state of a binary source.
type State string

const (
	StateActive   State = "active"
	StateInactive State = "inactive"
	StateUnknown  State = "unknown"
)

// ParseState maps source state names onto State. "on" and "off" are
// accepted as aliases; anything else, including "unavailable", is unknown.
func ParseState(s string) State {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "on":
		return StateActive
	case "inactive", "off":
		return StateInactive
	default:
		return StateUnknown
	}
}

// Defined reports whether s is active or inactive.
func (s State) Defined() bool {
	return s == StateActive || s == StateInactive
}

// UnmarshalJSON implements json.Unmarshaler to normalize state names.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseState(raw)
	return nil
}

// Event is a transition notification for one entity. A zero timestamp
// means the notification carried none.
type Event struct {
	EntityID     string    `json:"entity_id"`
	OldState     State     `json:"old_state"`
	NewState     State     `json:"new_state"`
	OldTimestamp time.Time `json:"old_timestamp"`
	NewTimestamp time.Time `json:"new_timestamp"`
}

// wireEvent keeps timestamps as text so zone-less ISO-8601 and missing
// values decode without failing the whole event
type wireEvent struct {
	EntityID     string `json:"entity_id"`
	OldState     State  `json:"old_state"`
	NewState     State  `json:"new_state"`
	OldTimestamp string `json:"old_timestamp,omitempty"`
	NewTimestamp string `json:"new_timestamp,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		EntityID: e.EntityID,
		OldState: e.OldState,
		NewState: e.NewState,
	}
	if !e.OldTimestamp.IsZero() {
		w.OldTimestamp = storage.FormatTimestamp(e.OldTimestamp)
	}
	if !e.NewTimestamp.IsZero() {
		w.NewTimestamp = storage.FormatTimestamp(e.NewTimestamp)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. Unparseable timestamps are
// treated as missing.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = Event{
		EntityID: w.EntityID,
		OldState: w.OldState,
		NewState: w.NewState,
	}
	if e.OldState == "" {
		e.OldState = StateUnknown
	}
	if e.NewState == "" {
		e.NewState = StateUnknown
	}
	if t, err := storage.ParseTimestamp(w.OldTimestamp); err == nil {
		e.OldTimestamp = t
	}
	if t, err := storage.ParseTimestamp(w.NewTimestamp); err == nil {
		e.NewTimestamp = t
	}
	return nil
}
