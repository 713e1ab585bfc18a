package storage

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339 utc", "2024-01-01T00:05:00Z", time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)},
		{"rfc3339 offset", "2024-01-01T02:05:00+02:00", time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)},
		{"rfc3339 nanos", "2024-01-01T00:00:00.000000001Z", time.Date(2024, 1, 1, 0, 0, 0, 1, time.UTC)},
		{"naive iso", "2024-01-01T00:05:00", time.Date(2024, 1, 1, 0, 5, 0, 0, time.Local)},
		{"naive iso micros", "2024-01-01T00:05:00.123456", time.Date(2024, 1, 1, 0, 5, 0, 123456000, time.Local)},
		{"naive iso space", "2024-01-01 00:05:00", time.Date(2024, 1, 1, 0, 5, 0, 0, time.Local)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	for _, bad := range []string{"", "   ", "yesterday", "2024-13-01T00:00:00Z"} {
		if _, err := ParseTimestamp(bad); err == nil {
			t.Errorf("ParseTimestamp(%q) expected error", bad)
		}
	}
}

func TestParseFields(t *testing.T) {
	valid := map[string]string{
		FieldLastResetAt:        "2024-01-01T00:00:00Z",
		FieldLastUpdateAt:       "2024-01-01T00:05:00Z",
		FieldAccumulatedSeconds: "300",
	}

	record, err := ParseFields(valid)
	if err != nil {
		t.Fatalf("ParseFields error: %v", err)
	}
	if record.AccumulatedSeconds != 300 {
		t.Errorf("AccumulatedSeconds = %v, want 300", record.AccumulatedSeconds)
	}

	if _, err := ParseFields(nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("ParseFields(nil) = %v, want ErrNotFound", err)
	}

	for _, missing := range []string{FieldLastResetAt, FieldLastUpdateAt, FieldAccumulatedSeconds} {
		t.Run("missing "+missing, func(t *testing.T) {
			data := make(map[string]string)
			for k, v := range valid {
				if k != missing {
					data[k] = v
				}
			}
			record, err := ParseFields(data)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("ParseFields error = %v, want ErrMalformed", err)
			}
			if record != nil {
				t.Errorf("expected nil record, got %+v", record)
			}
		})
	}

	for _, bad := range []string{"NaN", "+Inf", "twelve", ""} {
		data := map[string]string{
			FieldLastResetAt:        "2024-01-01T00:00:00Z",
			FieldLastUpdateAt:       "2024-01-01T00:05:00Z",
			FieldAccumulatedSeconds: bad,
		}
		if _, err := ParseFields(data); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseFields(seconds=%q) = %v, want ErrMalformed", bad, err)
		}
	}
}

func TestParseFields_LegacySecondsField(t *testing.T) {
	record, err := ParseFields(map[string]string{
		FieldLastResetAt:  "2024-01-01T00:00:00.000001",
		FieldLastUpdateAt: "2024-01-01T00:05:00.000001",
		FieldLegacyUsage:  "42.5",
	})
	if err != nil {
		t.Fatalf("ParseFields error: %v", err)
	}
	if record.AccumulatedSeconds != 42.5 {
		t.Errorf("AccumulatedSeconds = %v, want 42.5", record.AccumulatedSeconds)
	}
}

func TestFieldsRoundTrip(t *testing.T) {
	record := UsageRecord{
		LastResetAt:        time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC),
		LastUpdateAt:       time.Date(2024, 3, 10, 9, 30, 15, 987654321, time.UTC),
		AccumulatedSeconds: 5415.125,
	}

	got, err := ParseFields(record.Fields())
	if err != nil {
		t.Fatalf("ParseFields error: %v", err)
	}
	if !got.LastResetAt.Equal(record.LastResetAt) || !got.LastUpdateAt.Equal(record.LastUpdateAt) {
		t.Errorf("timestamps changed: got %+v, want %+v", got, record)
	}
	if got.AccumulatedSeconds != record.AccumulatedSeconds {
		t.Errorf("AccumulatedSeconds = %v, want %v", got.AccumulatedSeconds, record.AccumulatedSeconds)
	}
}

func TestDefaultKey(t *testing.T) {
	if got := DefaultKey("switch.boiler_cumulative_usage"); got != "d_switch.boiler_cumulative_usage" {
		t.Errorf("DefaultKey = %q", got)
	}
}
