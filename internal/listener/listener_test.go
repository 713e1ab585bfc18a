package listener

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/ontime/internal/events"
	"github.com/rs/zerolog"
)

type interval struct {
	previous, current time.Time
}

type recordingApplier struct {
	calls []interval
}

func (r *recordingApplier) ApplyTransition(previous, current time.Time) {
	r.calls = append(r.calls, interval{previous, current})
}

var (
	t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(5 * time.Minute)
)

func TestListener_Handle(t *testing.T) {
	tests := []struct {
		name       string
		activeOnly bool
		event      events.Event
		forwarded  bool
	}{
		{
			name:      "active to inactive",
			event:     events.Event{EntityID: "switch.boiler", OldState: events.StateActive, NewState: events.StateInactive, OldTimestamp: t0, NewTimestamp: t1},
			forwarded: true,
		},
		{
			name:      "inactive to active is also measured",
			event:     events.Event{EntityID: "switch.boiler", OldState: events.StateInactive, NewState: events.StateActive, OldTimestamp: t0, NewTimestamp: t1},
			forwarded: true,
		},
		{
			name:      "unknown old state",
			event:     events.Event{EntityID: "switch.boiler", OldState: events.StateUnknown, NewState: events.StateActive, OldTimestamp: t0, NewTimestamp: t1},
			forwarded: false,
		},
		{
			name:      "unknown new state",
			event:     events.Event{EntityID: "switch.boiler", OldState: events.StateActive, NewState: events.StateUnknown, OldTimestamp: t0, NewTimestamp: t1},
			forwarded: false,
		},
		{
			name:      "missing old timestamp",
			event:     events.Event{EntityID: "switch.boiler", OldState: events.StateActive, NewState: events.StateInactive, NewTimestamp: t1},
			forwarded: false,
		},
		{
			name:      "missing new timestamp",
			event:     events.Event{EntityID: "switch.boiler", OldState: events.StateActive, NewState: events.StateInactive, OldTimestamp: t0},
			forwarded: false,
		},
		{
			name:      "other entity",
			event:     events.Event{EntityID: "switch.pump", OldState: events.StateActive, NewState: events.StateInactive, OldTimestamp: t0, NewTimestamp: t1},
			forwarded: false,
		},
		{
			name:       "active only forwards active interval",
			activeOnly: true,
			event:      events.Event{EntityID: "switch.boiler", OldState: events.StateActive, NewState: events.StateInactive, OldTimestamp: t0, NewTimestamp: t1},
			forwarded:  true,
		},
		{
			name:       "active only drops inactive interval",
			activeOnly: true,
			event:      events.Event{EntityID: "switch.boiler", OldState: events.StateInactive, NewState: events.StateActive, OldTimestamp: t0, NewTimestamp: t1},
			forwarded:  false,
		},
		{
			name:      "same state repeated",
			event:     events.Event{EntityID: "switch.boiler", OldState: events.StateActive, NewState: events.StateActive, OldTimestamp: t0, NewTimestamp: t1},
			forwarded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := &recordingApplier{}
			l := New(events.NewMemoryBus(), applier, Config{EntityID: "switch.boiler", ActiveOnly: tt.activeOnly}, zerolog.Nop())

			l.Handle(tt.event)

			if tt.forwarded {
				if len(applier.calls) != 1 {
					t.Fatalf("expected 1 call, got %d", len(applier.calls))
				}
				call := applier.calls[0]
				if !call.previous.Equal(tt.event.OldTimestamp) || !call.current.Equal(tt.event.NewTimestamp) {
					t.Errorf("forwarded %v -> %v, want %v -> %v", call.previous, call.current, tt.event.OldTimestamp, tt.event.NewTimestamp)
				}
			} else if len(applier.calls) != 0 {
				t.Errorf("expected no calls, got %d", len(applier.calls))
			}
		})
	}
}

func TestListener_StartAndClose(t *testing.T) {
	bus := events.NewMemoryBus()
	applier := &recordingApplier{}
	l := New(bus, applier, Config{EntityID: "switch.boiler"}, zerolog.Nop())
	ctx := context.Background()

	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := l.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if n := bus.Subscribers("switch.boiler"); n != 1 {
		t.Fatalf("Subscribers = %d, want 1", n)
	}

	event := events.Event{EntityID: "switch.boiler", OldState: events.StateActive, NewState: events.StateInactive, OldTimestamp: t0, NewTimestamp: t1}
	_ = bus.Publish(ctx, event)
	if len(applier.calls) != 1 {
		t.Fatalf("expected 1 call after publish, got %d", len(applier.calls))
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if n := bus.Subscribers("switch.boiler"); n != 0 {
		t.Errorf("Subscribers = %d after Close, want 0", n)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	_ = bus.Publish(ctx, event)
	if len(applier.calls) != 1 {
		t.Errorf("closed listener still forwarded events")
	}
}

type failingBus struct{}

func (failingBus) Subscribe(ctx context.Context, entityID string, handler events.Handler) (events.Subscription, error) {
	return nil, errors.New("bus down")
}

func (failingBus) Publish(ctx context.Context, event events.Event) error {
	return errors.New("bus down")
}

func TestListener_StartFails(t *testing.T) {
	l := New(failingBus{}, &recordingApplier{}, Config{EntityID: "switch.boiler"}, zerolog.Nop())

	if err := l.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail")
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close after failed Start: %v", err)
	}
}
