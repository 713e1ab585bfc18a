package usage

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Resetter is zeroed by a ResetScheduler.
type Resetter interface {
	Reset()
}

// ResetScheduler resets a target once a day at a fixed local time of day.
type ResetScheduler struct {
	target    Resetter
	resetTime time.Time // Time of day to reset (only hour and minute are used)
	clock     Clock
	after     func(time.Duration) <-chan time.Time
	logger    zerolog.Logger
	stopChan  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewResetScheduler creates a scheduler for resetTime in HH:MM format.
func NewResetScheduler(target Resetter, resetTime string, clock Clock, logger zerolog.Logger) (*ResetScheduler, error) {
	parsedTime, err := time.Parse("15:04", resetTime)
	if err != nil {
		return nil, fmt.Errorf("invalid reset time %q: %w", resetTime, err)
	}
	if clock == nil {
		clock = RealClock{}
	}

	return &ResetScheduler{
		target:    target,
		resetTime: parsedTime,
		clock:     clock,
		after:     time.After,
		logger:    logger.With().Str("component", "reset-scheduler").Logger(),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start begins the reset scheduler. It does nothing once the scheduler
// has been started or stopped.
func (rs *ResetScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.started || rs.stopped {
		return
	}
	rs.started = true

	go rs.run()
	rs.logger.Info().
		Str("reset_time", rs.resetTime.Format("15:04")).
		Msg("Daily reset scheduler started")
}

// Stop stops the scheduler and waits for it to exit. Safe to call more
// than once, and before Start.
func (rs *ResetScheduler) Stop() {
	rs.stopOnce.Do(func() {
		rs.mu.Lock()
		rs.stopped = true
		running := rs.started
		rs.mu.Unlock()

		close(rs.stopChan)
		if running {
			<-rs.done
		}
		rs.logger.Info().Msg("Daily reset scheduler stopped")
	})
}

// run is the main scheduler loop
func (rs *ResetScheduler) run() {
	defer close(rs.done)

	for {
		now := rs.clock.Now()
		nextReset := rs.NextReset(now)
		waitDuration := nextReset.Sub(now)

		rs.logger.Debug().
			Time("next_reset", nextReset).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next daily reset")

		// Wait until reset time or stop signal
		select {
		case <-rs.after(waitDuration):
			rs.logger.Info().Msg("Performing scheduled reset")
			rs.target.Reset()
		case <-rs.stopChan:
			return
		}
	}
}

// NextReset returns the first reset time strictly after now.
func (rs *ResetScheduler) NextReset(now time.Time) time.Time {
	todayReset := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.resetTime.Hour(), rs.resetTime.Minute(), 0, 0,
		now.Location(),
	)

	// Already at or past today's reset time, schedule for tomorrow
	if !now.Before(todayReset) {
		return todayReset.AddDate(0, 0, 1)
	}

	return todayReset
}
