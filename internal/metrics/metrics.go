package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Usage metrics
	AccumulatedSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ontime_accumulated_seconds",
			Help: "Accumulated active seconds since the last reset",
		},
		[]string{"entity"},
	)

	TransitionsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontime_transitions_applied_total",
			Help: "Total transitions added to an accumulator",
		},
		[]string{"entity"},
	)

	TransitionsIgnored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontime_transitions_ignored_total",
			Help: "Total notifications dropped before reaching an accumulator",
		},
		[]string{"entity", "reason"},
	)

	Resets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontime_resets_total",
			Help: "Total accumulator resets",
		},
		[]string{"entity"},
	)

	// Persistence metrics
	PersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontime_persist_failures_total",
			Help: "Total failed saves of usage records",
		},
		[]string{"entity"},
	)

	LoadFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontime_load_failures_total",
			Help: "Total usage records that could not be loaded",
		},
		[]string{"entity", "reason"},
	)

	PersistDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ontime_persist_duration_seconds",
			Help:    "Usage record save duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
	)

	// Event bus metrics
	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontime_events_received_total",
			Help: "Total transition notifications received from the event bus",
		},
		[]string{"entity"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		AccumulatedSeconds,
		TransitionsApplied,
		TransitionsIgnored,
		Resets,
		PersistFailures,
		LoadFailures,
		PersistDuration,
		EventsReceived,
	)
}

// Server serves /metrics and /health
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // set for systemd socket activation
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler returns the metrics and health endpoints
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop gracefully stops the metrics server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Shutdown(ctx)
}
