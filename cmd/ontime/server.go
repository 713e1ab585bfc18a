package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/ontime/internal/api"
	"github.com/goodtune/ontime/internal/config"
	redisbus "github.com/goodtune/ontime/internal/events/redis"
	"github.com/goodtune/ontime/internal/metrics"
	"github.com/goodtune/ontime/internal/sensor"
	"github.com/goodtune/ontime/internal/storage"
	"github.com/goodtune/ontime/internal/storage/file"
	"github.com/goodtune/ontime/internal/storage/redis"
	"github.com/goodtune/ontime/internal/systemd"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start ontime server",
	Long:  `Start the ontime server: sensors, event subscriptions, the HTTP API and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting ontime")

	if len(cfg.Sensors) == 0 {
		logger.Warn().Msg("No sensors configured")
	}

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Msg("Storage initialized")

	// Initialize event bus
	opts := sensor.Options{
		Records:        store.Records(),
		PersistTimeout: parseDuration(cfg.Usage.PersistTimeout, 2*time.Second),
	}

	if cfg.Events.Type == "redis" {
		client, err := openRedisClient(cfg.Storage.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize event bus: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close event bus client")
			}
		}()

		bus := redisbus.NewBus(client, redisbus.Config{
			ChannelPrefix:      cfg.Events.ChannelPrefix,
			StateChannelPrefix: cfg.Events.StateChannelPrefix,
		}, logger)
		opts.Bus = bus
		opts.Publisher = bus

		logger.Info().
			Str("channel_prefix", cfg.Events.ChannelPrefix).
			Str("state_channel_prefix", cfg.Events.StateChannelPrefix).
			Msg("Event bus initialized")
	} else {
		logger.Info().Msg("Event bus disabled, sensors accept resets only")
	}

	// Initialize sensors
	sensors := sensor.NewManager(cfg.Sensors, opts, logger)
	if err := sensors.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start sensors: %w", err)
	}
	defer func() {
		if err := sensors.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close sensors")
		}
	}()

	// Initialize API Server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(apiAddr, sensors, logger)
	if sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// Log startup complete
	logger.Info().Int("sensors", len(cfg.Sensors)).Msg("ontime startup complete")
	logger.Info().Msgf("API: http://%s/api/sensors", apiAddr)
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	// Notify systemd that we're ready
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	defer stopWatchdog()
	go systemd.RunWatchdog(watchdogCtx, logger)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("ontime stopped")

	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "redis":
		return redis.Open(cfg.Redis)
	case "file", "":
		return file.Open(cfg.File.Dir)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// openRedisClient connects the pub/sub client used by the event bus
func openRedisClient(cfg config.RedisConfig) (*goredis.Client, error) {
	client, err := redis.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
