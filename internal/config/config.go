package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goodtune/ontime/internal/storage"
	"github.com/spf13/viper"
)

// Sensor defaults carried over from the original integration.
const (
	DefaultSensorName = "Cumulative usage"
	DefaultSensorUnit = "h"
	UniqueIDSuffix    = "_cumulative_usage"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Storage StorageConfig  `mapstructure:"storage"`
	Events  EventsConfig   `mapstructure:"events"`
	Logging LoggingConfig  `mapstructure:"logging"`
	Usage   UsageConfig    `mapstructure:"usage"`
	Sensors []SensorConfig `mapstructure:"sensors"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "redis" or "file"
	Redis RedisConfig `mapstructure:"redis"`
	File  FileConfig  `mapstructure:"file"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

// FileConfig defines the file storage backend
type FileConfig struct {
	Dir string `mapstructure:"dir"`
}

// EventsConfig defines where transition events come from
type EventsConfig struct {
	Type               string `mapstructure:"type"` // "redis" or "none"
	ChannelPrefix      string `mapstructure:"channel_prefix"`
	StateChannelPrefix string `mapstructure:"state_channel_prefix"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UsageConfig defines accumulator settings shared by all sensors
type UsageConfig struct {
	PersistTimeout string `mapstructure:"persist_timeout"`
	DefaultUnit    string `mapstructure:"default_unit"`
}

// SensorConfig defines one monitored entity
type SensorConfig struct {
	EntityID   string `mapstructure:"entity_id"`
	UniqueID   string `mapstructure:"unique_id"`
	Name       string `mapstructure:"name"`
	Unit       string `mapstructure:"unit"`
	Key        string `mapstructure:"key"`
	ActiveOnly bool   `mapstructure:"active_only"`
	ResetTime  string `mapstructure:"reset_time"` // optional daily reset, HH:MM local time
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("ONTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "file")
	v.SetDefault("storage.file.dir", "/var/lib/ontime")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "2s")
	v.SetDefault("storage.redis.read_timeout", "1s")
	v.SetDefault("storage.redis.write_timeout", "1s")
	v.SetDefault("storage.redis.key_prefix", "ontime:")

	// Events defaults
	v.SetDefault("events.type", "none")
	v.SetDefault("events.channel_prefix", "ontime:events:")
	v.SetDefault("events.state_channel_prefix", "ontime:state:")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Usage defaults
	v.SetDefault("usage.persist_timeout", "2s")
	v.SetDefault("usage.default_unit", DefaultSensorUnit)
}

// validate validates the configuration and fills per-sensor defaults
func validate(cfg *Config) error {
	if cfg.Server.APIPort < 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "":
		cfg.Storage.Type = "file"
	case "file", "redis":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "file" && cfg.Storage.File.Dir == "" {
		return fmt.Errorf("storage.file.dir is required for file storage")
	}

	switch cfg.Events.Type {
	case "":
		cfg.Events.Type = "none"
	case "redis", "none":
	default:
		return fmt.Errorf("unsupported events type: %s", cfg.Events.Type)
	}

	if _, err := time.ParseDuration(cfg.Usage.PersistTimeout); err != nil {
		return fmt.Errorf("invalid usage.persist_timeout: %w", err)
	}
	if cfg.Usage.DefaultUnit == "" {
		cfg.Usage.DefaultUnit = DefaultSensorUnit
	}

	seen := make(map[string]bool, len(cfg.Sensors))
	keys := make(map[string]int, len(cfg.Sensors))
	for i := range cfg.Sensors {
		s := &cfg.Sensors[i]
		if s.EntityID == "" {
			return fmt.Errorf("sensors[%d]: entity_id is required", i)
		}
		if s.UniqueID == "" {
			s.UniqueID = s.EntityID + UniqueIDSuffix
		}
		if s.Name == "" {
			s.Name = DefaultSensorName
		}
		if s.Unit == "" {
			s.Unit = cfg.Usage.DefaultUnit
		}
		if s.ResetTime != "" {
			if _, err := time.Parse("15:04", s.ResetTime); err != nil {
				return fmt.Errorf("sensors[%d]: invalid reset_time %q (want HH:MM)", i, s.ResetTime)
			}
		}
		if seen[s.UniqueID] {
			return fmt.Errorf("sensors[%d]: duplicate unique_id %q", i, s.UniqueID)
		}
		seen[s.UniqueID] = true

		key := recordKey(*s, cfg.Storage)
		if j, ok := keys[key]; ok {
			return fmt.Errorf("sensors[%d]: store key %q shares a record with sensors[%d]", i, key, j)
		}
		keys[key] = i
	}

	return nil
}

// recordKey resolves the record a sensor writes to. Keys that the file
// backend maps onto the same file resolve to the same value.
func recordKey(s SensorConfig, st StorageConfig) string {
	key := s.Key
	if key == "" {
		key = storage.DefaultKey(s.UniqueID)
	}
	if st.Type == "file" && filepath.IsAbs(key) &&
		filepath.Clean(filepath.Dir(key)) == filepath.Clean(st.File.Dir) {
		key = filepath.Base(key)
	}
	return storage.NormalizeKey(key)
}
