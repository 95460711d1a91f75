// Package config provides configuration management for internetradio using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for all environment variable overrides.
const EnvPrefix = "INTERNETRADIO"

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultServerTimeout     = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultChunkDuration     = 100 * time.Millisecond
	defaultMaxSessions       = 32
	defaultGracePeriod       = 3 * time.Second
	defaultReadTimeout       = 15 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryInitialDelay = 500 * time.Millisecond
	defaultRetryMaxDelay     = 5 * time.Second
	defaultBackoffFactor     = 2.0
	defaultProgressLogChunks = 100
	defaultBreakerThreshold  = 3
	defaultBreakerTimeout    = 30 * time.Second
	defaultProbeTimeout      = 10 * time.Second
	defaultUserAgent         = "VLC/3.0.16"
	defaultReconnectDelayMax = 2
	defaultMaxOpenConns      = 4
	defaultMaxIdleConns      = 2
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultHistoryRetention  = 30 * 24 * time.Hour
)

// Engine names accepted by relay.engine.
const (
	EngineFFmpeg = "ffmpeg"
	EngineNative = "native"
	EngineAuto   = "auto"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Source   SourceConfig   `mapstructure:"source"`
	Relay    RelayConfig    `mapstructure:"relay"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout must stay 0 for /stream, which never completes.
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// SourceConfig holds audio source selection and catalog configuration.
type SourceConfig struct {
	// Initial is a filename inside MediaDir or an http(s) URL.
	Initial        string        `mapstructure:"initial"`
	MediaDir       string        `mapstructure:"media_dir"`
	Extensions     []string      `mapstructure:"extensions"`
	Watch          bool          `mapstructure:"watch"`
	RescanSchedule string        `mapstructure:"rescan_schedule"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
}

// RelayConfig holds the transcoding relay configuration.
type RelayConfig struct {
	Engine            string               `mapstructure:"engine"` // ffmpeg, native, auto
	ChunkDuration     time.Duration        `mapstructure:"chunk_duration"`
	MaxSessions       int                  `mapstructure:"max_sessions"` // 0 = unlimited
	GracePeriod       time.Duration        `mapstructure:"grace_period"`
	ReadTimeout       time.Duration        `mapstructure:"read_timeout"` // watchdog, 0 = disabled
	ProgressLogChunks int                  `mapstructure:"progress_log_chunks"`
	StatsSchedule     string               `mapstructure:"stats_schedule"`
	Retry             RetryConfig          `mapstructure:"retry"`
	CircuitBreaker    CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// RetryConfig configures restart-with-backoff after abnormal termination.
type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
}

// CircuitBreakerConfig configures the per-host breaker used for remote sources.
type CircuitBreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath        string `mapstructure:"binary_path"` // empty = auto-detect
	UserAgent         string `mapstructure:"user_agent"`  // sent to remote sources
	ReconnectDelayMax int    `mapstructure:"reconnect_delay_max"`
	LogLevel          string `mapstructure:"log_level"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
	// HistoryRetention bounds how long finished sessions are kept; 0 keeps them forever.
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with INTERNETRADIO_ and use underscores for nesting.
// Example: INTERNETRADIO_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/internetradio")
		v.AddConfigPath("$HOME/.internetradio")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.idle_timeout", defaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Source defaults
	v.SetDefault("source.initial", "")
	v.SetDefault("source.media_dir", ".")
	v.SetDefault("source.extensions", []string{".wav", ".mp3", ".ogg", ".flac", ".aiff", ".aif", ".m4a", ".aac", ".opus"})
	v.SetDefault("source.watch", true)
	v.SetDefault("source.rescan_schedule", "@every 5m")
	v.SetDefault("source.probe_timeout", defaultProbeTimeout)

	// Relay defaults
	v.SetDefault("relay.engine", EngineFFmpeg)
	v.SetDefault("relay.chunk_duration", defaultChunkDuration)
	v.SetDefault("relay.max_sessions", defaultMaxSessions)
	v.SetDefault("relay.grace_period", defaultGracePeriod)
	v.SetDefault("relay.read_timeout", defaultReadTimeout)
	v.SetDefault("relay.progress_log_chunks", defaultProgressLogChunks)
	v.SetDefault("relay.stats_schedule", "@every 1m")
	v.SetDefault("relay.retry.max_attempts", defaultRetryAttempts)
	v.SetDefault("relay.retry.initial_delay", defaultRetryInitialDelay)
	v.SetDefault("relay.retry.max_delay", defaultRetryMaxDelay)
	v.SetDefault("relay.retry.backoff_factor", defaultBackoffFactor)
	v.SetDefault("relay.circuit_breaker.threshold", defaultBreakerThreshold)
	v.SetDefault("relay.circuit_breaker.timeout", defaultBreakerTimeout)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.user_agent", defaultUserAgent)
	v.SetDefault("ffmpeg.reconnect_delay_max", defaultReconnectDelayMax)
	v.SetDefault("ffmpeg.log_level", "error")

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "internetradio.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.history_retention", defaultHistoryRetention)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Source.MediaDir == "" {
		return fmt.Errorf("source.media_dir is required")
	}

	if err := c.Relay.Validate(); err != nil {
		return err
	}

	if c.Database.Enabled {
		validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
		if !validDrivers[c.Database.Driver] {
			return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
		if c.Database.HistoryRetention < 0 {
			return fmt.Errorf("database.history_retention must not be negative")
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// Validate checks the relay section.
func (c *RelayConfig) Validate() error {
	switch c.Engine {
	case EngineFFmpeg, EngineNative, EngineAuto:
	default:
		return fmt.Errorf("relay.engine must be one of: ffmpeg, native, auto")
	}

	// One output frame is 1/32000 s; anything shorter yields an empty chunk.
	if c.ChunkDuration < time.Second/32000 {
		return fmt.Errorf("relay.chunk_duration must be at least one sample (31.25µs)")
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("relay.max_sessions must not be negative")
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("relay.grace_period must be positive")
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("relay.read_timeout must not be negative")
	}

	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("relay.retry.max_attempts must not be negative")
	}
	if c.Retry.BackoffFactor < 1 {
		return fmt.Errorf("relay.retry.backoff_factor must be at least 1")
	}
	if c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < c.Retry.InitialDelay {
		return fmt.Errorf("relay.retry.max_delay must be >= relay.retry.initial_delay >= 0")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
