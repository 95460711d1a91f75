package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Source:  SourceConfig{MediaDir: "."},
		Relay: RelayConfig{
			Engine:        EngineFFmpeg,
			ChunkDuration: 100 * time.Millisecond,
			GracePeriod:   time.Second,
			Retry: RetryConfig{
				MaxAttempts:   3,
				InitialDelay:  500 * time.Millisecond,
				MaxDelay:      5 * time.Second,
				BackoffFactor: 2,
			},
		},
		Database: DatabaseConfig{Enabled: true, Driver: "sqlite", DSN: "test.db"},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, ".", cfg.Source.MediaDir)
	assert.Contains(t, cfg.Source.Extensions, ".wav")
	assert.True(t, cfg.Source.Watch)

	assert.Equal(t, EngineFFmpeg, cfg.Relay.Engine)
	assert.Equal(t, 100*time.Millisecond, cfg.Relay.ChunkDuration)
	assert.Equal(t, 3*time.Second, cfg.Relay.GracePeriod)
	assert.Equal(t, 15*time.Second, cfg.Relay.ReadTimeout)
	assert.Equal(t, 3, cfg.Relay.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Relay.Retry.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.Relay.Retry.MaxDelay)
	assert.InDelta(t, 2.0, cfg.Relay.Retry.BackoffFactor, 0.0001)

	assert.Equal(t, "VLC/3.0.16", cfg.FFmpeg.UserAgent)
	assert.Equal(t, 2, cfg.FFmpeg.ReconnectDelayMax)

	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 720*time.Hour, cfg.Database.HistoryRetention)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: 9090

source:
  initial: "song.wav"
  media_dir: "/srv/music"

relay:
  engine: native
  chunk_duration: 50ms
  retry:
    max_attempts: 5
    max_delay: 10s

logging:
  level: "debug"
  format: "text"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "song.wav", cfg.Source.Initial)
	assert.Equal(t, "/srv/music", cfg.Source.MediaDir)
	assert.Equal(t, EngineNative, cfg.Relay.Engine)
	assert.Equal(t, 50*time.Millisecond, cfg.Relay.ChunkDuration)
	assert.Equal(t, 5, cfg.Relay.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Relay.Retry.MaxDelay)
	// Untouched nested keys keep their defaults.
	assert.Equal(t, 500*time.Millisecond, cfg.Relay.Retry.InitialDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("INTERNETRADIO_SERVER_PORT", "3000")
	t.Setenv("INTERNETRADIO_RELAY_ENGINE", "auto")
	t.Setenv("INTERNETRADIO_FFMPEG_USER_AGENT", "test-agent/1.0")
	t.Setenv("INTERNETRADIO_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, EngineAuto, cfg.Relay.Engine)
	assert.Equal(t, "test-agent/1.0", cfg.FFmpeg.UserAgent)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 9090\n"), 0o600))

	t.Setenv("INTERNETRADIO_SERVER_PORT", "9000")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0o600))

	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validTestConfig().Validate())
}

func TestValidate_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"zero", 0},
		{"negative", -1},
		{"too large", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			cfg.Server.Port = tt.port
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestValidate_Logging(t *testing.T) {
	cfg := validTestConfig()
	cfg.Logging.Level = "verbose"
	assert.ErrorContains(t, cfg.Validate(), "logging.level")

	cfg = validTestConfig()
	cfg.Logging.Format = "xml"
	assert.ErrorContains(t, cfg.Validate(), "logging.format")
}

func TestValidate_RelayConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RelayConfig)
		wantErr string
	}{
		{"unknown engine", func(r *RelayConfig) { r.Engine = "gstreamer" }, "relay.engine"},
		{"zero chunk", func(r *RelayConfig) { r.ChunkDuration = 0 }, "relay.chunk_duration"},
		{"negative sessions", func(r *RelayConfig) { r.MaxSessions = -1 }, "relay.max_sessions"},
		{"zero grace", func(r *RelayConfig) { r.GracePeriod = 0 }, "relay.grace_period"},
		{"negative watchdog", func(r *RelayConfig) { r.ReadTimeout = -time.Second }, "relay.read_timeout"},
		{"negative attempts", func(r *RelayConfig) { r.Retry.MaxAttempts = -1 }, "max_attempts"},
		{"shrinking backoff", func(r *RelayConfig) { r.Retry.BackoffFactor = 0.5 }, "backoff_factor"},
		{"max below initial", func(r *RelayConfig) { r.Retry.MaxDelay = time.Millisecond }, "max_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg.Relay)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_DatabaseConfig(t *testing.T) {
	cfg := validTestConfig()
	cfg.Database.Driver = "oracle"
	assert.ErrorContains(t, cfg.Validate(), "database.driver")

	cfg = validTestConfig()
	cfg.Database.DSN = ""
	assert.ErrorContains(t, cfg.Validate(), "database.dsn")

	cfg = validTestConfig()
	cfg.Database.HistoryRetention = -time.Hour
	assert.ErrorContains(t, cfg.Validate(), "database.history_retention")

	// Disabled database is not validated.
	cfg = validTestConfig()
	cfg.Database = DatabaseConfig{Enabled: false}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MetricsPath(t *testing.T) {
	cfg := validTestConfig()
	cfg.Metrics.Path = "metrics"
	assert.ErrorContains(t, cfg.Validate(), "metrics.path")
}

func TestServerConfig_Address(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		expected string
	}{
		{"all interfaces", "0.0.0.0", 8080, "0.0.0.0:8080"},
		{"localhost", "127.0.0.1", 3000, "127.0.0.1:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ServerConfig{Host: tt.host, Port: tt.port}
			assert.Equal(t, tt.expected, cfg.Address())
		})
	}
}
