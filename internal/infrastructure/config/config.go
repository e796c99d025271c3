package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for scopecore.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Instrument  InstrumentConfig  `yaml:"instrument"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	TSDB        TSDBConfig        `yaml:"tsdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Hardware    HardwareConfig    `yaml:"hardware"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
}

// InstrumentConfig identifies the microscope this core controls.
type InstrumentConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// DefaultObjective is the objective assumed active at startup, before
	// the first mode switch.
	DefaultObjective string `yaml:"default_objective"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// TSDBConfig contains VictoriaMetrics connection settings.
//
// VictoriaMetrics is the lightweight telemetry backend for installations
// that want PromQL queries without running InfluxDB. When both backends
// are enabled, telemetry writes go to InfluxDB.
type TSDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HardwareConfig contains hardware driver settings.
//
// With Simulated=true (the default) the core runs against in-memory device
// models, which is how tests and development machines operate. Real driver
// processes attach over the remote bridge instead.
type HardwareConfig struct {
	Simulated bool             `yaml:"simulated"`
	Stage     StageConfig      `yaml:"stage"`
	Camera    CameraConfig     `yaml:"camera"`
	Filter    FilterConfig     `yaml:"filter"`
	Piezo     PiezoConfig      `yaml:"piezo"`
	Fluidics  FluidicsHWConfig `yaml:"fluidics"`
}

// StageConfig contains motorised stage settings and software travel limits.
type StageConfig struct {
	// Travel limits in millimetres. Moves outside these bounds are rejected.
	XMinMm float64 `yaml:"x_min_mm"`
	XMaxMm float64 `yaml:"x_max_mm"`
	YMinMm float64 `yaml:"y_min_mm"`
	YMaxMm float64 `yaml:"y_max_mm"`
	ZMinMm float64 `yaml:"z_min_mm"`
	ZMaxMm float64 `yaml:"z_max_mm"`

	// SettleTimeMs is the post-move settling delay applied by the simulated
	// stage before it reports idle.
	SettleTimeMs int `yaml:"settle_time_ms"`
}

// CameraConfig contains camera frame geometry for the simulated camera.
type CameraConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// ReadTimeoutMs bounds how long a frame read waits after a trigger.
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
}

// FilterConfig contains filter wheel settings.
type FilterConfig struct {
	Positions int `yaml:"positions"`
}

// PiezoConfig contains piezo Z-actuator settings.
type PiezoConfig struct {
	RangeUm float64 `yaml:"range_um"`
}

// FluidicsHWConfig contains fluidics controller settings.
type FluidicsHWConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AcquisitionConfig contains scan engine defaults.
type AcquisitionConfig struct {
	// OutputRoot is the directory new experiments are saved under.
	OutputRoot string `yaml:"output_root"`

	Autofocus  AutofocusConfig  `yaml:"autofocus"`
	SinkRetry  SinkRetryConfig  `yaml:"sink_retry"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Actor      ActorConfig      `yaml:"actor"`
}

// AutofocusConfig contains contrast autofocus sweep defaults.
type AutofocusConfig struct {
	NPlanes       int     `yaml:"n_planes"`
	DeltaZUm      float64 `yaml:"delta_z_um"`
	StopThreshold float64 `yaml:"stop_threshold"`
	EveryNFOVs    int     `yaml:"every_n_fovs"`
}

// SinkRetryConfig bounds the save-sink backpressure retry loop.
type SinkRetryConfig struct {
	Attempts  int `yaml:"attempts"`
	BackoffMs int `yaml:"backoff_ms"`
}

// WorkerPoolConfig bounds the actor's side-work pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// ActorConfig contains command actor tuning.
type ActorConfig struct {
	// PollIntervalMs is the queue wait granularity of the dispatch loop.
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SCOPECORE_SECTION_KEY
// For example: SCOPECORE_DATABASE_PATH, SCOPECORE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
//
// The defaults describe a simulated instrument so the core starts on a
// development machine with no config file edits at all.
func Default() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			ID:               "scope-001",
			Name:             "scopecore",
			DefaultObjective: "20x",
		},
		Database: DatabaseConfig{
			Path:        "./data/scopecore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "scopecore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8070,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		TSDB: TSDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8428",
			BatchSize:     1000,
			FlushInterval: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Hardware: HardwareConfig{
			Simulated: true,
			Stage: StageConfig{
				XMinMm:       0,
				XMaxMm:       120,
				YMinMm:       0,
				YMaxMm:       80,
				ZMinMm:       0,
				ZMaxMm:       6,
				SettleTimeMs: 2,
			},
			Camera: CameraConfig{
				Width:         64,
				Height:        64,
				ReadTimeoutMs: 1000,
			},
			Filter: FilterConfig{
				Positions: 8,
			},
			Piezo: PiezoConfig{
				RangeUm: 300,
			},
		},
		Acquisition: AcquisitionConfig{
			OutputRoot: "/data/experiments",
			Autofocus: AutofocusConfig{
				NPlanes:       10,
				DeltaZUm:      1.524,
				StopThreshold: 0.85,
				EveryNFOVs:    3,
			},
			SinkRetry: SinkRetryConfig{
				Attempts:  50,
				BackoffMs: 100,
			},
			WorkerPool: WorkerPoolConfig{
				Size: 4,
			},
			Actor: ActorConfig{
				PollIntervalMs: 100,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SCOPECORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("SCOPECORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SCOPECORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SCOPECORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SCOPECORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SCOPECORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SCOPECORE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("SCOPECORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// TSDB
	if v := os.Getenv("SCOPECORE_TSDB_URL"); v != "" {
		cfg.TSDB.URL = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Instrument validation
	if c.Instrument.ID == "" {
		errs = append(errs, "instrument.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Telemetry backends need a URL when enabled
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.TSDB.Enabled && c.TSDB.URL == "" {
		errs = append(errs, "tsdb.url is required when tsdb is enabled")
	}

	// Stage travel limits must describe a non-empty volume
	if c.Hardware.Stage.XMaxMm <= c.Hardware.Stage.XMinMm {
		errs = append(errs, "hardware.stage x limits must satisfy x_min_mm < x_max_mm")
	}
	if c.Hardware.Stage.YMaxMm <= c.Hardware.Stage.YMinMm {
		errs = append(errs, "hardware.stage y limits must satisfy y_min_mm < y_max_mm")
	}
	if c.Hardware.Stage.ZMaxMm <= c.Hardware.Stage.ZMinMm {
		errs = append(errs, "hardware.stage z limits must satisfy z_min_mm < z_max_mm")
	}

	// Autofocus validation
	if c.Acquisition.Autofocus.NPlanes < 1 {
		errs = append(errs, "acquisition.autofocus.n_planes must be at least 1")
	}
	if c.Acquisition.Autofocus.StopThreshold <= 0 || c.Acquisition.Autofocus.StopThreshold > 1 {
		errs = append(errs, "acquisition.autofocus.stop_threshold must be in (0, 1]")
	}

	// Worker pool must have at least one slot
	if c.Acquisition.WorkerPool.Size < 1 {
		errs = append(errs, "acquisition.worker_pool.size must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// ActorPollInterval returns the actor queue poll granularity as a Duration.
func (c *Config) ActorPollInterval() time.Duration {
	return time.Duration(c.Acquisition.Actor.PollIntervalMs) * time.Millisecond
}

// SinkRetryBackoff returns the save-sink retry backoff as a Duration.
func (c *Config) SinkRetryBackoff() time.Duration {
	return time.Duration(c.Acquisition.SinkRetry.BackoffMs) * time.Millisecond
}
