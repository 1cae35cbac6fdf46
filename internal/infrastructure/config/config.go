package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Fleet Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Registry RegistryConfig `yaml:"registry"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Fraud    FraudConfig    `yaml:"fraud"`
	Backend  BackendConfig  `yaml:"backend"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig identifies this node on the message bus.
type DeviceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker            MQTTBrokerConfig    `yaml:"broker"`
	Auth              MQTTAuthConfig      `yaml:"auth"`
	QoS               int                 `yaml:"qos"`
	Reconnect         MQTTReconnectConfig `yaml:"reconnect"`
	HeartbeatInterval int                 `yaml:"heartbeat_interval"`
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
// Delays are in seconds; Multiplier scales the delay after each
// failed attempt up to MaxDelay.
type MQTTReconnectConfig struct {
	InitialDelay int     `yaml:"initial_delay"`
	MaxDelay     int     `yaml:"max_delay"`
	Multiplier   float64 `yaml:"multiplier"`
}

// RegistryConfig contains liveness registry settings.
// SweepInterval is how often the registry checks for stale devices;
// HeartbeatTimeout is how long a device may go silent before it is
// marked offline. Both in seconds.
type RegistryConfig struct {
	SweepInterval    int `yaml:"sweep_interval"`
	HeartbeatTimeout int `yaml:"heartbeat_timeout"`
}

// PipelineConfig contains ingestion pipeline settings.
// QueueSize bounds the work queue; AttendanceCooldown (seconds) is the
// minimum interval between accepted attendance events per subject.
type PipelineConfig struct {
	QueueSize          int `yaml:"queue_size"`
	AttendanceCooldown int `yaml:"attendance_cooldown"`
}

// FraudConfig contains attendance fraud heuristic thresholds.
// These are policy constants with no derivation from first principles;
// they are expected to be tuned per deployment.
type FraudConfig struct {
	Enabled bool `yaml:"enabled"`

	// MinInterval is the minimum seconds between accepted marks for
	// one subject before the second mark is considered suspicious.
	MinInterval int `yaml:"min_interval"`

	// DistanceThreshold is the metres a subject may plausibly move
	// within TravelWindow seconds.
	DistanceThreshold float64 `yaml:"distance_threshold"`
	TravelWindow      int     `yaml:"travel_window"`

	// DeviceShareWindow is the seconds within which two different
	// subjects using the same device is flagged.
	DeviceShareWindow int `yaml:"device_share_window"`
}

// BackendConfig contains settings for the external reporting and
// identification services.
type BackendConfig struct {
	URL             string `yaml:"url"`
	IdentifyTimeout int    `yaml:"identify_timeout"`
	ReportTimeout   int    `yaml:"report_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FLEETCORE_SECTION_KEY
// For example: FLEETCORE_DATABASE_PATH, FLEETCORE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

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

// defaultConfig returns a Config with sensible defaults.
//
// The liveness and ingestion defaults (60s sweep, 300s timeout, queue
// of 100, 60s cooldown) match the values the fleet has been operated
// with; treat them as starting points, not constants.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name: "Fleet Core",
		},
		Database: DatabaseConfig{
			Path:        "./data/fleetcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     60,
				Multiplier:   1.5,
			},
			HeartbeatInterval: 30,
		},
		Registry: RegistryConfig{
			SweepInterval:    60,
			HeartbeatTimeout: 300,
		},
		Pipeline: PipelineConfig{
			QueueSize:          100,
			AttendanceCooldown: 60,
		},
		Fraud: FraudConfig{
			Enabled:           true,
			MinInterval:       120,
			DistanceThreshold: 100,
			TravelWindow:      300,
			DeviceShareWindow: 30,
		},
		Backend: BackendConfig{
			URL:             "http://localhost:5000",
			IdentifyTimeout: 10,
			ReportTimeout:   10,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FLEETCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("FLEETCORE_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// Database
	if v := os.Getenv("FLEETCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("FLEETCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FLEETCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLEETCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Backend
	if v := os.Getenv("FLEETCORE_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}

	// InfluxDB
	if v := os.Getenv("FLEETCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required (set FLEETCORE_DEVICE_ID environment variable)")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay < 1 {
		errs = append(errs, "mqtt.reconnect.initial_delay must be at least 1 second")
	}
	if c.MQTT.Reconnect.Multiplier < 1 {
		errs = append(errs, "mqtt.reconnect.multiplier must be at least 1")
	}

	if c.Registry.SweepInterval < 1 {
		errs = append(errs, "registry.sweep_interval must be at least 1 second")
	}
	if c.Registry.HeartbeatTimeout <= c.Registry.SweepInterval {
		errs = append(errs, "registry.heartbeat_timeout must exceed registry.sweep_interval")
	}

	if c.Pipeline.QueueSize < 1 {
		errs = append(errs, "pipeline.queue_size must be at least 1")
	}
	if c.Pipeline.AttendanceCooldown < 0 {
		errs = append(errs, "pipeline.attendance_cooldown cannot be negative")
	}

	if c.Backend.URL == "" {
		errs = append(errs, "backend.url is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SweepInterval returns the registry sweep interval as a Duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Registry.SweepInterval) * time.Second
}

// HeartbeatTimeout returns the liveness timeout as a Duration.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Registry.HeartbeatTimeout) * time.Second
}

// AttendanceCooldown returns the per-subject cooldown window as a Duration.
func (c *Config) AttendanceCooldown() time.Duration {
	return time.Duration(c.Pipeline.AttendanceCooldown) * time.Second
}

// HeartbeatInterval returns the wire heartbeat emission interval as a Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.MQTT.HeartbeatInterval) * time.Second
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
