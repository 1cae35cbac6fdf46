package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfigFile writes a temporary config file and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const validConfig = `
device:
  id: "cam-entrance-01"
  location: "51.5,-0.12"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
registry:
  sweep_interval: 60
  heartbeat_timeout: 300
pipeline:
  queue_size: 100
  attendance_cooldown: 60
backend:
  url: "http://backend.local:5000"
`

func TestLoadValidConfig(t *testing.T) {
	path := writeConfigFile(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.ID != "cam-entrance-01" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "cam-entrance-01")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.Registry.HeartbeatTimeout != 300 {
		t.Errorf("Registry.HeartbeatTimeout = %d, want 300", cfg.Registry.HeartbeatTimeout)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
device:
  id: "cam-1"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pipeline.QueueSize != 100 {
		t.Errorf("default Pipeline.QueueSize = %d, want 100", cfg.Pipeline.QueueSize)
	}
	if cfg.Registry.SweepInterval != 60 {
		t.Errorf("default Registry.SweepInterval = %d, want 60", cfg.Registry.SweepInterval)
	}
	if cfg.MQTT.HeartbeatInterval != 30 {
		t.Errorf("default MQTT.HeartbeatInterval = %d, want 30", cfg.MQTT.HeartbeatInterval)
	}
	if cfg.MQTT.Reconnect.Multiplier != 1.5 {
		t.Errorf("default MQTT.Reconnect.Multiplier = %v, want 1.5", cfg.MQTT.Reconnect.Multiplier)
	}
	if !cfg.Fraud.Enabled {
		t.Error("fraud checks should be enabled by default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, validConfig)

	t.Setenv("FLEETCORE_MQTT_HOST", "override.local")
	t.Setenv("FLEETCORE_DEVICE_ID", "cam-override")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "override.local" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.Device.ID != "cam-override" {
		t.Errorf("Device.ID = %q, want env override", cfg.Device.ID)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing device id",
			mutate:  func(c *Config) { c.Device.ID = "" },
			wantErr: "device.id",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "zero queue size",
			mutate:  func(c *Config) { c.Pipeline.QueueSize = 0 },
			wantErr: "pipeline.queue_size",
		},
		{
			name: "timeout not above sweep interval",
			mutate: func(c *Config) {
				c.Registry.SweepInterval = 60
				c.Registry.HeartbeatTimeout = 60
			},
			wantErr: "registry.heartbeat_timeout",
		},
		{
			name:    "missing backend url",
			mutate:  func(c *Config) { c.Backend.URL = "" },
			wantErr: "backend.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Device.ID = "cam-1"
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should return error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.SweepInterval(); got != 60*time.Second {
		t.Errorf("SweepInterval() = %v, want 60s", got)
	}
	if got := cfg.HeartbeatTimeout(); got != 300*time.Second {
		t.Errorf("HeartbeatTimeout() = %v, want 300s", got)
	}
	if got := cfg.AttendanceCooldown(); got != 60*time.Second {
		t.Errorf("AttendanceCooldown() = %v, want 60s", got)
	}
	if got := cfg.HeartbeatInterval(); got != 30*time.Second {
		t.Errorf("HeartbeatInterval() = %v, want 30s", got)
	}
}
