package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/edgewatch/fleet-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Reconnect backoff defaults, used when config values are zero.
const (
	defaultReconnectInitial    = 5 * time.Second
	defaultReconnectMax        = 60 * time.Second
	defaultReconnectMultiplier = 1.5
)

// buildClientOptions creates paho MQTT options from fleet config.
//
// Paho's built-in auto-reconnect is deliberately disabled: the
// supervisor runs its own backoff loop so reconnection behavior is
// observable and testable rather than buried in the library.
func buildClientOptions(deviceID string, cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = deviceID
	}
	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// Reconnection is owned by the supervisor loop.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(defaultConnectTimeout)

	// Keepalive - broker PINGs detect dead connections
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// configureLWT sets up Last Will and Testament on the device's status
// topic. The broker publishes it if the client drops without a
// graceful disconnect, so observers always see a terminal offline
// state.
//
// QoS 1, retained: new subscribers see the last known status.
func configureLWT(opts *pahomqtt.ClientOptions, deviceID string) {
	willTopic := Topics{}.DeviceStatus(deviceID)
	willPayload := fmt.Sprintf(
		`{"status":"offline","device_id":"%s","reason":"unexpected_disconnect","timestamp":"%s"}`,
		deviceID,
		time.Now().UTC().Format(time.RFC3339),
	)

	opts.SetWill(willTopic, willPayload, 1, true)
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(deviceID string) string {
	return fmt.Sprintf(
		`{"status":"online","device_id":"%s","timestamp":"%s"}`,
		deviceID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(deviceID string) string {
	return fmt.Sprintf(
		`{"status":"offline","device_id":"%s","reason":"graceful_shutdown","timestamp":"%s"}`,
		deviceID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// reconnectSchedule resolves the backoff parameters from config,
// falling back to defaults for unset values.
func reconnectSchedule(cfg config.MQTTReconnectConfig) (initial, max time.Duration, multiplier float64) {
	initial = time.Duration(cfg.InitialDelay) * time.Second
	if initial <= 0 {
		initial = defaultReconnectInitial
	}
	max = time.Duration(cfg.MaxDelay) * time.Second
	if max <= 0 {
		max = defaultReconnectMax
	}
	multiplier = cfg.Multiplier
	if multiplier <= 1 {
		multiplier = defaultReconnectMultiplier
	}
	return initial, max, multiplier
}

// nextDelay advances the backoff schedule by one failed attempt.
func nextDelay(current, max time.Duration, multiplier float64) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next > max {
		return max
	}
	return next
}
