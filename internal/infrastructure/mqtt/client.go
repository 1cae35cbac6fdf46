package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/edgewatch/fleet-core/internal/infrastructure/config"
)

// State is the supervisor's connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Client supervises the MQTT transport connection for one device.
//
// It wraps paho.mqtt.golang with connection management, publishing,
// subscription tracking, heartbeat emission, and reconnection with
// exponential backoff. On connect it publishes a retained online
// status; on graceful Close it publishes a retained offline status
// before tearing the transport down. Unexpected drops are announced by
// the broker via the Last Will message and recovered by the
// supervisor's own backoff loop.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client   pahomqtt.Client
	options  *pahomqtt.ClientOptions
	cfg      config.MQTTConfig
	deviceID string

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	state   State
	stateMu sync.RWMutex

	// closing marks a user-requested disconnect, which must not spawn
	// a reconnection loop.
	closing bool

	// closeCh aborts the reconnection loop on Close.
	closeCh chan struct{}

	// startedAt anchors the uptime counter carried by heartbeats.
	startedAt time.Time

	// heartbeat loop lifecycle.
	hbStop chan struct{}
	hbDone chan struct{}

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload (typically JSON)
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a connection to the MQTT broker for a device.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament on the device status topic
//  3. Attempts the initial connection with timeout
//  4. Publishes a retained "online" status
//
// Reconnection after an unexpected drop is handled by the supervisor's
// backoff loop, not by paho.
func Connect(deviceID string, cfg config.MQTTConfig) (*Client, error) {
	if deviceID == "" {
		return nil, ErrEmptyDeviceID
	}

	opts := buildClientOptions(deviceID, cfg)
	configureLWT(opts, deviceID)

	c := &Client{
		cfg:           cfg,
		options:       opts,
		deviceID:      deviceID,
		subscriptions: make(map[string]subscription),
		closeCh:       make(chan struct{}),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.setState(StateConnecting)

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.setState(StateDisconnected)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		c.setState(StateDisconnected)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// Set connected state immediately after successful connection.
	// The OnConnectHandler callback runs asynchronously and may not
	// have executed yet; it handles subscription restoration and the
	// status publish.
	c.setState(StateConnected)
	c.startedAt = time.Now()

	return c, nil
}

// handleConnect is called by paho when a connection is established,
// both initially and after each successful reconnect.
func (c *Client) handleConnect() {
	c.setState(StateConnected)

	c.restoreSubscriptions()
	c.publishOnlineStatus()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called by paho when the connection is lost
// unexpectedly. A user-requested Close never reaches here with
// reconnection intent.
func (c *Client) handleDisconnect(err error) {
	c.stateMu.Lock()
	closing := c.closing
	if closing {
		c.state = StateDisconnected
	} else {
		c.state = StateReconnecting
	}
	c.stateMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}

	if closing {
		return
	}

	if logger := c.getLogger(); logger != nil {
		logger.Warn("mqtt connection lost", "error", err)
	}

	go c.reconnectLoop()
}

// reconnectLoop retries the broker connection with exponential
// backoff until it succeeds or the client is closed. Paho invokes
// handleConnect on success, which restores subscriptions and
// republishes the online status.
func (c *Client) reconnectLoop() {
	delay, max, multiplier := reconnectSchedule(c.cfg.Reconnect)
	logger := c.getLogger()

	for attempt := 1; ; attempt++ {
		select {
		case <-c.closeCh:
			return
		case <-time.After(delay):
		}

		if logger != nil {
			logger.Info("mqtt reconnect attempt", "attempt", attempt, "delay", delay)
		}

		token := c.client.Connect()
		if token.WaitTimeout(defaultConnectTimeout) && token.Error() == nil {
			if logger != nil {
				logger.Info("mqtt reconnected", "attempt", attempt)
			}
			return
		}

		if logger != nil {
			logger.Warn("mqtt reconnect failed",
				"attempt", attempt,
				"error", token.Error(),
				"next_delay", nextDelay(delay, max, multiplier),
			)
		}
		delay = nextDelay(delay, max, multiplier)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Re-subscribe (ignore errors during reconnection)
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// publishOnlineStatus publishes the retained online status for this device.
func (c *Client) publishOnlineStatus() {
	topic := Topics{}.DeviceStatus(c.deviceID)
	payload := buildOnlinePayload(c.deviceID)
	c.client.Publish(topic, byte(c.cfg.QoS), true, payload)
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Stops the heartbeat loop and any pending reconnection
//  2. Publishes a retained graceful offline status (distinct from the
//     LWT crash status) before the transport goes down
//  3. Disconnects with a quiesce period for pending operations
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.stateMu.Lock()
	alreadyClosing := c.closing
	c.closing = true
	c.stateMu.Unlock()

	if alreadyClosing {
		return nil
	}

	close(c.closeCh)
	c.StopHeartbeat()

	// Offline-before-disconnect ordering: observers must see a
	// terminal offline state rather than a silent drop.
	if c.IsConnected() {
		topic := Topics{}.DeviceStatus(c.deviceID)
		payload := buildOfflinePayload(c.deviceID)
		token := c.client.Publish(topic, byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.setState(StateDisconnected)

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// State returns the supervisor's current lifecycle state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// setState updates the lifecycle state.
func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// IsConnected returns the current connection state.
//
// Note: This reflects the last known state. For reliability,
// use HealthCheck which can perform an active test.
func (c *Client) IsConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state == StateConnected && c.client.IsConnected()
}

// DeviceID returns the device id this client supervises.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// Uptime returns how long the client has been running since its first
// successful connect.
func (c *Client) Uptime() time.Duration {
	if c.startedAt.IsZero() {
		return 0
	}
	return time.Since(c.startedAt)
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
