package dispatch

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Control acknowledgement statuses.
const (
	// StatusReceived acknowledges a command before its effect runs.
	// Used for restart, where the device may not survive to ack after.
	StatusReceived = "received"

	// StatusApplied acknowledges a command after its effect completed.
	StatusApplied = "applied"

	// StatusPong is the reply status for ping commands.
	StatusPong = "pong"

	// StatusError acknowledges a command that failed or is unknown.
	StatusError = "error"
)

// Built-in command names.
const (
	CommandRestart = "restart"
	CommandConfig  = "config"
	CommandPing    = "ping"
)

// Publisher publishes messages to the transport. Satisfied by the mqtt
// client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// CommandFunc executes a registered command with its decoded parameters.
type CommandFunc func(params json.RawMessage) error

// controlMessage is the wire format of an inbound command.
type controlMessage struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ackMessage is the wire format of a command acknowledgement.
type ackMessage struct {
	DeviceID  string `json:"device_id"`
	Command   string `json:"command"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ControlConfig configures a ControlHandler.
type ControlConfig struct {
	// DeviceID identifies this device in acknowledgements.
	DeviceID string

	// AckTopic is the reply topic acknowledgements are published on.
	AckTopic string

	// QoS for acknowledgement publishes.
	QoS byte

	// OnRestart is invoked after a restart command is acknowledged.
	// Optional; a restart with no hook is ack-only.
	OnRestart func()

	// OnConfig applies a config command's parameters. Optional; a
	// config command with no hook is acknowledged as an error.
	OnConfig func(params json.RawMessage) error
}

// ControlHandler decodes command messages arriving on a device's
// control topic, executes the command, and publishes an
// acknowledgement on the reply topic.
//
// Built-in vocabulary: restart (acked before the effect), config
// (acked after applying), ping (acked with pong). Further commands can
// be added with RegisterCommand. Unknown commands are logged and
// acknowledged with an error status, distinct from unmatched topics
// which produce no acknowledgement at all.
//
// Handle satisfies the router's Handler signature.
type ControlHandler struct {
	cfg ControlConfig
	pub Publisher

	mu       sync.RWMutex
	commands map[string]CommandFunc
	logger   Logger

	// now is overridable for tests.
	now func() time.Time
}

// NewControlHandler creates a control handler publishing
// acknowledgements through pub.
func NewControlHandler(cfg ControlConfig, pub Publisher) *ControlHandler {
	return &ControlHandler{
		cfg:      cfg,
		pub:      pub,
		commands: make(map[string]CommandFunc),
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the control handler.
func (h *ControlHandler) SetLogger(logger Logger) {
	h.mu.Lock()
	h.logger = logger
	h.mu.Unlock()
}

// RegisterCommand adds a command to the vocabulary. Registering a
// built-in name overrides the built-in behavior.
func (h *ControlHandler) RegisterCommand(name string, fn CommandFunc) {
	h.mu.Lock()
	h.commands[name] = fn
	h.mu.Unlock()
}

// Handle processes one inbound control message.
func (h *ControlHandler) Handle(topic string, payload []byte) error {
	logger := h.getLogger()

	var msg controlMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Command == "" {
		logger.Warn("malformed control payload", "topic", topic)
		h.ack("", StatusError, "malformed command payload")
		return ErrMalformedCommand
	}

	logger.Debug("control command received", "command", msg.Command)

	if fn := h.getCommand(msg.Command); fn != nil {
		if err := fn(msg.Params); err != nil {
			h.ack(msg.Command, StatusError, err.Error())
			return fmt.Errorf("command %q: %w", msg.Command, err)
		}
		h.ack(msg.Command, StatusApplied, "")
		return nil
	}

	switch msg.Command {
	case CommandRestart:
		// Ack first: the device may be gone once the restart runs.
		h.ack(msg.Command, StatusReceived, "")
		if h.cfg.OnRestart != nil {
			h.cfg.OnRestart()
		}
		return nil

	case CommandConfig:
		if h.cfg.OnConfig == nil {
			h.ack(msg.Command, StatusError, "config not supported")
			return nil
		}
		if err := h.cfg.OnConfig(msg.Params); err != nil {
			h.ack(msg.Command, StatusError, err.Error())
			return fmt.Errorf("applying config: %w", err)
		}
		h.ack(msg.Command, StatusApplied, "")
		return nil

	case CommandPing:
		h.ack(msg.Command, StatusPong, "")
		return nil

	default:
		logger.Warn("unknown control command", "command", msg.Command)
		h.ack(msg.Command, StatusError, "unknown command")
		return ErrUnknownCommand
	}
}

// ack publishes an acknowledgement on the reply topic. Publish
// failures are logged, not surfaced; the transport layer owns
// recovery.
func (h *ControlHandler) ack(command, status, message string) {
	payload, err := json.Marshal(ackMessage{
		DeviceID:  h.cfg.DeviceID,
		Command:   command,
		Status:    status,
		Message:   message,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.getLogger().Error("marshaling ack", "command", command, "error", err)
		return
	}

	if err := h.pub.Publish(h.cfg.AckTopic, payload, h.cfg.QoS, false); err != nil {
		h.getLogger().Warn("publishing ack failed",
			"topic", h.cfg.AckTopic,
			"command", command,
			"error", err,
		)
	}
}

func (h *ControlHandler) getCommand(name string) CommandFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.commands[name]
}

func (h *ControlHandler) getLogger() Logger {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.logger
}
