package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// defaultProtocol is recorded when Register is called without one.
const defaultProtocol = "mqtt"

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store mirrors registry status changes to durable storage.
// Failures are logged by the registry, never fatal to in-memory state.
type Store interface {
	UpsertDeviceStatus(ctx context.Context, device Device) error
	DeleteDevice(ctx context.Context, deviceID string) error
}

// Commander delivers point-to-point messages to a device's address.
// Implementations carry their own short timeouts.
type Commander interface {
	Message(ctx context.Context, address string, payload []byte) error
	Configure(ctx context.Context, address string, config []byte) error
	Restart(ctx context.Context, address string) error
}

// Registry is the authoritative set of known devices and their
// liveness state.
//
// The device map and active-membership set are mutated together under
// one mutex, so a device can never appear active in one view and
// absent in the other. Reads return copies; network I/O (broadcast,
// commands, store sync) happens outside the lock.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.Mutex
	devices map[string]*Device
	active  map[string]struct{}

	store     Store
	commander Commander
	logger    Logger

	// now is overridable for tests.
	now func() time.Time

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// NewRegistry creates a registry. Both store and commander are
// optional; a nil store disables durable sync and a nil commander
// makes point-to-point commands fail with ErrDeliveryFailed.
func NewRegistry(store Store, commander Commander) *Registry {
	return &Registry{
		devices:   make(map[string]*Device),
		active:    make(map[string]struct{}),
		store:     store,
		commander: commander,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Restore seeds the registry with devices loaded from durable storage
// on startup. Restored devices are offline until a live heartbeat
// arrives; ids already present in the registry are left untouched.
func (r *Registry) Restore(devices []Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range devices {
		if d.ID == "" {
			continue
		}
		if _, exists := r.devices[d.ID]; exists {
			continue
		}
		record := d
		record.Status = StatusOffline
		r.devices[d.ID] = &record
	}
}

// Register inserts or overwrites a device record, marking it active
// and stamping its heartbeat. Re-registering an already-active device
// succeeds and refreshes its address.
func (r *Registry) Register(deviceID, address, protocol string) error {
	if deviceID == "" {
		return ErrEmptyDeviceID
	}
	if protocol == "" {
		protocol = defaultProtocol
	}

	r.mu.Lock()
	now := r.now()
	d, existed := r.devices[deviceID]
	if !existed {
		d = &Device{ID: deviceID, ConnectedAt: now}
		r.devices[deviceID] = d
	}
	d.Address = address
	d.Protocol = protocol
	d.Status = StatusActive
	if now.After(d.LastHeartbeat) {
		d.LastHeartbeat = now
	}
	r.active[deviceID] = struct{}{}
	snapshot := *d
	logger := r.logger
	r.mu.Unlock()

	logger.Info("device registered",
		"device_id", deviceID,
		"address", address,
		"protocol", protocol,
		"new", !existed,
	)
	r.syncStore(snapshot)
	return nil
}

// Heartbeat records a liveness signal for a known device, reviving it
// from offline if needed. Returns false if the device id is unknown.
func (r *Registry) Heartbeat(deviceID string) bool {
	r.mu.Lock()
	d, ok := r.devices[deviceID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if now := r.now(); now.After(d.LastHeartbeat) {
		d.LastHeartbeat = now
	}
	revived := d.Status != StatusActive
	d.Status = StatusActive
	r.active[deviceID] = struct{}{}
	snapshot := *d
	logger := r.logger
	r.mu.Unlock()

	if revived {
		logger.Info("device back online", "device_id", deviceID)
	}
	r.syncStore(snapshot)
	return true
}

// Unregister removes a device record entirely. Returns false if the
// id was not registered.
func (r *Registry) Unregister(deviceID string) bool {
	r.mu.Lock()
	_, ok := r.devices[deviceID]
	if ok {
		delete(r.devices, deviceID)
		delete(r.active, deviceID)
	}
	logger := r.logger
	r.mu.Unlock()

	if !ok {
		return false
	}

	logger.Info("device unregistered", "device_id", deviceID)
	if r.store != nil {
		ctx, cancel := storeContext()
		defer cancel()
		if err := r.store.DeleteDevice(ctx, deviceID); err != nil {
			logger.Warn("deleting device from store failed",
				"device_id", deviceID,
				"error", err,
			)
		}
	}
	return true
}

// GetStatus returns a device's liveness state, or StatusUnknown for
// ids not in the registry.
func (r *Registry) GetStatus(deviceID string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return StatusUnknown
	}
	return d.Status
}

// GetDevice returns a copy of a device's record.
func (r *Registry) GetDevice(deviceID string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// ListActive returns copies of all currently active devices, sorted
// by id for deterministic output.
func (r *Registry) ListActive() []Device {
	r.mu.Lock()
	devices := make([]Device, 0, len(r.active))
	for id := range r.active {
		if d, ok := r.devices[id]; ok {
			devices = append(devices, *d)
		}
	}
	r.mu.Unlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}

// Count returns the number of registered devices regardless of status.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Broadcast delivers a message to every currently active device on a
// best-effort basis. Per-device failures are logged and counted but do
// not abort delivery to the rest. The active set is snapshotted before
// any network I/O, so slow deliveries never hold the registry lock.
func (r *Registry) Broadcast(ctx context.Context, payload []byte) (succeeded, failed int) {
	targets := r.ListActive()
	logger := r.getLogger()

	for _, d := range targets {
		if err := r.send(ctx, d.Address, payload); err != nil {
			failed++
			logger.Warn("broadcast delivery failed",
				"device_id", d.ID,
				"address", d.Address,
				"error", err,
			)
			continue
		}
		succeeded++
	}

	logger.Info("broadcast complete", "succeeded", succeeded, "failed", failed)
	return succeeded, failed
}

// Configure sends a configuration payload to one device. Registry
// state is not mutated on failure.
func (r *Registry) Configure(ctx context.Context, deviceID string, config []byte) error {
	d, ok := r.GetDevice(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotRegistered, deviceID)
	}
	if r.commander == nil {
		return ErrDeliveryFailed
	}
	if err := r.commander.Configure(ctx, d.Address, config); err != nil {
		return fmt.Errorf("%w: configure %s: %v", ErrDeliveryFailed, deviceID, err)
	}
	return nil
}

// Restart asks one device to restart. Registry state is not mutated
// on failure.
func (r *Registry) Restart(ctx context.Context, deviceID string) error {
	d, ok := r.GetDevice(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotRegistered, deviceID)
	}
	if r.commander == nil {
		return ErrDeliveryFailed
	}
	if err := r.commander.Restart(ctx, d.Address); err != nil {
		return fmt.Errorf("%w: restart %s: %v", ErrDeliveryFailed, deviceID, err)
	}
	return nil
}

// send delivers one broadcast payload.
func (r *Registry) send(ctx context.Context, address string, payload []byte) error {
	if r.commander == nil {
		return ErrDeliveryFailed
	}
	return r.commander.Message(ctx, address, payload)
}

// syncStore mirrors a status change to the durable store. Failures are
// logged only; in-memory state has already progressed.
func (r *Registry) syncStore(d Device) {
	if r.store == nil {
		return
	}
	ctx, cancel := storeContext()
	defer cancel()
	if err := r.store.UpsertDeviceStatus(ctx, d); err != nil {
		r.getLogger().Warn("durable store sync failed",
			"device_id", d.ID,
			"status", d.Status,
			"error", err,
		)
	}
}

// storeContext bounds durable-store calls so a stuck database can
// never stall registry callers.
func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// getLogger returns the current logger.
func (r *Registry) getLogger() Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logger
}
