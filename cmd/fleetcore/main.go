// Fleet Core - Edge Fleet Management & Telemetry Ingestion
//
// This is the main entry point for the Fleet Core application. It
// supervises a fleet of networked edge devices (cameras, sensor
// nodes) over MQTT: heartbeat-based liveness, device control
// commands, and a bounded ingestion pipeline feeding attendance and
// sensor data to the reporting backend and time-series storage.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/edgewatch/fleet-core/migrations"

	"github.com/edgewatch/fleet-core/internal/api"
	"github.com/edgewatch/fleet-core/internal/backend"
	"github.com/edgewatch/fleet-core/internal/dispatch"
	"github.com/edgewatch/fleet-core/internal/fleet"
	"github.com/edgewatch/fleet-core/internal/fraud"
	"github.com/edgewatch/fleet-core/internal/infrastructure/config"
	"github.com/edgewatch/fleet-core/internal/infrastructure/database"
	"github.com/edgewatch/fleet-core/internal/infrastructure/logging"
	"github.com/edgewatch/fleet-core/internal/infrastructure/mqtt"
	"github.com/edgewatch/fleet-core/internal/pipeline"
	"github.com/edgewatch/fleet-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Fleet Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise fleet registry with durable store and HTTP commander
	store := fleet.NewSQLiteStore(db)
	registry := fleet.NewRegistry(store, fleet.NewHTTPCommander())
	registry.SetLogger(log)

	known, err := store.LoadDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading known devices: %w", err)
	}
	registry.Restore(known)
	log.Info("fleet registry initialised", "devices", registry.Count())

	registry.StartSweep(
		time.Duration(cfg.Registry.SweepInterval)*time.Second,
		time.Duration(cfg.Registry.HeartbeatTimeout)*time.Second,
	)
	defer func() {
		log.Info("stopping registry sweep")
		registry.StopSweep()
	}()

	// Connect to InfluxDB (optional)
	var influxClient *telemetry.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = telemetry.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Fraud heuristics (optional)
	var checker *fraud.Checker
	if cfg.Fraud.Enabled {
		checker = fraud.NewChecker(fraud.Config{
			MinInterval:       time.Duration(cfg.Fraud.MinInterval) * time.Second,
			DistanceThreshold: cfg.Fraud.DistanceThreshold,
			TravelWindow:      time.Duration(cfg.Fraud.TravelWindow) * time.Second,
			DeviceShareWindow: time.Duration(cfg.Fraud.DeviceShareWindow) * time.Second,
		})
		log.Info("fraud heuristics enabled",
			"min_interval", cfg.Fraud.MinInterval,
			"distance_threshold", cfg.Fraud.DistanceThreshold,
		)
	}

	// Backend client provides detection, identification, and reporting
	backendClient := backend.NewClient(cfg.Backend)

	sink := telemetryWriter{client: influxClient}

	// Ingestion pipeline
	pipe := pipeline.New(pipeline.Config{
		QueueSize: cfg.Pipeline.QueueSize,
		Cooldown:  time.Duration(cfg.Pipeline.AttendanceCooldown) * time.Second,
	}, pipeline.Deps{
		Detector:   backendClient,
		Identifier: backendClient,
		Reporter:   backendClient,
		Recorder:   pipeline.NewSQLiteRecorder(db),
		Telemetry:  sink,
		Fraud:      fraudChecker(checker),
	})
	pipe.SetLogger(log)
	pipe.Start()
	defer func() {
		log.Info("stopping ingestion pipeline")
		pipe.Stop()
	}()

	// Periodic pipeline counter snapshots to telemetry
	if influxClient != nil {
		interval := time.Duration(cfg.InfluxDB.FlushInterval) * time.Second
		stopStats := startStatsReporter(pipe, sink, interval)
		defer stopStats()
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.Device.ID, cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT session established")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"device_id", cfg.Device.ID,
	)

	// restartRequested is closed when a restart command arrives over
	// the control topic; the process exits cleanly and the process
	// supervisor brings it back up.
	restartRequested := make(chan struct{})

	if err := wireMessageRouting(cfg, log, mqttClient, registry, pipe, sink, restartRequested); err != nil {
		return fmt.Errorf("wiring message routing: %w", err)
	}

	mqttClient.StartHeartbeat(time.Duration(cfg.MQTT.HeartbeatInterval) * time.Second)
	defer mqttClient.StopHeartbeat()

	// Start HTTP control plane
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		Registry: registry,
		Pipeline: pipe,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case <-restartRequested:
		log.Info("restart requested over control topic, cleaning up")
	}

	log.Info("Fleet Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FLEETCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLEETCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// wireMessageRouting subscribes the MQTT client to the fleet topics
// and routes inbound messages to the registry, pipeline, and control
// handler.
func wireMessageRouting(
	cfg *config.Config,
	log *logging.Logger,
	mqttClient *mqtt.Client,
	registry *fleet.Registry,
	pipe *pipeline.Pipeline,
	sink uptimeWriter,
	restartRequested chan struct{},
) error {
	var topics mqtt.Topics
	// #nosec G115 -- qos validated to 0..2 by config.Validate
	qos := byte(cfg.MQTT.QoS)

	router := dispatch.NewRouter()
	router.SetLogger(log)

	var restartOnce sync.Once
	control := dispatch.NewControlHandler(dispatch.ControlConfig{
		DeviceID: cfg.Device.ID,
		AckTopic: topics.DeviceControlAck(cfg.Device.ID),
		QoS:      qos,
		OnRestart: func() {
			restartOnce.Do(func() { close(restartRequested) })
		},
		OnConfig: func(params json.RawMessage) error {
			log.Info("configuration update received over control topic", "params", string(params))
			return nil
		},
	}, mqttClient)
	control.SetLogger(log)

	if err := router.Subscribe(topics.DeviceControl(cfg.Device.ID), control.Handle); err != nil {
		return err
	}
	if err := router.Subscribe(topics.AllHeartbeats(), handleDeviceHeartbeat(registry, sink)); err != nil {
		return err
	}
	if err := router.Subscribe(topics.AllStatuses(), handleDeviceStatus(cfg.Device.ID, log, registry)); err != nil {
		return err
	}
	if err := router.Subscribe(topics.AllData(), handleDeviceData(log, pipe)); err != nil {
		return err
	}

	for _, topic := range router.Patterns() {
		if err := mqttClient.Subscribe(topic, qos, func(topic string, payload []byte) error {
			router.Dispatch(topic, payload)
			return nil
		}); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

// uptimeWriter records device uptime gauges from heartbeats.
type uptimeWriter interface {
	WriteDeviceUptime(deviceID string, uptimeSeconds float64)
}

// counterWriter records pipeline counter snapshots.
type counterWriter interface {
	WritePipelineCounters(enqueued, dropped, processed, duplicates uint64)
}

// deviceHeartbeat is the wire format of a device heartbeat. Address
// is optional and lets previously unknown devices self-register.
type deviceHeartbeat struct {
	DeviceID      string  `json:"device_id"`
	Address       string  `json:"address,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// handleDeviceHeartbeat records fleet liveness from heartbeat topics
// and forwards the reported uptime to telemetry.
func handleDeviceHeartbeat(registry *fleet.Registry, sink uptimeWriter) dispatch.Handler {
	return func(topic string, payload []byte) error {
		id, ok := mqtt.ParseDeviceID(topic)
		if !ok {
			return fmt.Errorf("malformed heartbeat topic: %s", topic)
		}

		// A heartbeat counts for liveness even when the payload does
		// not decode; the topic alone identifies the device.
		var hb deviceHeartbeat
		if err := json.Unmarshal(payload, &hb); err != nil {
			hb = deviceHeartbeat{}
		}

		known := registry.Heartbeat(id)
		if !known {
			// Unknown device: self-register when the heartbeat carries
			// an address, otherwise ignore until it announces itself.
			if hb.Address == "" {
				return nil
			}
			if err := registry.Register(id, hb.Address, ""); err != nil {
				return err
			}
		}

		if hb.UptimeSeconds > 0 {
			sink.WriteDeviceUptime(id, hb.UptimeSeconds)
		}
		return nil
	}
}

// startStatsReporter periodically snapshots the pipeline counters to
// telemetry. The returned stop function waits for the loop to exit.
func startStatsReporter(pipe *pipeline.Pipeline, sink counterWriter, interval time.Duration) func() {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s := pipe.Stats()
				sink.WritePipelineCounters(s.Enqueued, s.Dropped, s.Processed, s.Duplicates)
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

// deviceStatus is the wire format of a retained status message
// (online announcement or last-will offline).
type deviceStatus struct {
	Status  string `json:"status"`
	Address string `json:"address,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// handleDeviceStatus treats online announcements as liveness and logs
// offline notices; the sweep remains the authority for demotion.
func handleDeviceStatus(selfID string, log *logging.Logger, registry *fleet.Registry) dispatch.Handler {
	return func(topic string, payload []byte) error {
		id, ok := mqtt.ParseDeviceID(topic)
		if !ok {
			return fmt.Errorf("malformed status topic: %s", topic)
		}
		if id == selfID {
			return nil
		}

		var st deviceStatus
		if err := json.Unmarshal(payload, &st); err != nil {
			return fmt.Errorf("decoding status message: %w", err)
		}

		switch st.Status {
		case "online":
			if registry.Heartbeat(id) {
				return nil
			}
			if st.Address == "" {
				return nil
			}
			return registry.Register(id, st.Address, "")
		case "offline":
			log.Info("device reported offline", "device_id", id, "reason", st.Reason)
		}
		return nil
	}
}

// imageMessage is the wire format of an inbound camera frame.
type imageMessage struct {
	Data       []byte    `json:"data"`
	CapturedAt time.Time `json:"captured_at"`
}

// attendanceMessage is the wire format of an inbound attendance mark.
type attendanceMessage struct {
	SubjectID string    `json:"subject_id"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
}

// sensorMessage is the wire format of an inbound sensor reading.
type sensorMessage struct {
	Sensor    string    `json:"sensor"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
	Report    bool      `json:"report"`
}

// handleDeviceData feeds data topic payloads into the ingestion
// pipeline. Drops on full queue are already counted by the pipeline;
// they are logged here for visibility.
func handleDeviceData(log *logging.Logger, pipe *pipeline.Pipeline) dispatch.Handler {
	return func(topic string, payload []byte) error {
		id, ok := mqtt.ParseDeviceID(topic)
		if !ok {
			return fmt.Errorf("malformed data topic: %s", topic)
		}
		kind, ok := mqtt.ParseDataKind(topic)
		if !ok {
			return fmt.Errorf("malformed data topic: %s", topic)
		}

		var accepted bool
		switch kind {
		case "image":
			var msg imageMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				return fmt.Errorf("decoding image message: %w", err)
			}
			accepted = pipe.EnqueueImage(pipeline.Image{
				DeviceID:   id,
				Data:       msg.Data,
				CapturedAt: msg.CapturedAt,
			}, nil)

		case "attendance":
			var msg attendanceMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				return fmt.Errorf("decoding attendance message: %w", err)
			}
			event := pipeline.Attendance{
				SubjectID: msg.SubjectID,
				DeviceID:  id,
				Timestamp: msg.Timestamp,
				Method:    msg.Method,
			}
			if msg.Latitude != nil && msg.Longitude != nil {
				event.Latitude = *msg.Latitude
				event.Longitude = *msg.Longitude
				event.HasLocation = true
			}
			accepted = pipe.EnqueueAttendance(event, nil)

		case "sensor":
			var msg sensorMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				return fmt.Errorf("decoding sensor message: %w", err)
			}
			var metadata map[string]any
			if msg.Report {
				metadata = map[string]any{pipeline.MetaReport: true}
			}
			accepted = pipe.EnqueueSensor(pipeline.SensorReading{
				DeviceID:  id,
				Sensor:    msg.Sensor,
				Value:     msg.Value,
				Unit:      msg.Unit,
				Timestamp: msg.Timestamp,
			}, metadata)

		default:
			return fmt.Errorf("unknown data kind: %s", kind)
		}

		if !accepted {
			log.Warn("ingestion queue full, message dropped", "device_id", id, "kind", kind)
		}
		return nil
	}
}

// telemetryWriter adapts the InfluxDB client to the pipeline's
// telemetry capability. A nil client makes every write a no-op.
type telemetryWriter struct {
	client *telemetry.Client
}

func (t telemetryWriter) WriteSensorReading(r pipeline.SensorReading) {
	if t.client == nil {
		return
	}
	t.client.WriteSensorReading(r.DeviceID, r.Sensor, r.Unit, r.Value, r.Timestamp)
}

func (t telemetryWriter) WriteDeviceUptime(deviceID string, uptimeSeconds float64) {
	if t.client == nil {
		return
	}
	t.client.WriteDeviceUptime(deviceID, uptimeSeconds)
}

func (t telemetryWriter) WritePipelineCounters(enqueued, dropped, processed, duplicates uint64) {
	if t.client == nil {
		return
	}
	t.client.WritePipelineCounters(enqueued, dropped, processed, duplicates)
}

// fraudChecker returns the checker as a pipeline capability, or nil
// when fraud heuristics are disabled so the pipeline skips the check.
func fraudChecker(c *fraud.Checker) pipeline.FraudChecker {
	if c == nil {
		return nil
	}
	return c
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *telemetry.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
