package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/edgewatch/fleet-core/internal/infrastructure/config"
)

// Default timeouts and batching parameters.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	// millisecondsPerSecond converts seconds to milliseconds for the
	// InfluxDB API.
	millisecondsPerSecond = 1000
)

// Client wraps the InfluxDB v2 client for sensor telemetry.
//
// Writes are non-blocking and batched; async write errors are
// delivered through the SetOnError callback.
//
// All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	connected bool
	mu        sync.RWMutex

	onError func(err error)
}

// Connect establishes a connection to the InfluxDB server, verifies it
// with a ping, and configures the batched write API.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		connected: true,
	}

	go c.handleWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// handleWriteErrors forwards async write errors to the callback.
func (c *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// WriteSensorReading records one sensor datapoint.
//
// The point is tagged by device and sensor name so queries can slice
// per device or per measurement kind.
func (c *Client) WriteSensorReading(deviceID, sensor, unit string, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := map[string]interface{}{
		"value": value,
	}

	tags := map[string]string{
		"device_id": deviceID,
		"sensor":    sensor,
	}
	if unit != "" {
		tags["unit"] = unit
	}

	c.writeAPI.WritePoint(write.NewPoint("sensor_reading", tags, fields, ts))
}

// WriteDeviceUptime records a device heartbeat's uptime counter.
func (c *Client) WriteDeviceUptime(deviceID string, uptimeSeconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_uptime",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"uptime_seconds": uptimeSeconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePipelineCounters records a snapshot of the ingestion pipeline
// counters so queue pressure and drop rates can be graphed over time.
func (c *Client) WritePipelineCounters(enqueued, dropped, processed, duplicates uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pipeline_counters",
		nil,
		map[string]interface{}{
			"enqueued":   enqueued,
			"dropped":    dropped,
			"processed":  processed,
			"duplicates": duplicates,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// HealthCheck verifies the connection with an active ping.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("telemetry health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("telemetry health check failed: server not healthy")
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets a callback invoked when async write errors occur.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush forces all pending writes to be sent.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending writes and shuts the client down.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
