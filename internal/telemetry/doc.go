// Package telemetry writes sensor readings and device uptime to
// InfluxDB for time-series analysis.
//
// Telemetry is optional: when disabled in configuration the rest of
// the system runs without it, and write calls on a disconnected client
// are silent no-ops.
package telemetry
