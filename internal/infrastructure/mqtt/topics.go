package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the base for all fleet device topics.
// Scheme: devices/{device_id}/{channel...}
const TopicPrefix = "devices"

// Topics provides builders for fleet MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.DeviceStatus("cam1")
//	// Returns: "devices/cam1/status"
type Topics struct{}

// DeviceStatus returns the retained status topic for a device.
//
// Example: devices/cam1/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, deviceID)
}

// DeviceControl returns the inbound command topic for a device.
//
// Example: devices/cam1/control
func (Topics) DeviceControl(deviceID string) string {
	return fmt.Sprintf("%s/%s/control", TopicPrefix, deviceID)
}

// DeviceControlAck returns the command acknowledgement topic for a device.
//
// Example: devices/cam1/control/ack
func (Topics) DeviceControlAck(deviceID string) string {
	return fmt.Sprintf("%s/%s/control/ack", TopicPrefix, deviceID)
}

// DeviceHeartbeat returns the liveness topic for a device.
//
// Example: devices/cam1/heartbeat
func (Topics) DeviceHeartbeat(deviceID string) string {
	return fmt.Sprintf("%s/%s/heartbeat", TopicPrefix, deviceID)
}

// DeviceData returns the telemetry topic for one sensor kind.
//
// Example: devices/cam1/data/temperature
func (Topics) DeviceData(deviceID, kind string) string {
	return fmt.Sprintf("%s/%s/data/%s", TopicPrefix, deviceID, kind)
}

// AllStatuses returns the wildcard pattern covering every device's
// status topic.
func (Topics) AllStatuses() string {
	return TopicPrefix + "/+/status"
}

// AllHeartbeats returns the wildcard pattern covering every device's
// heartbeat topic.
func (Topics) AllHeartbeats() string {
	return TopicPrefix + "/+/heartbeat"
}

// AllControlAcks returns the wildcard pattern covering every device's
// acknowledgement topic.
func (Topics) AllControlAcks() string {
	return TopicPrefix + "/+/control/ack"
}

// AllData returns the wildcard pattern covering every device's
// telemetry topics of any kind.
func (Topics) AllData() string {
	return TopicPrefix + "/+/data/#"
}

// ParseDeviceID extracts the device id from a fleet topic.
// Returns false for topics outside the devices hierarchy.
func ParseDeviceID(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != TopicPrefix || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ParseDataKind extracts the sensor kind from a telemetry topic.
// Returns false for topics that are not devices/{id}/data/{kind}.
func ParseDataKind(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != TopicPrefix || parts[2] != "data" || parts[3] == "" {
		return "", false
	}
	return strings.Join(parts[3:], "/"), true
}
