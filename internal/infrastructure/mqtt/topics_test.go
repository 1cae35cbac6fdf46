package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status", topics.DeviceStatus("cam1"), "devices/cam1/status"},
		{"control", topics.DeviceControl("cam1"), "devices/cam1/control"},
		{"control ack", topics.DeviceControlAck("cam1"), "devices/cam1/control/ack"},
		{"heartbeat", topics.DeviceHeartbeat("cam1"), "devices/cam1/heartbeat"},
		{"data", topics.DeviceData("cam1", "temperature"), "devices/cam1/data/temperature"},
		{"all statuses", topics.AllStatuses(), "devices/+/status"},
		{"all heartbeats", topics.AllHeartbeats(), "devices/+/heartbeat"},
		{"all control acks", topics.AllControlAcks(), "devices/+/control/ack"},
		{"all data", topics.AllData(), "devices/+/data/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseDeviceID(t *testing.T) {
	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"devices/cam1/status", "cam1", true},
		{"devices/cam1/data/temperature", "cam1", true},
		{"devices/cam1", "cam1", true},
		{"sensors/cam1/status", "", false},
		{"devices", "", false},
		{"devices//status", "", false},
	}

	for _, tt := range tests {
		id, ok := ParseDeviceID(tt.topic)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("ParseDeviceID(%q) = (%q, %v), want (%q, %v)",
				tt.topic, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestParseDataKind(t *testing.T) {
	tests := []struct {
		topic    string
		wantKind string
		wantOK   bool
	}{
		{"devices/cam1/data/temperature", "temperature", true},
		{"devices/cam1/data/env/humidity", "env/humidity", true},
		{"devices/cam1/status", "", false},
		{"devices/cam1/data", "", false},
	}

	for _, tt := range tests {
		kind, ok := ParseDataKind(tt.topic)
		if kind != tt.wantKind || ok != tt.wantOK {
			t.Errorf("ParseDataKind(%q) = (%q, %v), want (%q, %v)",
				tt.topic, kind, ok, tt.wantKind, tt.wantOK)
		}
	}
}
