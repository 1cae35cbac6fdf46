package pipeline

import (
	"context"
	"time"

	"github.com/edgewatch/fleet-core/internal/fraud"
)

// Kind discriminates queued work items.
type Kind string

const (
	KindImage      Kind = "image"
	KindAttendance Kind = "attendance"
	KindSensor     Kind = "sensor"
)

// Metadata keys with pipeline-level meaning. Everything else rides
// along untouched.
const (
	// MetaReport marks a sensor item for forwarding to the reporting
	// sink. Unmarked sensor items are only logged and written to
	// telemetry.
	MetaReport = "report"

	// MetaLocation carries a free-form location label.
	MetaLocation = "location"
)

// Item is one unit of ingestion work. Once enqueued it is owned by the
// pipeline; producers must not mutate the payload after handoff.
type Item struct {
	Kind       Kind
	Payload    any
	Metadata   map[string]any
	EnqueuedAt time.Time
}

// Image is a raw captured frame awaiting face detection.
type Image struct {
	DeviceID   string    `json:"device_id"`
	Data       []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
}

// Box is a detected face region within an image.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Attendance is one attendance assertion for a subject.
type Attendance struct {
	SubjectID   string    `json:"subject_id"`
	DeviceID    string    `json:"device_id"`
	Timestamp   time.Time `json:"timestamp"`
	Method      string    `json:"method"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	HasLocation bool      `json:"-"`
	Flagged     bool      `json:"flagged,omitempty"`
	FlagReason  string    `json:"flag_reason,omitempty"`
}

// SensorReading is one telemetry datapoint from a device.
type SensorReading struct {
	DeviceID  string    `json:"device_id"`
	Sensor    string    `json:"sensor"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Detector locates face regions in an image.
type Detector interface {
	DetectRegions(ctx context.Context, image []byte) ([]Box, error)
}

// Identifier resolves a face region to a subject id. The second return
// is false when no subject matched; that is not an error.
type Identifier interface {
	Identify(ctx context.Context, image []byte, region Box) (subjectID string, ok bool, err error)
}

// Reporter forwards qualifying events to the external reporting sink.
type Reporter interface {
	ReportAttendance(ctx context.Context, a Attendance) error
	ReportSensorReading(ctx context.Context, r SensorReading) error
}

// Recorder persists accepted attendance events locally.
type Recorder interface {
	RecordAttendance(ctx context.Context, a Attendance) error
}

// TelemetryWriter receives every sensor reading for time-series
// storage, independent of the report flag.
type TelemetryWriter interface {
	WriteSensorReading(r SensorReading)
}

// FraudChecker evaluates accepted attendance marks for suspicious
// patterns.
type FraudChecker interface {
	Check(e fraud.Event) (flagged bool, reason string)
}
