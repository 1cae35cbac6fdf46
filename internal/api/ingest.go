package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/edgewatch/fleet-core/internal/pipeline"
)

// ingestAttendanceRequest is the body for POST /ingest/attendance.
type ingestAttendanceRequest struct {
	SubjectID string    `json:"subject_id"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
}

// ingestSensorRequest is the body for POST /ingest/sensor.
type ingestSensorRequest struct {
	DeviceID  string    `json:"device_id"`
	Sensor    string    `json:"sensor"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
	Report    bool      `json:"report"`
}

// handleIngestAttendance enqueues an attendance event for processing.
//
// Returns 202 when queued and 503 when the pipeline queue is full.
func (s *Server) handleIngestAttendance(w http.ResponseWriter, r *http.Request) {
	var req ingestAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.SubjectID == "" || req.DeviceID == "" {
		writeBadRequest(w, "subject_id and device_id are required")
		return
	}

	event := pipeline.Attendance{
		SubjectID: req.SubjectID,
		DeviceID:  req.DeviceID,
		Timestamp: req.Timestamp,
		Method:    req.Method,
	}
	if req.Latitude != nil && req.Longitude != nil {
		event.Latitude = *req.Latitude
		event.Longitude = *req.Longitude
		event.HasLocation = true
	}

	if !s.pipeline.EnqueueAttendance(event, nil) {
		writeUnavailable(w, "ingestion queue full")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// handleIngestSensor enqueues a sensor reading for processing.
//
// Returns 202 when queued and 503 when the pipeline queue is full.
func (s *Server) handleIngestSensor(w http.ResponseWriter, r *http.Request) {
	var req ingestSensorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.DeviceID == "" || req.Sensor == "" {
		writeBadRequest(w, "device_id and sensor are required")
		return
	}

	reading := pipeline.SensorReading{
		DeviceID:  req.DeviceID,
		Sensor:    req.Sensor,
		Value:     req.Value,
		Unit:      req.Unit,
		Timestamp: req.Timestamp,
	}

	var metadata map[string]any
	if req.Report {
		metadata = map[string]any{pipeline.MetaReport: true}
	}

	if !s.pipeline.EnqueueSensor(reading, metadata) {
		writeUnavailable(w, "ingestion queue full")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}
