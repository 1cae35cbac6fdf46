package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgewatch/fleet-core/internal/infrastructure/config"
	"github.com/edgewatch/fleet-core/internal/pipeline"
)

// testJPEG renders a small solid-color frame.
func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 128, G: 64, B: 32, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func newTestClient(url string) *Client {
	return NewClient(config.BackendConfig{
		URL:             url,
		IdentifyTimeout: 2,
		ReportTimeout:   2,
	})
}

func TestDetectRegions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/faces/detect" {
			t.Errorf("path = %s, want /api/faces/detect", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"regions": []pipeline.Box{{X: 10, Y: 10, Width: 50, Height: 50}},
		})
	}))
	defer srv.Close()

	regions, err := newTestClient(srv.URL).DetectRegions(context.Background(), []byte{0xff})
	if err != nil {
		t.Fatalf("DetectRegions() error = %v", err)
	}
	if len(regions) != 1 || regions[0].Width != 50 {
		t.Errorf("regions = %+v", regions)
	}
}

func TestIdentifyFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
			t.Error("identify request carries no image")
		}
		json.NewEncoder(w).Encode(map[string]string{"subject_id": "s42"})
	}))
	defer srv.Close()

	frame := testJPEG(t, 200, 200)
	subject, ok, err := newTestClient(srv.URL).Identify(context.Background(), frame,
		pipeline.Box{X: 50, Y: 50, Width: 80, Height: 80})
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if !ok || subject != "s42" {
		t.Errorf("Identify() = (%q, %v)", subject, ok)
	}
}

func TestIdentifyNotRecognized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	frame := testJPEG(t, 100, 100)
	_, ok, err := newTestClient(srv.URL).Identify(context.Background(), frame,
		pipeline.Box{X: 20, Y: 20, Width: 40, Height: 40})
	if err != nil {
		t.Fatalf("Identify() error = %v, want nil for unrecognized face", err)
	}
	if ok {
		t.Error("Identify() ok = true for 404 reply")
	}
}

func TestReportAttendance(t *testing.T) {
	var got pipeline.Attendance
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/attendance/mark" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	a := pipeline.Attendance{
		SubjectID: "s1",
		DeviceID:  "cam1",
		Method:    "face",
		Timestamp: time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC),
	}
	if err := newTestClient(srv.URL).ReportAttendance(context.Background(), a); err != nil {
		t.Fatalf("ReportAttendance() error = %v", err)
	}
	if got.SubjectID != "s1" || got.Method != "face" {
		t.Errorf("backend received %+v", got)
	}
}

func TestReportAttendanceRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK) // accepted is 201, anything else is a failure
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).ReportAttendance(context.Background(), pipeline.Attendance{SubjectID: "s1"})
	if err == nil {
		t.Error("ReportAttendance() error = nil for non-201 reply")
	}
}

func TestReportSensorReading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sensors/data" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).ReportSensorReading(context.Background(), pipeline.SensorReading{
		DeviceID: "d1",
		Sensor:   "temperature",
		Value:    21.5,
	})
	if err != nil {
		t.Errorf("ReportSensorReading() error = %v", err)
	}
}

func TestBackendUnreachable(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")

	if _, err := c.DetectRegions(context.Background(), []byte{0xff}); err == nil {
		t.Error("DetectRegions() error = nil for unreachable backend")
	}
	if err := c.ReportAttendance(context.Background(), pipeline.Attendance{}); err == nil {
		t.Error("ReportAttendance() error = nil for unreachable backend")
	}
}
