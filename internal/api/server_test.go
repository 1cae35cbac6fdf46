package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgewatch/fleet-core/internal/fleet"
	"github.com/edgewatch/fleet-core/internal/infrastructure/config"
	"github.com/edgewatch/fleet-core/internal/infrastructure/logging"
	"github.com/edgewatch/fleet-core/internal/pipeline"
)

// okCommander accepts every command; failCommander rejects everything.
type okCommander struct{ messages int }

func (c *okCommander) Message(_ context.Context, _ string, _ []byte) error {
	c.messages++
	return nil
}
func (c *okCommander) Configure(context.Context, string, []byte) error { return nil }
func (c *okCommander) Restart(context.Context, string) error          { return nil }

type failCommander struct{}

func (failCommander) Message(context.Context, string, []byte) error   { return fmt.Errorf("down") }
func (failCommander) Configure(context.Context, string, []byte) error { return fmt.Errorf("down") }
func (failCommander) Restart(context.Context, string) error           { return fmt.Errorf("down") }

func newTestServer(t *testing.T, commander fleet.Commander) (*Server, http.Handler) {
	t.Helper()

	p := pipeline.New(pipeline.Config{QueueSize: 4}, pipeline.Deps{})

	s, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:   logging.Default(),
		Registry: fleet.NewRegistry(nil, commander),
		Pipeline: p,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, s.buildRouter()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
	if _, err := New(Deps{Logger: logging.Default()}); err == nil {
		t.Fatal("expected error for missing registry")
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, h := newTestServer(t, &okCommander{})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestRegisterAndGetDevice(t *testing.T) {
	_, h := newTestServer(t, &okCommander{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/devices/", registerRequest{
		DeviceID: "cam-01",
		Address:  "10.0.0.5:8080",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/devices/cam-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}

	var dev fleet.Device
	if err := json.Unmarshal(rec.Body.Bytes(), &dev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dev.ID != "cam-01" || dev.Status != fleet.StatusActive {
		t.Fatalf("unexpected device: %+v", dev)
	}
}

func TestRegisterRejectsEmptyID(t *testing.T) {
	_, h := newTestServer(t, &okCommander{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/devices/", registerRequest{Address: "10.0.0.5"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	_, h := newTestServer(t, &okCommander{})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/devices/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHeartbeatEndpoint(t *testing.T) {
	s, h := newTestServer(t, &okCommander{})

	if err := s.registry.Register("cam-01", "10.0.0.5", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/devices/cam-01/heartbeat", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/devices/ghost/heartbeat", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestUnregisterEndpoint(t *testing.T) {
	s, h := newTestServer(t, &okCommander{})

	if err := s.registry.Register("cam-01", "10.0.0.5", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/devices/cam-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if s.registry.Count() != 0 {
		t.Fatalf("device count = %d after unregister, want 0", s.registry.Count())
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/devices/cam-01", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestBroadcastEndpoint(t *testing.T) {
	s, h := newTestServer(t, &okCommander{})

	for _, id := range []string{"cam-01", "cam-02"} {
		if err := s.registry.Register(id, "10.0.0.5", ""); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/devices/broadcast", broadcastRequest{
		Payload: json.RawMessage(`{"action":"sync"}`),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["succeeded"] != 2 || body["failed"] != 0 {
		t.Fatalf("broadcast counts = %v, want succeeded=2 failed=0", body)
	}
}

func TestBroadcastRequiresPayload(t *testing.T) {
	_, h := newTestServer(t, &okCommander{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/devices/broadcast", broadcastRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConfigureAndRestartEndpoints(t *testing.T) {
	s, h := newTestServer(t, &okCommander{})

	if err := s.registry.Register("cam-01", "10.0.0.5", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/devices/cam-01/configure", configureRequest{
		Config: json.RawMessage(`{"fps":15}`),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("configure status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/devices/cam-01/restart", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("restart status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/devices/ghost/restart", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown device restart status = %d, want 404", rec.Code)
	}
}

func TestCommandDeliveryFailureMapsToBadGateway(t *testing.T) {
	s, h := newTestServer(t, failCommander{})

	if err := s.registry.Register("cam-01", "10.0.0.5", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/devices/cam-01/restart", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestIngestAttendanceAccepted(t *testing.T) {
	s, h := newTestServer(t, &okCommander{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/ingest/attendance", ingestAttendanceRequest{
		SubjectID: "emp-7",
		DeviceID:  "cam-01",
		Timestamp: time.Now(),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if got := s.pipeline.Stats().Enqueued; got != 1 {
		t.Fatalf("enqueued = %d, want 1", got)
	}
}

func TestIngestAttendanceValidation(t *testing.T) {
	_, h := newTestServer(t, &okCommander{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/ingest/attendance", ingestAttendanceRequest{
		DeviceID: "cam-01",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestIngestSensorQueueFull(t *testing.T) {
	// Queue size 4 with no consumer running; the fifth enqueue is refused.
	_, h := newTestServer(t, &okCommander{})

	req := ingestSensorRequest{DeviceID: "env-01", Sensor: "temperature", Value: 21.5}
	for i := 0; i < 4; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/ingest/sensor", req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("enqueue %d status = %d, want 202", i, rec.Code)
		}
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/ingest/sensor", req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("overflow status = %d, want 503", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, h := newTestServer(t, &okCommander{})

	if err := s.registry.Register("cam-01", "10.0.0.5", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/ingest/sensor", ingestSensorRequest{
		DeviceID: "env-01", Sensor: "humidity", Value: 40,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ingest status = %d, want 202", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", rec.Code)
	}

	var body struct {
		Pipeline   pipeline.Stats `json:"pipeline"`
		QueueDepth int            `json:"queue_depth"`
		Devices    int            `json:"devices"`
		Active     int            `json:"active"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Pipeline.Enqueued != 1 || body.Devices != 1 || body.Active != 1 {
		t.Fatalf("unexpected stats: %+v", body)
	}
}

func TestRequestIDHeaderEchoed(t *testing.T) {
	_, h := newTestServer(t, &okCommander{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "trace-123" {
		t.Fatalf("X-Request-ID = %q, want trace-123", got)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	_, h := newTestServer(t, &okCommander{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated X-Request-ID header")
	}
}

func TestServerLifecycle(t *testing.T) {
	s, _ := newTestServer(t, &okCommander{})

	if err := s.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check failure before Start")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck after Start: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
