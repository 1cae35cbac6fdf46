package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edgewatch/fleet-core/internal/infrastructure/config"
	"github.com/edgewatch/fleet-core/internal/pipeline"
)

// Backend API endpoints.
const (
	detectPath     = "/api/faces/detect"
	identifyPath   = "/api/faces/identify"
	attendancePath = "/api/attendance/mark"
	sensorPath     = "/api/sensors/data"
)

// Default timeouts, overridable via config.
const (
	defaultIdentifyTimeout = 10 * time.Second
	defaultReportTimeout   = 5 * time.Second
)

// Client talks to the external backend: face localization,
// identification, and the attendance/sensor reporting sink.
//
// Implements pipeline.Detector, pipeline.Identifier, and
// pipeline.Reporter. All calls are one-shot with short timeouts;
// retries are the caller's policy (the pipeline deliberately has
// none).
type Client struct {
	baseURL         string
	httpClient      *http.Client
	identifyTimeout time.Duration
	reportTimeout   time.Duration
}

// NewClient creates a backend client from configuration.
func NewClient(cfg config.BackendConfig) *Client {
	identifyTimeout := time.Duration(cfg.IdentifyTimeout) * time.Second
	if identifyTimeout <= 0 {
		identifyTimeout = defaultIdentifyTimeout
	}
	reportTimeout := time.Duration(cfg.ReportTimeout) * time.Second
	if reportTimeout <= 0 {
		reportTimeout = defaultReportTimeout
	}

	return &Client{
		baseURL:         strings.TrimRight(cfg.URL, "/"),
		httpClient:      &http.Client{},
		identifyTimeout: identifyTimeout,
		reportTimeout:   reportTimeout,
	}
}

// detectRequest and friends are the backend wire formats.
type detectRequest struct {
	Image string `json:"image"` // base64-encoded
}

type detectResponse struct {
	Regions []pipeline.Box `json:"regions"`
}

type identifyRequest struct {
	Image string `json:"image"` // base64-encoded crop
}

type identifyResponse struct {
	SubjectID string `json:"subject_id"`
}

// DetectRegions asks the backend to locate face regions in an image.
func (c *Client) DetectRegions(ctx context.Context, image []byte) ([]pipeline.Box, error) {
	ctx, cancel := context.WithTimeout(ctx, c.identifyTimeout)
	defer cancel()

	var resp detectResponse
	status, err := c.postJSON(ctx, detectPath, detectRequest{
		Image: base64.StdEncoding.EncodeToString(image),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: detect returned %d", ErrRequestFailed, status)
	}
	return resp.Regions, nil
}

// Identify crops the region out of the image and asks the backend to
// resolve it to a subject. A region the backend does not recognize is
// (_, false, nil), not an error.
func (c *Client) Identify(ctx context.Context, image []byte, region pipeline.Box) (string, bool, error) {
	crop, err := CropRegion(image, region)
	if err != nil {
		return "", false, fmt.Errorf("cropping region: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.identifyTimeout)
	defer cancel()

	var resp identifyResponse
	status, err := c.postJSON(ctx, identifyPath, identifyRequest{
		Image: base64.StdEncoding.EncodeToString(crop),
	}, &resp)
	if err != nil {
		return "", false, err
	}

	switch {
	case status == http.StatusOK && resp.SubjectID != "":
		return resp.SubjectID, true, nil
	case status == http.StatusOK || status == http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("%w: identify returned %d", ErrRequestFailed, status)
	}
}

// ReportAttendance forwards one attendance event to the backend.
// The backend acknowledges accepted events with 201 Created.
func (c *Client) ReportAttendance(ctx context.Context, a pipeline.Attendance) error {
	ctx, cancel := context.WithTimeout(ctx, c.reportTimeout)
	defer cancel()

	status, err := c.postJSON(ctx, attendancePath, a, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("%w: attendance report returned %d", ErrRequestFailed, status)
	}
	return nil
}

// ReportSensorReading forwards one sensor reading to the backend.
func (c *Client) ReportSensorReading(ctx context.Context, r pipeline.SensorReading) error {
	ctx, cancel := context.WithTimeout(ctx, c.reportTimeout)
	defer cancel()

	status, err := c.postJSON(ctx, sensorPath, r, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("%w: sensor report returned %d", ErrRequestFailed, status)
	}
	return nil
}

// postJSON sends a JSON POST and decodes the reply into out (when out
// is non-nil and the body is present). The HTTP status is returned for
// the caller to interpret.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse
	}

	return resp.StatusCode, nil
}
