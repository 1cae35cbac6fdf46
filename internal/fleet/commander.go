package fleet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Device command endpoints and timeouts. Broadcast messages get a
// tighter deadline than point-to-point commands so one slow device
// cannot drag out the whole fan-out.
const (
	messagePath   = "/api/message"
	configurePath = "/api/configure"
	restartPath   = "/api/restart"

	messageTimeout = 2 * time.Second
	commandTimeout = 5 * time.Second
)

// HTTPCommander delivers commands to devices over their HTTP control
// endpoint. Implements Commander.
type HTTPCommander struct {
	client *http.Client
}

// NewHTTPCommander creates a commander with a shared HTTP client.
// Per-request deadlines are applied per operation.
func NewHTTPCommander() *HTTPCommander {
	return &HTTPCommander{
		client: &http.Client{},
	}
}

// Message posts a broadcast payload to one device.
func (c *HTTPCommander) Message(ctx context.Context, address string, payload []byte) error {
	return c.post(ctx, address, messagePath, payload, messageTimeout)
}

// Configure posts a configuration payload to one device.
func (c *HTTPCommander) Configure(ctx context.Context, address string, config []byte) error {
	return c.post(ctx, address, configurePath, config, commandTimeout)
}

// Restart asks one device to restart itself.
func (c *HTTPCommander) Restart(ctx context.Context, address string) error {
	return c.post(ctx, address, restartPath, nil, commandTimeout)
}

// post sends a JSON POST to http://{address}{path} and treats any
// non-2xx reply as a delivery failure.
func (c *HTTPCommander) post(ctx context.Context, address, path string, payload []byte, timeout time.Duration) error {
	if address == "" {
		return fmt.Errorf("device address is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := "http://" + address + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", url, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("device replied %d", resp.StatusCode)
	}
	return nil
}
