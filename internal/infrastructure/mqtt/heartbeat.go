package mqtt

import (
	"fmt"
	"time"
)

// defaultHeartbeatInterval is used when the configured interval is zero.
const defaultHeartbeatInterval = 30 * time.Second

// StartHeartbeat launches the liveness emission loop: while connected,
// a heartbeat message carrying a timestamp and uptime counter is
// published at the given interval. Intervals <= 0 fall back to the
// default. Calling StartHeartbeat while a loop is running is a no-op.
//
// This is the wire-side half of liveness; the receiving side's
// registry bookkeeping is independent of it.
func (c *Client) StartHeartbeat(interval time.Duration) {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}

	c.stateMu.Lock()
	if c.hbStop != nil {
		c.stateMu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.hbStop = stop
	c.hbDone = done
	c.stateMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.emitHeartbeat()
			}
		}
	}()
}

// StopHeartbeat stops the emission loop and waits for it to exit.
// No-op if the loop was never started.
func (c *Client) StopHeartbeat() {
	c.stateMu.Lock()
	stop := c.hbStop
	done := c.hbDone
	c.hbStop = nil
	c.hbDone = nil
	c.stateMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// emitHeartbeat publishes one liveness message. Skipped while
// disconnected; the reconnect loop will bring the connection back and
// the next tick resumes emission.
func (c *Client) emitHeartbeat() {
	if !c.IsConnected() {
		return
	}

	payload := fmt.Sprintf(
		`{"device_id":"%s","timestamp":"%s","uptime_seconds":%.0f}`,
		c.deviceID,
		time.Now().UTC().Format(time.RFC3339),
		c.Uptime().Seconds(),
	)

	topic := Topics{}.DeviceHeartbeat(c.deviceID)
	if err := c.PublishString(topic, payload, byte(c.cfg.QoS), false); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("heartbeat publish failed", "error", err)
		}
	}
}
