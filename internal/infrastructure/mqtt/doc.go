// Package mqtt supervises the MQTT transport connection for Fleet Core.
//
// This package manages:
//   - Connection to the broker with supervisor-owned reconnection
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) on the device status topic
//   - Periodic heartbeat emission with an uptime counter
//
// # Lifecycle
//
// The connection moves through disconnected -> connecting -> connected.
// An unexpected drop enters reconnecting, where an exponential backoff
// loop (initial delay, multiplier, capped maximum, all configurable)
// retries until the broker comes back. Paho's built-in auto-reconnect
// is disabled so this loop is the single owner of recovery behavior.
//
// On connect a retained "online" status is published; a graceful Close
// publishes a retained "offline" status before the transport goes
// down, while a crash leaves the broker to publish the LWT.
//
// # Usage
//
//	client, err := mqtt.Connect("cam1", cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.StartHeartbeat(cfg.HeartbeatInterval())
//
//	err = client.Subscribe(mqtt.Topics{}.DeviceControl("cam1"), 1,
//	    func(topic string, payload []byte) error {
//	        router.Dispatch(topic, payload)
//	        return nil
//	    })
package mqtt
