// Package api provides the HTTP REST control plane for Fleet Core.
//
// It exposes device registry operations (register, heartbeat, broadcast,
// control commands) and ingestion endpoints (attendance, sensor) to
// operator tooling and edge gateways that speak HTTP rather than MQTT.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
