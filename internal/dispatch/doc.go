// Package dispatch routes inbound pub/sub messages to registered
// handlers using MQTT-style topic pattern matching.
//
// The router keeps a subscription table mapping topic patterns to
// handler callbacks. Dispatch tries an exact literal lookup first,
// then scans patterns in registration order and invokes the first
// match. Unmatched messages are logged and dropped.
//
// The package also provides the device control handler, which decodes
// command messages arriving on a device's control topic and emits
// acknowledgements on the reply topic.
package dispatch
