// Package fleet owns the authoritative registry of known devices,
// their connection metadata, and liveness state.
//
// The registry tracks a device map and an active-membership set under
// a single mutex so the two views never disagree. A periodic sweep
// demotes devices whose heartbeats have gone stale to offline, and
// status changes are mirrored to a durable store on a best-effort
// basis. Point-to-point commands and best-effort broadcast fan-out to
// device addresses go through a Commander.
package fleet
