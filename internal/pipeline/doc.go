// Package pipeline is the bounded, single-consumer ingestion queue.
//
// Producers (capture threads, transport handlers, the REST layer) hand
// heterogeneous work items (image, attendance, sensor) to non-blocking
// enqueue calls; a full queue drops the item rather than stalling the
// producer. One background consumer drains the queue in FIFO order:
// images run face detection and identification, attendance marks are
// deduplicated per subject within a cooldown window and forwarded to
// the reporting sink, and sensor readings are written to telemetry and
// optionally reported.
//
// Every forward to an external capability is one-shot best-effort:
// failures are logged, never retried or re-queued.
package pipeline
