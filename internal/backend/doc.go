// Package backend is the HTTP client for the external backend service:
// face localization and identification inference, and the reporting
// sink for attendance and sensor events.
//
// The client satisfies the pipeline's Detector, Identifier, and
// Reporter interfaces. Calls carry short timeouts and are never
// retried here; the pipeline treats failures as one-shot best-effort.
package backend
