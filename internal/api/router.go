package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		// Device fleet endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListActive)
			r.Post("/", s.handleRegisterDevice)
			r.Post("/broadcast", s.handleBroadcast)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Delete("/", s.handleUnregisterDevice)
				r.Post("/heartbeat", s.handleHeartbeat)
				r.Post("/configure", s.handleConfigure)
				r.Post("/restart", s.handleRestart)
			})
		})

		// Ingestion endpoints
		r.Route("/ingest", func(r chi.Router) {
			r.Post("/attendance", s.handleIngestAttendance)
			r.Post("/sensor", s.handleIngestSensor)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStats returns pipeline counters and fleet size.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pipeline":    s.pipeline.Stats(),
		"queue_depth": s.pipeline.QueueDepth(),
		"devices":     s.registry.Count(),
		"active":      len(s.registry.ListActive()),
	})
}
