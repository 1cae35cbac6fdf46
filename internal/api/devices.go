package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgewatch/fleet-core/internal/fleet"
)

// registerRequest is the body for POST /devices.
type registerRequest struct {
	DeviceID string `json:"device_id"`
	Address  string `json:"address"`
	Protocol string `json:"protocol"`
}

// broadcastRequest is the body for POST /devices/broadcast. The payload
// is forwarded to every active device verbatim.
type broadcastRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// configureRequest is the body for POST /devices/{id}/configure.
type configureRequest struct {
	Config json.RawMessage `json:"config"`
}

// handleListActive returns all devices currently considered active.
func (s *Server) handleListActive(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.ListActive()
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleRegisterDevice registers a device or refreshes its liveness.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := s.registry.Register(req.DeviceID, req.Address, req.Protocol); err != nil {
		if errors.Is(err, fleet.ErrEmptyDeviceID) {
			writeBadRequest(w, "device_id is required")
			return
		}
		writeInternalError(w, "failed to register device")
		return
	}

	dev, _ := s.registry.GetDevice(req.DeviceID)
	writeJSON(w, http.StatusCreated, dev)
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, ok := s.registry.GetDevice(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleUnregisterDevice removes a device from the fleet.
func (s *Server) handleUnregisterDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.registry.Unregister(id) {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "removed": true})
}

// handleHeartbeat records a liveness heartbeat for a device.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.registry.Heartbeat(id) {
		writeNotFound(w, "device not registered")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"status":    s.registry.GetStatus(id),
	})
}

// handleBroadcast sends a payload to every active device and reports
// per-fleet delivery counts.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if len(req.Payload) == 0 {
		writeBadRequest(w, "payload is required")
		return
	}

	succeeded, failed := s.registry.Broadcast(r.Context(), req.Payload)
	writeJSON(w, http.StatusOK, map[string]any{
		"succeeded": succeeded,
		"failed":    failed,
	})
}

// handleConfigure pushes a configuration payload to one device.
func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := s.registry.Configure(r.Context(), id, req.Config); err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "configured": true})
}

// handleRestart asks one device to restart.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.Restart(r.Context(), id); err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "restarting": true})
}

// writeCommandError maps registry command errors to HTTP responses.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fleet.ErrDeviceNotRegistered):
		writeNotFound(w, "device not registered")
	case errors.Is(err, fleet.ErrDeliveryFailed):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "device unreachable")
	default:
		writeInternalError(w, "command failed")
	}
}
