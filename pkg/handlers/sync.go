package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/offline"
)

// SyncHandler exposes the offline sync manager: capturing operations,
// signaling connectivity, and reviewing quarantined operations.
type SyncHandler struct {
	manager *offline.Manager
	logger  *zap.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(manager *offline.Manager, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		manager: manager,
		logger:  logger,
	}
}

// RegisterRoutes registers the sync handler's routes on the given mux.
func (h *SyncHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sync/operations", h.Capture)
	mux.HandleFunc("POST /api/sync/connectivity", h.SetConnectivity)
	mux.HandleFunc("POST /api/sync/flush", h.Flush)
	mux.HandleFunc("GET /api/sync/quarantine", h.Quarantine)
}

type captureRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type captureResponse struct {
	Queued bool `json:"queued"`
}

// Capture handles POST /api/sync/operations
// The operation applies immediately when connectivity is up and nothing is
// queued ahead of it; otherwise it joins the durable queue.
func (h *SyncHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Kind == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_kind", "Operation kind is required")
		return
	}

	queued, err := h.manager.Capture(r.Context(), req.Kind, req.Payload)
	if err != nil {
		h.logger.Error("Failed to capture operation", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "capture_failed", err.Error())
		return
	}

	status := http.StatusOK
	if queued {
		status = http.StatusAccepted
	}
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: captureResponse{Queued: queued}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type connectivityRequest struct {
	Online bool `json:"online"`
}

// SetConnectivity handles POST /api/sync/connectivity
// A transition to online kicks off a background flush.
func (h *SyncHandler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	h.manager.SetOnline(req.Online)
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Flush handles POST /api/sync/flush
// Runs a flush pass synchronously and reports what it did.
func (h *SyncHandler) Flush(w http.ResponseWriter, r *http.Request) {
	report := h.manager.Flush(r.Context())
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: report}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Quarantine handles GET /api/sync/quarantine
func (h *SyncHandler) Quarantine(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.Quarantined()
	if err != nil {
		h.logger.Error("Failed to list quarantined operations", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "quarantine_failed", err.Error())
		return
	}
	if items == nil {
		items = make([]*offline.QueueItem, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: items}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
