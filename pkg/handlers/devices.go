package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/models"
	"github.com/lotline/lotline-engine/pkg/repositories"
)

// DevicesHandler handles push device registration.
type DevicesHandler struct {
	devices repositories.DeviceRepository
	logger  *zap.Logger
}

// NewDevicesHandler creates a new devices handler.
func NewDevicesHandler(devices repositories.DeviceRepository, logger *zap.Logger) *DevicesHandler {
	return &DevicesHandler{
		devices: devices,
		logger:  logger,
	}
}

// RegisterRoutes registers the devices handler's routes on the given mux.
func (h *DevicesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/devices", h.Register)
}

type registerDeviceRequest struct {
	UserID      uuid.UUID `json:"user_id"`
	AppName     string    `json:"app_name"`
	PushToken   string    `json:"push_token"`
	PushEnabled bool      `json:"push_enabled"`
}

// Register handles POST /api/devices
// Registering the same (user, app) pair again replaces the stored token.
func (h *DevicesHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.UserID == uuid.Nil {
		writeError(w, h.logger, http.StatusBadRequest, "missing_user_id", "User ID is required")
		return
	}
	if req.AppName != models.AppCrew && req.AppName != models.AppOffice {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_app_name", "App name must be 'crew' or 'office'")
		return
	}

	device := &models.Device{
		UserID:      req.UserID,
		AppName:     req.AppName,
		PushToken:   req.PushToken,
		PushEnabled: req.PushEnabled,
	}
	if err := h.devices.Upsert(r.Context(), device); err != nil {
		h.logger.Error("Failed to register device", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "register_device_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: device}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
