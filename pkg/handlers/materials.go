package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/apperrors"
	"github.com/lotline/lotline-engine/pkg/models"
	"github.com/lotline/lotline-engine/pkg/services"
)

// MaterialsHandler handles material request HTTP requests.
type MaterialsHandler struct {
	materialService services.MaterialService
	logger          *zap.Logger
}

// NewMaterialsHandler creates a new materials handler.
func NewMaterialsHandler(materialService services.MaterialService, logger *zap.Logger) *MaterialsHandler {
	return &MaterialsHandler{
		materialService: materialService,
		logger:          logger,
	}
}

// RegisterRoutes registers the materials handler's routes on the given mux.
func (h *MaterialsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sites/{site_id}/material-requests", h.Create)
	mux.HandleFunc("GET /api/material-requests/{request_id}", h.Get)
	mux.HandleFunc("PATCH /api/material-requests/{request_id}", h.Transition)
}

type createMaterialRequest struct {
	LotID       *uuid.UUID `json:"lot_id,omitempty"`
	Name        string     `json:"name"`
	Quantity    float64    `json:"quantity,omitempty"`
	Unit        string     `json:"unit,omitempty"`
	Urgency     string     `json:"urgency,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	RequestedBy *uuid.UUID `json:"requested_by,omitempty"`
}

// Create handles POST /api/sites/{site_id}/material-requests
func (h *MaterialsHandler) Create(w http.ResponseWriter, r *http.Request) {
	siteID, ok := parseSiteID(w, r, h.logger)
	if !ok {
		return
	}

	var req createMaterialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	request := &models.MaterialRequest{
		SiteID:      siteID,
		LotID:       req.LotID,
		Name:        req.Name,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		Urgency:     req.Urgency,
		Notes:       req.Notes,
		RequestedBy: req.RequestedBy,
	}
	if err := h.materialService.Create(r.Context(), request); err != nil {
		h.logger.Error("Failed to create material request", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "create_material_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: request}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/material-requests/{request_id}
func (h *MaterialsHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID, ok := parseRequestID(w, r, h.logger)
	if !ok {
		return
	}

	request, err := h.materialService.Get(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "material_not_found", "Material request not found")
			return
		}
		h.logger.Error("Failed to get material request", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "get_material_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: request}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type transitionMaterialRequest struct {
	Status string `json:"status"`
}

// Transition handles PATCH /api/material-requests/{request_id}
// A regression or a repeat of the current status returns 422; losing a race
// against a concurrent transition returns 409.
func (h *MaterialsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	requestID, ok := parseRequestID(w, r, h.logger)
	if !ok {
		return
	}

	var req transitionMaterialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	request, err := h.materialService.Transition(r.Context(), requestID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			writeError(w, h.logger, http.StatusNotFound, "material_not_found", "Material request not found")
		case errors.Is(err, apperrors.ErrInvalidTransition):
			writeError(w, h.logger, http.StatusUnprocessableEntity, "invalid_transition", err.Error())
		case errors.Is(err, apperrors.ErrConflict):
			writeError(w, h.logger, http.StatusConflict, "transition_conflict",
				"Material request was updated concurrently; re-read and retry")
		default:
			h.logger.Error("Failed to transition material request", zap.Error(err))
			writeError(w, h.logger, http.StatusInternalServerError, "transition_failed", err.Error())
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: request}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func parseRequestID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	requestID, err := uuid.Parse(r.PathValue("request_id"))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_request_id", "Invalid material request ID format")
		return uuid.Nil, false
	}
	return requestID, true
}
