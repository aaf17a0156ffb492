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

// LotsHandler handles lot flow-status and phase advancement requests.
type LotsHandler struct {
	flowService services.FlowService
	logger      *zap.Logger
}

// NewLotsHandler creates a new lots handler.
func NewLotsHandler(flowService services.FlowService, logger *zap.Logger) *LotsHandler {
	return &LotsHandler{
		flowService: flowService,
		logger:      logger,
	}
}

// RegisterRoutes registers the lots handler's routes on the given mux.
func (h *LotsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/lots/{lot_id}/flow-status", h.GetFlowStatus)
	mux.HandleFunc("POST /api/lots/{lot_id}/advance", h.AdvancePhase)
	mux.HandleFunc("POST /api/lots/{lot_id}/blocking-items", h.OpenBlockingItem)
	mux.HandleFunc("POST /api/lots/{lot_id}/blocking-items/{item_id}/close", h.CloseBlockingItem)
	mux.HandleFunc("PUT /api/lots/{lot_id}/gates/{transition_id}", h.RecordGateCheck)
}

// GetFlowStatus handles GET /api/lots/{lot_id}/flow-status
func (h *LotsHandler) GetFlowStatus(w http.ResponseWriter, r *http.Request) {
	lotID, ok := parseLotID(w, r, h.logger)
	if !ok {
		return
	}

	status, err := h.flowService.GetFlowStatus(r.Context(), lotID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "lot_not_found", "Lot not found")
			return
		}
		h.logger.Error("Failed to compute flow status", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "flow_status_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: status}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AdvancePhase handles POST /api/lots/{lot_id}/advance
// A blocked advance returns 422 with the reason; a lost write race that
// exhausted its retries returns 409.
func (h *LotsHandler) AdvancePhase(w http.ResponseWriter, r *http.Request) {
	lotID, ok := parseLotID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.flowService.AdvancePhase(r.Context(), lotID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			writeError(w, h.logger, http.StatusNotFound, "lot_not_found", "Lot not found")
		case errors.Is(err, apperrors.ErrConflict):
			writeError(w, h.logger, http.StatusConflict, "advance_conflict",
				"Another update won the race; re-read flow status and retry")
		default:
			h.logger.Error("Failed to advance lot", zap.Error(err))
			writeError(w, h.logger, http.StatusInternalServerError, "advance_failed", err.Error())
		}
		return
	}

	if result.Blocked != nil {
		if err := WriteJSON(w, http.StatusUnprocessableEntity, ApiResponse{
			Success: false,
			Data:    result,
			Error:   result.Blocked.Message,
		}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type openBlockingItemRequest struct {
	PhaseID     string `json:"phase_id"`
	Description string `json:"description"`
}

// OpenBlockingItem handles POST /api/lots/{lot_id}/blocking-items
func (h *LotsHandler) OpenBlockingItem(w http.ResponseWriter, r *http.Request) {
	lotID, ok := parseLotID(w, r, h.logger)
	if !ok {
		return
	}

	var req openBlockingItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	item := &models.BlockingItem{
		LotID:       lotID,
		PhaseID:     req.PhaseID,
		Description: req.Description,
	}
	if err := h.flowService.OpenBlockingItem(r.Context(), item); err != nil {
		h.logger.Error("Failed to open blocking item", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "open_item_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: item}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// CloseBlockingItem handles POST /api/lots/{lot_id}/blocking-items/{item_id}/close
func (h *LotsHandler) CloseBlockingItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(r.PathValue("item_id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_item_id", "Invalid blocking item ID format")
		return
	}

	if err := h.flowService.CloseBlockingItem(r.Context(), itemID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "item_not_found", "Blocking item not found")
			return
		}
		h.logger.Error("Failed to close blocking item", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "close_item_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Blocking item closed"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type recordGateCheckRequest struct {
	Status string `json:"status"`
}

// RecordGateCheck handles PUT /api/lots/{lot_id}/gates/{transition_id}
func (h *LotsHandler) RecordGateCheck(w http.ResponseWriter, r *http.Request) {
	lotID, ok := parseLotID(w, r, h.logger)
	if !ok {
		return
	}

	var req recordGateCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	check := &models.GateCheck{
		LotID:        lotID,
		TransitionID: r.PathValue("transition_id"),
		Status:       req.Status,
	}
	if err := h.flowService.RecordGateCheck(r.Context(), check); err != nil {
		h.logger.Error("Failed to record gate check", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "gate_check_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: check}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func parseLotID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	lotID, err := uuid.Parse(r.PathValue("lot_id"))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_lot_id", "Invalid lot ID format")
		return uuid.Nil, false
	}
	return lotID, true
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
