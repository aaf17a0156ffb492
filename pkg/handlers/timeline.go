package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/lotline/lotline-engine/pkg/models"
	"github.com/lotline/lotline-engine/pkg/services"
)

// TimelineHandler handles site timeline HTTP and WebSocket requests.
type TimelineHandler struct {
	timelineService  services.TimelineService
	mediationService services.MediationService
	logger           *zap.Logger
}

// NewTimelineHandler creates a new timeline handler.
func NewTimelineHandler(
	timelineService services.TimelineService,
	mediationService services.MediationService,
	logger *zap.Logger,
) *TimelineHandler {
	return &TimelineHandler{
		timelineService:  timelineService,
		mediationService: mediationService,
		logger:           logger,
	}
}

// RegisterRoutes registers the timeline handler's routes on the given mux.
func (h *TimelineHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sites/{site_id}/messages", h.PostMessage)
	mux.HandleFunc("GET /api/sites/{site_id}/messages", h.Backlog)
	mux.HandleFunc("GET /api/sites/{site_id}/stream", h.Stream)
}

type postMessageRequest struct {
	LotID       *uuid.UUID          `json:"lot_id,omitempty"`
	Sender      models.Sender       `json:"sender"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// PostMessage handles POST /api/sites/{site_id}/messages
// The message is persisted and published first; mediation runs after, so a
// classifier outage never blocks the feed.
func (h *TimelineHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	siteID, ok := parseSiteID(w, r, h.logger)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, h.logger, http.StatusBadRequest, "empty_content", "Message content is required")
		return
	}

	msg, err := h.timelineService.PostMessage(r.Context(), siteID, req.LotID, req.Sender, req.Content, req.Attachments)
	if err != nil {
		h.logger.Error("Failed to post message", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "post_message_failed", err.Error())
		return
	}

	result, err := h.mediationService.Mediate(r.Context(), msg.ID)
	if err != nil {
		// The message is already persisted; mediation can be re-run later.
		h.logger.Error("Mediation failed for posted message",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err))
	} else {
		msg.Interpretation = result
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: msg}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Backlog handles GET /api/sites/{site_id}/messages
// Query params: lot_id (optional filter), limit.
func (h *TimelineHandler) Backlog(w http.ResponseWriter, r *http.Request) {
	siteID, ok := parseSiteID(w, r, h.logger)
	if !ok {
		return
	}

	var lotID *uuid.UUID
	if raw := r.URL.Query().Get("lot_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_lot_id", "Invalid lot ID format")
			return
		}
		lotID = &id
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_limit", "Invalid limit")
			return
		}
		limit = n
	}

	messages, err := h.timelineService.Backlog(r.Context(), siteID, lotID, limit)
	if err != nil {
		h.logger.Error("Failed to load backlog", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "backlog_failed", err.Error())
		return
	}
	if messages == nil {
		messages = make([]*models.TimelineMessage, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: messages}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Stream handles GET /api/sites/{site_id}/stream
// Query params: lot_id (optional filter).
// Upgrades to a WebSocket and forwards live timeline messages until the
// client disconnects. Clients catch up on reconnect via Backlog.
func (h *TimelineHandler) Stream(w http.ResponseWriter, r *http.Request) {
	siteID, ok := parseSiteID(w, r, h.logger)
	if !ok {
		return
	}

	var lotID *uuid.UUID
	if raw := r.URL.Query().Get("lot_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_lot_id", "Invalid lot ID format")
			return
		}
		lotID = &id
	}

	messages, err := h.timelineService.Subscribe(r.Context(), siteID, lotID)
	if err != nil {
		writeError(w, h.logger, http.StatusServiceUnavailable, "stream_unavailable", err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := r.Context()
	for msg := range messages {
		if err := h.writeMessage(ctx, conn, msg); err != nil {
			if !errors.Is(err, context.Canceled) {
				h.logger.Debug("stream write failed, closing",
					zap.String("site_id", siteID.String()),
					zap.Error(err))
			}
			return
		}
	}
}

func (h *TimelineHandler) writeMessage(ctx context.Context, conn *websocket.Conn, msg *models.TimelineMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func parseSiteID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	siteID, err := uuid.Parse(r.PathValue("site_id"))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_site_id", "Invalid site ID format")
		return uuid.Nil, false
	}
	return siteID, true
}
