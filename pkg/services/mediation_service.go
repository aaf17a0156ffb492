package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/config"
	"github.com/lotline/lotline-engine/pkg/jsonutil"
	"github.com/lotline/lotline-engine/pkg/llm"
	"github.com/lotline/lotline-engine/pkg/models"
	"github.com/lotline/lotline-engine/pkg/repositories"
	"github.com/lotline/lotline-engine/pkg/retry"
	"github.com/lotline/lotline-engine/pkg/services/dispatch"
)

// classifyRetryConfig retries transient provider errors (rate limits,
// timeouts) with short backoff before giving up and falling back.
var classifyRetryConfig = &retry.Config{
	MaxRetries:   2,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
	JitterFactor: 0.1,
}

const mediationSystemPrompt = `You classify short updates posted by construction crews on residential sites.
Given one message and the site context, return ONLY a JSON object:
{
  "event_type": one of note|material_request|alert|calendar_event|status_change|issue|inspection|milestone|worker_arrival|worker_departure,
  "title": short human-readable title,
  "description": one-sentence summary,
  "confidence": number between 0 and 1,
  "material": {"name", "quantity", "unit", "urgency", "lot_number"} when materials are requested,
  "calendar": {"title", "starts_at"} when a date or appointment is mentioned
}
Use "note" with low confidence for small talk or anything ambiguous.
Lots are referred to by their lot number, not by id.`

// MediationService classifies one raw timeline message into a typed event,
// applies side effects, and persists the interpretation. Classification
// failure is never an error: the message keeps its content and gets the
// zero-confidence fallback.
type MediationService interface {
	Mediate(ctx context.Context, messageID uuid.UUID) (*models.MediationResult, error)
}

type mediationService struct {
	messages   repositories.TimelineRepository
	sites      repositories.SiteRepository
	lots       repositories.LotRepository
	materials  repositories.MaterialRequestRepository
	classifier llm.Classifier
	notifier   NotificationService
	queue      *dispatch.Queue
	schema     *jsonschema.Schema
	cfg        config.MediationConfig
	logger     *zap.Logger
}

// NewMediationService creates a new MediationService. A nil classifier means
// every message gets the fallback interpretation; a nil queue sends
// notifications synchronously (used in tests).
func NewMediationService(
	messages repositories.TimelineRepository,
	sites repositories.SiteRepository,
	lots repositories.LotRepository,
	materials repositories.MaterialRequestRepository,
	classifier llm.Classifier,
	notifier NotificationService,
	queue *dispatch.Queue,
	cfg config.MediationConfig,
	logger *zap.Logger,
) (MediationService, error) {
	schema, err := compileMediationSchema()
	if err != nil {
		return nil, err
	}
	return &mediationService{
		messages:   messages,
		sites:      sites,
		lots:       lots,
		materials:  materials,
		classifier: classifier,
		notifier:   notifier,
		queue:      queue,
		schema:     schema,
		cfg:        cfg,
		logger:     logger.Named("mediation-service"),
	}, nil
}

var _ MediationService = (*mediationService)(nil)

func (s *mediationService) Mediate(ctx context.Context, messageID uuid.UUID) (*models.MediationResult, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	result := s.classify(ctx, msg)

	if result.EventType == models.EventMaterialRequest &&
		result.Confidence >= s.cfg.ConfidenceThreshold &&
		result.Material != nil {
		if err := s.createMaterialRequest(ctx, msg, result); err != nil {
			// The interpretation still persists; the side record can be
			// created manually from the message.
			s.logger.Error("failed to create material request from message",
				zap.String("message_id", messageID.String()),
				zap.Error(err))
		}
	}

	// Idempotent: re-running mediation on the same message overwrites the
	// previous interpretation, it never duplicates anything.
	if err := s.messages.SetInterpretation(ctx, messageID, result); err != nil {
		return nil, fmt.Errorf("persist interpretation: %w", err)
	}

	if result.Confidence >= s.cfg.ConfidenceThreshold && result.EventType != models.EventNote {
		s.notifyAsync(msg, result.EventType)
	}

	return result, nil
}

// classify runs the collaborator and parses its output, falling back to the
// zero-confidence note on any failure. The fallback is a valid terminal
// state, not an error.
func (s *mediationService) classify(ctx context.Context, msg *models.TimelineMessage) *models.MediationResult {
	if s.classifier == nil {
		return models.FallbackResult(msg.Content)
	}

	prompt, err := s.buildPrompt(ctx, msg)
	if err != nil {
		s.logger.Warn("failed to build mediation context",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err))
		return models.FallbackResult(msg.Content)
	}

	raw, err := s.classifier.Classify(ctx, prompt, mediationSystemPrompt)
	if err != nil && retry.IsRetryable(err) {
		raw, err = retry.DoWithResult(ctx, classifyRetryConfig, func() (string, error) {
			return s.classifier.Classify(ctx, prompt, mediationSystemPrompt)
		})
	}
	if err != nil {
		s.logger.Warn("classification failed, using fallback",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err))
		return models.FallbackResult(msg.Content)
	}

	result, err := parseMediationResponse(s.schema, raw)
	if err != nil {
		s.logger.Warn("unparseable classifier output, using fallback",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err))
		return models.FallbackResult(msg.Content)
	}

	if result.DisplayText == "" {
		result.DisplayText = msg.Content
	}
	return result
}

// buildPrompt assembles a bounded context snapshot: site name, up to
// MaxContextLots active lots, sender, and current time. The cap keeps the
// prompt from growing with the site.
func (s *mediationService) buildPrompt(ctx context.Context, msg *models.TimelineMessage) (string, error) {
	site, err := s.sites.GetByID(ctx, msg.SiteID)
	if err != nil {
		return "", fmt.Errorf("get site: %w", err)
	}

	lots, err := s.lots.ListActiveBySite(ctx, msg.SiteID, s.cfg.MaxContextLots)
	if err != nil {
		return "", fmt.Errorf("list active lots: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Site: %s\n", site.Name)
	fmt.Fprintf(&b, "Time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Sender: %s (%s)\n", msg.Sender.DisplayName, msg.Sender.Role)
	if len(lots) > 0 {
		b.WriteString("Active lots:\n")
		catalog := models.DefaultCatalog()
		for _, lot := range lots {
			phaseName := ""
			if p := catalog.PhaseByOrdinal(lot.CurrentPhase); p != nil {
				phaseName = p.Name
			}
			fmt.Fprintf(&b, "- lot %s: %s, phase %s\n", lot.LotNumber, lot.Status, phaseName)
		}
	}
	fmt.Fprintf(&b, "\nMessage:\n%s\n", msg.Content)
	return b.String(), nil
}

// mediationWire is the loosely-typed shape of classifier output. Numeric
// fields stay raw so quoted numbers still decode.
type mediationWire struct {
	EventType   string          `json:"event_type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Confidence  json.RawMessage `json:"confidence"`
	Material    *materialWire   `json:"material"`
	Calendar    *calendarWire   `json:"calendar"`
}

type materialWire struct {
	Name      string          `json:"name"`
	Quantity  json.RawMessage `json:"quantity"`
	Unit      string          `json:"unit"`
	Urgency   string          `json:"urgency"`
	LotNumber json.RawMessage `json:"lot_number"`
}

type calendarWire struct {
	Title    string `json:"title"`
	StartsAt string `json:"starts_at"`
}

// parseMediationResponse extracts, validates, and normalizes one classifier
// response into a MediationResult.
func parseMediationResponse(schema *jsonschema.Schema, raw string) (*models.MediationResult, error) {
	jsonStr, err := llm.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := validateMediationJSON(schema, jsonStr); err != nil {
		return nil, err
	}

	var wire mediationWire
	if err := json.Unmarshal([]byte(jsonStr), &wire); err != nil {
		return nil, fmt.Errorf("unmarshal classifier output: %w", err)
	}

	eventType := models.EventType(wire.EventType)
	if !models.IsKnownEventType(eventType) {
		return nil, fmt.Errorf("unknown event type %q", wire.EventType)
	}

	confidence := jsonutil.FlexibleFloat(wire.Confidence)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	result := &models.MediationResult{
		EventType:   eventType,
		Title:       wire.Title,
		Description: wire.Description,
		Confidence:  confidence,
	}

	if wire.Material != nil {
		result.Material = &models.MaterialExtraction{
			Name:      wire.Material.Name,
			Quantity:  jsonutil.FlexibleFloat(wire.Material.Quantity),
			Unit:      wire.Material.Unit,
			Urgency:   wire.Material.Urgency,
			LotNumber: jsonutil.FlexibleString(wire.Material.LotNumber),
		}
	}

	if wire.Calendar != nil {
		calendar := &models.CalendarExtraction{Title: wire.Calendar.Title}
		if wire.Calendar.StartsAt != "" {
			if t, err := time.Parse(time.RFC3339, wire.Calendar.StartsAt); err == nil {
				calendar.StartsAt = &t
			}
		}
		result.Calendar = calendar
	}

	return result, nil
}

// createMaterialRequest records the structured side effect of a
// material_request classification. Lot resolution goes through the
// human-facing lot number scoped to the site.
func (s *mediationService) createMaterialRequest(ctx context.Context, msg *models.TimelineMessage, result *models.MediationResult) error {
	req := &models.MaterialRequest{
		SiteID:          msg.SiteID,
		LotID:           msg.LotID,
		Name:            result.Material.Name,
		Quantity:        result.Material.Quantity,
		Unit:            result.Material.Unit,
		Urgency:         result.Material.Urgency,
		Status:          models.MaterialPending,
		Notes:           fmt.Sprintf("Created from site message: %s", msg.Content),
		SourceMessageID: &msg.ID,
		RequestedBy:     &msg.Sender.UserID,
	}

	if result.Material.LotNumber != "" {
		lot, err := s.lots.GetBySiteAndNumber(ctx, msg.SiteID, result.Material.LotNumber)
		if err == nil {
			req.LotID = &lot.ID
		} else {
			s.logger.Debug("could not resolve lot number from message",
				zap.String("lot_number", result.Material.LotNumber),
				zap.Error(err))
		}
	}

	created, err := s.materials.CreateFromMessage(ctx, req)
	if err != nil {
		return err
	}
	if !created {
		s.logger.Debug("material request already exists for message",
			zap.String("message_id", msg.ID.String()))
	}
	return nil
}

// notifyAsync hands the fan-out to the dispatch queue so the mediation call
// returns without waiting on the push transport. Failures and drops are
// logged, never propagated.
func (s *mediationService) notifyAsync(msg *models.TimelineMessage, eventType models.EventType) {
	sender := msg.Sender.UserID
	task := dispatch.Task{
		Name: fmt.Sprintf("notify:%s", eventType),
		Run: func(ctx context.Context) error {
			_, err := s.notifier.Route(ctx, eventType, msg.SiteID, &sender)
			return err
		},
	}

	if s.queue == nil {
		if err := task.Run(context.Background()); err != nil {
			s.logger.Warn("notification failed", zap.Error(err))
		}
		return
	}
	s.queue.Enqueue(task)
}
