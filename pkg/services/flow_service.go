package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/apperrors"
	"github.com/lotline/lotline-engine/pkg/models"
	"github.com/lotline/lotline-engine/pkg/repositories"
)

// advanceRetries bounds how many times a losing writer re-reads and retries
// before surfacing the conflict to its caller.
const advanceRetries = 3

// BlockedReason says why a lot cannot advance: open items at the source
// phase, or an unresolved gate before the target ordinal.
type BlockedReason struct {
	OpenItems  int    `json:"open_items,omitempty"`
	PhaseID    string `json:"phase_id,omitempty"`
	GateID     string `json:"gate_id,omitempty"`
	GateStatus string `json:"gate_status,omitempty"`
	Message    string `json:"message"`
}

// AdvanceResult is the typed outcome of an advancement attempt. Exactly one
// of Advanced or Blocked is set; a rejected advance is not an error.
type AdvanceResult struct {
	Advanced bool           `json:"advanced"`
	NewPhase int            `json:"new_phase,omitempty"`
	Blocked  *BlockedReason `json:"blocked,omitempty"`
}

// FlowService is the phase-gate engine: it computes a lot's flow status and
// decides whether forward progress is allowed.
type FlowService interface {
	// GetFlowStatus computes blocking counts, gate statuses, and derived
	// per-phase display status for a lot.
	GetFlowStatus(ctx context.Context, lotID uuid.UUID) (*models.FlowStatus, error)

	// AdvancePhase moves the lot one phase forward if nothing blocks it.
	// Concurrent attempts on the same lot serialize via a conditional store
	// write; after bounded retries a losing writer gets apperrors.ErrConflict.
	AdvancePhase(ctx context.Context, lotID uuid.UUID) (*AdvanceResult, error)

	// OpenBlockingItem records a defect against a phase of the lot.
	OpenBlockingItem(ctx context.Context, item *models.BlockingItem) error

	// CloseBlockingItem resolves an open item. Closing is explicit; nothing
	// closes items as a side effect of advancement.
	CloseBlockingItem(ctx context.Context, itemID uuid.UUID) error

	// RecordGateCheck upserts the outcome of an inspection gate for a lot.
	RecordGateCheck(ctx context.Context, check *models.GateCheck) error
}

type flowService struct {
	lots     repositories.LotRepository
	blocking repositories.BlockingItemRepository
	gates    repositories.GateCheckRepository
	catalog  *models.Catalog
	logger   *zap.Logger
}

// NewFlowService creates a new FlowService over the given catalog.
func NewFlowService(
	lots repositories.LotRepository,
	blocking repositories.BlockingItemRepository,
	gates repositories.GateCheckRepository,
	catalog *models.Catalog,
	logger *zap.Logger,
) FlowService {
	return &flowService{
		lots:     lots,
		blocking: blocking,
		gates:    gates,
		catalog:  catalog,
		logger:   logger.Named("flow-service"),
	}
}

var _ FlowService = (*flowService)(nil)

func (s *flowService) GetFlowStatus(ctx context.Context, lotID uuid.UUID) (*models.FlowStatus, error) {
	lot, err := s.lots.GetByID(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("get lot: %w", err)
	}

	blockingByPhase, err := s.openItemCounts(ctx, lotID)
	if err != nil {
		return nil, err
	}

	gateStatus, err := s.gateStatuses(ctx, lotID)
	if err != nil {
		return nil, err
	}

	status := &models.FlowStatus{
		LotID:           lot.ID.String(),
		CurrentPhase:    lot.CurrentPhase,
		BlockingByPhase: blockingByPhase,
		GateStatus:      gateStatus,
		Phases:          make([]models.PhaseView, 0, s.catalog.Len()),
	}

	for _, phase := range s.catalog.Phases {
		open := blockingByPhase[phase.ID]
		status.Phases = append(status.Phases, models.PhaseView{
			ID:        phase.ID,
			Name:      phase.Name,
			Ordinal:   phase.Ordinal,
			Status:    derivePhaseStatus(phase.Ordinal, lot.CurrentPhase, open),
			OpenItems: open,
		})
	}

	return status, nil
}

// derivePhaseStatus computes the display status for one phase. Status is
// derived, never stored.
func derivePhaseStatus(ordinal, currentPhase, openItems int) string {
	switch {
	case ordinal < currentPhase && openItems > 0:
		return models.PhaseBlocked
	case ordinal < currentPhase:
		return models.PhaseDone
	case ordinal == currentPhase && openItems > 0:
		return models.PhaseBlocked
	case ordinal == currentPhase:
		return models.PhaseActive
	default:
		return models.PhasePending
	}
}

func (s *flowService) AdvancePhase(ctx context.Context, lotID uuid.UUID) (*AdvanceResult, error) {
	for attempt := 0; attempt <= advanceRetries; attempt++ {
		lot, err := s.lots.GetByID(ctx, lotID)
		if err != nil {
			return nil, fmt.Errorf("get lot: %w", err)
		}

		if lot.CurrentPhase >= s.catalog.Len() {
			return &AdvanceResult{Blocked: &BlockedReason{
				Message: "lot is already at the final phase",
			}}, nil
		}

		if blocked, err := s.checkAdvance(ctx, lot); err != nil {
			return nil, err
		} else if blocked != nil {
			return &AdvanceResult{Blocked: blocked}, nil
		}

		target := lot.CurrentPhase + 1
		progress := s.catalog.ProgressPercentage(target)
		err = s.lots.AdvancePhase(ctx, lotID, lot.CurrentPhase, target, progress)
		if errors.Is(err, apperrors.ErrConflict) {
			s.logger.Debug("phase advance lost the race, re-reading",
				zap.String("lot_id", lotID.String()),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("advance lot phase: %w", err)
		}

		s.logger.Info("lot advanced",
			zap.String("lot_id", lotID.String()),
			zap.Int("from_phase", lot.CurrentPhase),
			zap.Int("to_phase", target))
		return &AdvanceResult{Advanced: true, NewPhase: target}, nil
	}

	return nil, fmt.Errorf("advance lot %s: %w", lotID, apperrors.ErrConflict)
}

// checkAdvance returns the blocking reason preventing the lot from moving to
// the next ordinal, or nil if the path is clear. Open items at the source
// phase block regardless of gate status; every gate at or before the target
// must be passed. A failed or unstarted gate is a rejection, never a clamp.
func (s *flowService) checkAdvance(ctx context.Context, lot *models.Lot) (*BlockedReason, error) {
	counts, err := s.openItemCounts(ctx, lot.ID)
	if err != nil {
		return nil, err
	}

	if source := s.catalog.PhaseByOrdinal(lot.CurrentPhase); source != nil {
		if open := counts[source.ID]; open > 0 {
			return &BlockedReason{
				OpenItems: open,
				PhaseID:   source.ID,
				Message:   openItemsMessage(open, source.ID),
			}, nil
		}
	}

	gateStatus, err := s.gateStatuses(ctx, lot.ID)
	if err != nil {
		return nil, err
	}

	target := lot.CurrentPhase + 1
	for _, gate := range s.catalog.RequiredGates(target) {
		if status := gateStatus[gate.ID]; status != models.GatePassed {
			return &BlockedReason{
				GateID:     gate.ID,
				GateStatus: status,
				Message:    fmt.Sprintf("gate %s is %s", gate.ID, status),
			}, nil
		}
	}

	return nil, nil
}

func (s *flowService) OpenBlockingItem(ctx context.Context, item *models.BlockingItem) error {
	if s.catalog.PhaseByID(item.PhaseID) == nil {
		return fmt.Errorf("unknown phase %q", item.PhaseID)
	}
	if item.Description == "" {
		return fmt.Errorf("description is required")
	}
	if err := s.blocking.Create(ctx, item); err != nil {
		return fmt.Errorf("create blocking item: %w", err)
	}

	s.logger.Info("blocking item opened",
		zap.String("lot_id", item.LotID.String()),
		zap.String("phase_id", item.PhaseID))
	return nil
}

func (s *flowService) CloseBlockingItem(ctx context.Context, itemID uuid.UUID) error {
	if err := s.blocking.Close(ctx, itemID); err != nil {
		return fmt.Errorf("close blocking item: %w", err)
	}
	s.logger.Info("blocking item closed", zap.String("item_id", itemID.String()))
	return nil
}

func (s *flowService) RecordGateCheck(ctx context.Context, check *models.GateCheck) error {
	if s.catalog.TransitionByID(check.TransitionID) == nil {
		return fmt.Errorf("unknown gate transition %q", check.TransitionID)
	}
	if !models.IsValidGateStatus(check.Status) {
		return fmt.Errorf("invalid gate status %q", check.Status)
	}
	if err := s.gates.Upsert(ctx, check); err != nil {
		return fmt.Errorf("record gate check: %w", err)
	}

	s.logger.Info("gate check recorded",
		zap.String("lot_id", check.LotID.String()),
		zap.String("transition_id", check.TransitionID),
		zap.String("status", check.Status))
	return nil
}

func (s *flowService) openItemCounts(ctx context.Context, lotID uuid.UUID) (map[string]int, error) {
	items, err := s.blocking.ListOpenByLot(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("list open blocking items: %w", err)
	}

	counts := make(map[string]int)
	for _, item := range items {
		counts[item.PhaseID]++
	}
	return counts, nil
}

// gateStatuses returns the status of every transition in the catalog,
// defaulting unseen transitions to not_started.
func (s *flowService) gateStatuses(ctx context.Context, lotID uuid.UUID) (map[string]string, error) {
	checks, err := s.gates.ListByLot(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("list gate checks: %w", err)
	}

	statuses := make(map[string]string, len(s.catalog.Transitions))
	for _, t := range s.catalog.Transitions {
		statuses[t.ID] = models.GateNotStarted
	}
	for _, check := range checks {
		statuses[check.TransitionID] = check.Status
	}
	return statuses, nil
}

func openItemsMessage(count int, phaseID string) string {
	noun := "item"
	if count != 1 {
		noun = inflection.Plural(noun)
	}
	return fmt.Sprintf("%d open %s at %s", count, noun, phaseID)
}
