package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/models"
	"github.com/lotline/lotline-engine/pkg/offline"
	"github.com/lotline/lotline-engine/pkg/repositories"
)

// Operation kinds the sync applier understands. Captured clients encode one
// of these plus a JSON payload.
const (
	OpPostMessage        = "post_message"
	OpAdvancePhase       = "advance_phase"
	OpOpenBlockingItem   = "open_blocking_item"
	OpCloseBlockingItem  = "close_blocking_item"
	OpRecordGateCheck    = "record_gate_check"
	OpTransitionMaterial = "transition_material"
)

// PostMessageOp is the payload for OpPostMessage.
type PostMessageOp struct {
	SiteID      uuid.UUID           `json:"site_id"`
	LotID       *uuid.UUID          `json:"lot_id,omitempty"`
	Sender      models.Sender       `json:"sender"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// AdvancePhaseOp is the payload for OpAdvancePhase.
type AdvancePhaseOp struct {
	LotID uuid.UUID `json:"lot_id"`
}

// BlockingItemOp is the payload for OpOpenBlockingItem and
// OpCloseBlockingItem.
type BlockingItemOp struct {
	ItemID      uuid.UUID `json:"item_id,omitempty"`
	LotID       uuid.UUID `json:"lot_id,omitempty"`
	PhaseID     string    `json:"phase_id,omitempty"`
	Description string    `json:"description,omitempty"`
}

// GateCheckOp is the payload for OpRecordGateCheck.
type GateCheckOp struct {
	LotID        uuid.UUID `json:"lot_id"`
	TransitionID string    `json:"transition_id"`
	Status       string    `json:"status"`
}

// TransitionMaterialOp is the payload for OpTransitionMaterial.
type TransitionMaterialOp struct {
	RequestID uuid.UUID `json:"request_id"`
	To        string    `json:"to"`
}

// syncApplier replays captured operations against the live services. Each
// operation id is claimed in the applied-operations ledger before any write,
// so a replay after a partial flush is a silent no-op.
type syncApplier struct {
	operations repositories.OperationRepository
	timeline   TimelineService
	flow       FlowService
	materials  MaterialService
	logger     *zap.Logger
}

// NewSyncApplier creates the offline.Applier used by the sync manager.
func NewSyncApplier(
	operations repositories.OperationRepository,
	timeline TimelineService,
	flow FlowService,
	materials MaterialService,
	logger *zap.Logger,
) offline.Applier {
	return &syncApplier{
		operations: operations,
		timeline:   timeline,
		flow:       flow,
		materials:  materials,
		logger:     logger.Named("sync-applier"),
	}
}

var _ offline.Applier = (*syncApplier)(nil)

func (a *syncApplier) Apply(ctx context.Context, item *offline.QueueItem) error {
	first, err := a.operations.Claim(ctx, item.OpID)
	if err != nil {
		return fmt.Errorf("claim operation: %w", err)
	}
	if !first {
		a.logger.Debug("operation already applied, skipping",
			zap.String("op_id", item.OpID),
			zap.String("kind", item.Kind))
		return nil
	}

	if err := a.apply(ctx, item); err != nil {
		// Give the claim back so a later retry is not skipped.
		if relErr := a.operations.Release(ctx, item.OpID); relErr != nil {
			a.logger.Error("failed to release claim for failed operation",
				zap.String("op_id", item.OpID),
				zap.Error(relErr))
		}
		return err
	}
	return nil
}

func (a *syncApplier) apply(ctx context.Context, item *offline.QueueItem) error {
	switch item.Kind {
	case OpPostMessage:
		var op PostMessageOp
		if err := json.Unmarshal([]byte(item.Payload), &op); err != nil {
			return fmt.Errorf("decode %s payload: %w", item.Kind, err)
		}
		_, err := a.timeline.PostMessage(ctx, op.SiteID, op.LotID, op.Sender, op.Content, op.Attachments)
		return err

	case OpAdvancePhase:
		var op AdvancePhaseOp
		if err := json.Unmarshal([]byte(item.Payload), &op); err != nil {
			return fmt.Errorf("decode %s payload: %w", item.Kind, err)
		}
		// A blocked advance is a settled outcome for a stale capture, not a
		// reason to retry.
		result, err := a.flow.AdvancePhase(ctx, op.LotID)
		if err != nil {
			return err
		}
		if result.Blocked != nil {
			a.logger.Info("replayed advance was rejected",
				zap.String("lot_id", op.LotID.String()),
				zap.String("reason", result.Blocked.Message))
		}
		return nil

	case OpOpenBlockingItem:
		var op BlockingItemOp
		if err := json.Unmarshal([]byte(item.Payload), &op); err != nil {
			return fmt.Errorf("decode %s payload: %w", item.Kind, err)
		}
		return a.flow.OpenBlockingItem(ctx, &models.BlockingItem{
			LotID:       op.LotID,
			PhaseID:     op.PhaseID,
			Description: op.Description,
		})

	case OpCloseBlockingItem:
		var op BlockingItemOp
		if err := json.Unmarshal([]byte(item.Payload), &op); err != nil {
			return fmt.Errorf("decode %s payload: %w", item.Kind, err)
		}
		return a.flow.CloseBlockingItem(ctx, op.ItemID)

	case OpRecordGateCheck:
		var op GateCheckOp
		if err := json.Unmarshal([]byte(item.Payload), &op); err != nil {
			return fmt.Errorf("decode %s payload: %w", item.Kind, err)
		}
		return a.flow.RecordGateCheck(ctx, &models.GateCheck{
			LotID:        op.LotID,
			TransitionID: op.TransitionID,
			Status:       op.Status,
		})

	case OpTransitionMaterial:
		var op TransitionMaterialOp
		if err := json.Unmarshal([]byte(item.Payload), &op); err != nil {
			return fmt.Errorf("decode %s payload: %w", item.Kind, err)
		}
		_, err := a.materials.Transition(ctx, op.RequestID, op.To)
		return err

	default:
		return fmt.Errorf("unknown operation kind %q", item.Kind)
	}
}
