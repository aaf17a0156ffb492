package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lotline/lotline-engine/pkg/apperrors"
	"github.com/lotline/lotline-engine/pkg/database"
	"github.com/lotline/lotline-engine/pkg/models"
)

// MaterialRequestRepository defines data access for material requests.
type MaterialRequestRepository interface {
	Create(ctx context.Context, req *models.MaterialRequest) error
	// CreateFromMessage inserts a request sourced from a timeline message.
	// At most one request exists per source message: re-running mediation
	// on the same message is a no-op. Returns true if a row was inserted.
	CreateFromMessage(ctx context.Context, req *models.MaterialRequest) (bool, error)
	GetByID(ctx context.Context, requestID uuid.UUID) (*models.MaterialRequest, error)
	// TransitionStatus applies a conditional status update keyed on the
	// previously-read status. Returns apperrors.ErrConflict if another
	// writer moved the request first.
	TransitionStatus(ctx context.Context, requestID uuid.UUID, from, to string) error
}

type materialRequestRepository struct {
	db *database.DB
}

// NewMaterialRequestRepository creates a new material request repository.
func NewMaterialRequestRepository(db *database.DB) MaterialRequestRepository {
	return &materialRequestRepository{db: db}
}

var _ MaterialRequestRepository = (*materialRequestRepository)(nil)

const materialInsert = `
	INSERT INTO material_requests
		(id, site_id, lot_id, name, quantity, unit, urgency, status, notes, source_message_id, requested_by, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (r *materialRequestRepository) prepare(req *models.MaterialRequest) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = models.MaterialPending
	}
	req.CreatedAt = time.Now()
}

func (r *materialRequestRepository) Create(ctx context.Context, req *models.MaterialRequest) error {
	r.prepare(req)

	_, err := r.db.Exec(ctx, materialInsert,
		req.ID, req.SiteID, req.LotID, req.Name, req.Quantity, req.Unit,
		req.Urgency, req.Status, req.Notes, req.SourceMessageID, req.RequestedBy, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create material request: %w", err)
	}
	return nil
}

func (r *materialRequestRepository) CreateFromMessage(ctx context.Context, req *models.MaterialRequest) (bool, error) {
	if req.SourceMessageID == nil {
		return false, fmt.Errorf("source message id is required")
	}
	r.prepare(req)

	query := materialInsert + ` ON CONFLICT (source_message_id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query,
		req.ID, req.SiteID, req.LotID, req.Name, req.Quantity, req.Unit,
		req.Urgency, req.Status, req.Notes, req.SourceMessageID, req.RequestedBy, req.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create material request from message: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *materialRequestRepository) GetByID(ctx context.Context, requestID uuid.UUID) (*models.MaterialRequest, error) {
	query := `
		SELECT id, site_id, lot_id, name, quantity, unit, urgency, status, notes,
		       source_message_id, requested_by, created_at,
		       acknowledged_at, in_transit_at, delivered_at, cancelled_at
		FROM material_requests
		WHERE id = $1`

	var req models.MaterialRequest
	err := r.db.QueryRow(ctx, query, requestID).Scan(
		&req.ID, &req.SiteID, &req.LotID, &req.Name, &req.Quantity, &req.Unit,
		&req.Urgency, &req.Status, &req.Notes,
		&req.SourceMessageID, &req.RequestedBy, &req.CreatedAt,
		&req.AcknowledgedAt, &req.InTransitAt, &req.DeliveredAt, &req.CancelledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan material request: %w", err)
	}
	return &req, nil
}

// statusTimestampColumn maps a target status to its transition timestamp.
func statusTimestampColumn(status string) string {
	switch status {
	case models.MaterialAcknowledged:
		return "acknowledged_at"
	case models.MaterialInTransit:
		return "in_transit_at"
	case models.MaterialDelivered:
		return "delivered_at"
	case models.MaterialCancelled:
		return "cancelled_at"
	default:
		return ""
	}
}

func (r *materialRequestRepository) TransitionStatus(ctx context.Context, requestID uuid.UUID, from, to string) error {
	query := `UPDATE material_requests SET status = $1`
	if col := statusTimestampColumn(to); col != "" {
		query += fmt.Sprintf(`, %s = now()`, col)
	}
	query += ` WHERE id = $2 AND status = $3`

	tag, err := r.db.Exec(ctx, query, to, requestID, from)
	if err != nil {
		return fmt.Errorf("failed to transition material request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, requestID); getErr != nil {
			return getErr
		}
		return apperrors.ErrConflict
	}
	return nil
}
