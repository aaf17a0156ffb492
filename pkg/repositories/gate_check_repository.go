package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lotline/lotline-engine/pkg/database"
	"github.com/lotline/lotline-engine/pkg/models"
)

// GateCheckRepository defines data access for gate checks.
type GateCheckRepository interface {
	// Upsert records a gate status for a (lot, transition) pair.
	Upsert(ctx context.Context, check *models.GateCheck) error
	ListByLot(ctx context.Context, lotID uuid.UUID) ([]*models.GateCheck, error)
}

type gateCheckRepository struct {
	db *database.DB
}

// NewGateCheckRepository creates a new gate check repository.
func NewGateCheckRepository(db *database.DB) GateCheckRepository {
	return &gateCheckRepository{db: db}
}

var _ GateCheckRepository = (*gateCheckRepository)(nil)

func (r *gateCheckRepository) Upsert(ctx context.Context, check *models.GateCheck) error {
	if check.ID == uuid.Nil {
		check.ID = uuid.New()
	}
	check.UpdatedAt = time.Now()

	query := `
		INSERT INTO gate_checks (id, lot_id, transition_id, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lot_id, transition_id) DO UPDATE
		SET status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		check.ID, check.LotID, check.TransitionID, check.Status, check.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert gate check: %w", err)
	}
	return nil
}

func (r *gateCheckRepository) ListByLot(ctx context.Context, lotID uuid.UUID) ([]*models.GateCheck, error) {
	query := `
		SELECT id, lot_id, transition_id, status, updated_at
		FROM gate_checks
		WHERE lot_id = $1`

	rows, err := r.db.Query(ctx, query, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list gate checks: %w", err)
	}
	defer rows.Close()

	var checks []*models.GateCheck
	for rows.Next() {
		var check models.GateCheck
		if err := rows.Scan(&check.ID, &check.LotID, &check.TransitionID,
			&check.Status, &check.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan gate check: %w", err)
		}
		checks = append(checks, &check)
	}
	return checks, rows.Err()
}
