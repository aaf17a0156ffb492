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

// LotRepository defines data access for lots.
type LotRepository interface {
	Create(ctx context.Context, lot *models.Lot) error
	GetByID(ctx context.Context, lotID uuid.UUID) (*models.Lot, error)
	// GetBySiteAndNumber resolves a lot by its human-facing number within a
	// site. Free-text messages refer to lots by number, not id.
	GetBySiteAndNumber(ctx context.Context, siteID uuid.UUID, lotNumber string) (*models.Lot, error)
	// ListActiveBySite returns up to limit in-flight lots, oldest first.
	ListActiveBySite(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.Lot, error)
	// AdvancePhase moves current_phase forward with a conditional update
	// keyed on the previously-read ordinal. Returns apperrors.ErrConflict
	// if another writer got there first.
	AdvancePhase(ctx context.Context, lotID uuid.UUID, fromPhase, toPhase, progress int) error
	UpdateStatus(ctx context.Context, lotID uuid.UUID, status string) error
}

type lotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository.
func NewLotRepository(db *database.DB) LotRepository {
	return &lotRepository{db: db}
}

var _ LotRepository = (*lotRepository)(nil)

const lotColumns = `id, site_id, lot_number, current_phase, status, progress_percentage, created_at, updated_at`

func scanLot(row pgx.Row) (*models.Lot, error) {
	var lot models.Lot
	err := row.Scan(&lot.ID, &lot.SiteID, &lot.LotNumber, &lot.CurrentPhase,
		&lot.Status, &lot.ProgressPercentage, &lot.CreatedAt, &lot.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lot: %w", err)
	}
	return &lot, nil
}

func (r *lotRepository) Create(ctx context.Context, lot *models.Lot) error {
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	now := time.Now()
	lot.CreatedAt = now
	lot.UpdatedAt = now
	if lot.CurrentPhase == 0 {
		lot.CurrentPhase = 1
	}
	if lot.Status == "" {
		lot.Status = models.LotNotStarted
	}

	query := `
		INSERT INTO lots (id, site_id, lot_number, current_phase, status, progress_percentage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		lot.ID, lot.SiteID, lot.LotNumber, lot.CurrentPhase,
		lot.Status, lot.ProgressPercentage, lot.CreatedAt, lot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create lot: %w", err)
	}
	return nil
}

func (r *lotRepository) GetByID(ctx context.Context, lotID uuid.UUID) (*models.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE id = $1`
	return scanLot(r.db.QueryRow(ctx, query, lotID))
}

func (r *lotRepository) GetBySiteAndNumber(ctx context.Context, siteID uuid.UUID, lotNumber string) (*models.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE site_id = $1 AND lot_number = $2`
	return scanLot(r.db.QueryRow(ctx, query, siteID, lotNumber))
}

func (r *lotRepository) ListActiveBySite(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.Lot, error) {
	query := `
		SELECT ` + lotColumns + `
		FROM lots
		WHERE site_id = $1 AND status = ANY($2)
		ORDER BY created_at
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, siteID, models.ActiveLotStatuses, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active lots: %w", err)
	}
	defer rows.Close()

	var lots []*models.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// AdvancePhase is the compare-and-swap write that serializes concurrent
// advancement attempts on the same lot. Last-writer-wins would let a writer
// skip a required gate.
func (r *lotRepository) AdvancePhase(ctx context.Context, lotID uuid.UUID, fromPhase, toPhase, progress int) error {
	query := `
		UPDATE lots
		SET current_phase = $1, progress_percentage = $2, status = $3, updated_at = $4
		WHERE id = $5 AND current_phase = $6`

	status := models.LotInProgress
	if progress >= 100 {
		status = models.LotCompleted
	}

	result, err := r.db.Exec(ctx, query, toPhase, progress, status, time.Now(), lotID, fromPhase)
	if err != nil {
		return fmt.Errorf("failed to advance lot phase: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Either the lot is gone or another writer moved it first.
		if _, getErr := r.GetByID(ctx, lotID); getErr != nil {
			return getErr
		}
		return apperrors.ErrConflict
	}
	return nil
}

func (r *lotRepository) UpdateStatus(ctx context.Context, lotID uuid.UUID, status string) error {
	query := `UPDATE lots SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(ctx, query, status, time.Now(), lotID)
	if err != nil {
		return fmt.Errorf("failed to update lot status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
