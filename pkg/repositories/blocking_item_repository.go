package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lotline/lotline-engine/pkg/apperrors"
	"github.com/lotline/lotline-engine/pkg/database"
	"github.com/lotline/lotline-engine/pkg/models"
)

// BlockingItemRepository defines data access for blocking items.
type BlockingItemRepository interface {
	Create(ctx context.Context, item *models.BlockingItem) error
	// Close marks an item resolved. Closing an already-closed item is a
	// no-op that still succeeds.
	Close(ctx context.Context, itemID uuid.UUID) error
	ListOpenByLot(ctx context.Context, lotID uuid.UUID) ([]*models.BlockingItem, error)
}

type blockingItemRepository struct {
	db *database.DB
}

// NewBlockingItemRepository creates a new blocking item repository.
func NewBlockingItemRepository(db *database.DB) BlockingItemRepository {
	return &blockingItemRepository{db: db}
}

var _ BlockingItemRepository = (*blockingItemRepository)(nil)

func (r *blockingItemRepository) Create(ctx context.Context, item *models.BlockingItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.Open = true
	item.CreatedAt = time.Now()

	query := `
		INSERT INTO blocking_items (id, lot_id, phase_id, description, open, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		item.ID, item.LotID, item.PhaseID, item.Description, item.Open, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create blocking item: %w", err)
	}
	return nil
}

func (r *blockingItemRepository) Close(ctx context.Context, itemID uuid.UUID) error {
	query := `
		UPDATE blocking_items
		SET open = FALSE, closed_at = $1
		WHERE id = $2`

	result, err := r.db.Exec(ctx, query, time.Now(), itemID)
	if err != nil {
		return fmt.Errorf("failed to close blocking item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *blockingItemRepository) ListOpenByLot(ctx context.Context, lotID uuid.UUID) ([]*models.BlockingItem, error) {
	query := `
		SELECT id, lot_id, phase_id, description, open, created_at, closed_at
		FROM blocking_items
		WHERE lot_id = $1 AND open
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open blocking items: %w", err)
	}
	defer rows.Close()

	var items []*models.BlockingItem
	for rows.Next() {
		var item models.BlockingItem
		if err := rows.Scan(&item.ID, &item.LotID, &item.PhaseID, &item.Description,
			&item.Open, &item.CreatedAt, &item.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan blocking item: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}
