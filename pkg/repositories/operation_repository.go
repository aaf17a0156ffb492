package repositories

import (
	"context"
	"fmt"

	"github.com/lotline/lotline-engine/pkg/database"
)

// OperationRepository is the idempotency ledger for offline replay. A write
// carrying an operation id is applied at most once.
type OperationRepository interface {
	// Claim records the operation id and reports whether this is its first
	// application. A second claim of the same id returns false.
	Claim(ctx context.Context, opID string) (bool, error)

	// Release undoes a claim whose write failed, so a retry can claim again.
	Release(ctx context.Context, opID string) error
}

type operationRepository struct {
	db *database.DB
}

// NewOperationRepository creates a new operation repository.
func NewOperationRepository(db *database.DB) OperationRepository {
	return &operationRepository{db: db}
}

var _ OperationRepository = (*operationRepository)(nil)

func (r *operationRepository) Claim(ctx context.Context, opID string) (bool, error) {
	query := `INSERT INTO applied_operations (op_id) VALUES ($1) ON CONFLICT (op_id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, opID)
	if err != nil {
		return false, fmt.Errorf("failed to claim operation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *operationRepository) Release(ctx context.Context, opID string) error {
	query := `DELETE FROM applied_operations WHERE op_id = $1`

	if _, err := r.db.Exec(ctx, query, opID); err != nil {
		return fmt.Errorf("failed to release operation: %w", err)
	}
	return nil
}
