package models

import (
	"time"

	"github.com/google/uuid"
)

// BlockingItem is an open issue attached to a (lot, phase) pair. Any open
// item at the lot's active phase prevents advancement past that phase.
type BlockingItem struct {
	ID          uuid.UUID  `json:"id"`
	LotID       uuid.UUID  `json:"lot_id"`
	PhaseID     string     `json:"phase_id"`
	Description string     `json:"description"`
	Open        bool       `json:"open"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}
