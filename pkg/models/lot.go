package models

import (
	"time"

	"github.com/google/uuid"
)

// Lot identifies one house/unit within a site. CurrentPhase is an ordinal
// into the phase catalog; ProgressPercentage is derived from it.
type Lot struct {
	ID                 uuid.UUID `json:"id"`
	SiteID             uuid.UUID `json:"site_id"`
	LotNumber          string    `json:"lot_number"`
	CurrentPhase       int       `json:"current_phase"`
	Status             string    `json:"status"`
	ProgressPercentage int       `json:"progress_percentage"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Lot status constants.
const (
	LotNotStarted = "not_started"
	LotInProgress = "in_progress"
	LotDelayed    = "delayed"
	LotCompleted  = "completed"
	LotOnHold     = "on_hold"
)

// ActiveLotStatuses are the statuses included in mediation context snapshots.
var ActiveLotStatuses = []string{LotInProgress, LotDelayed, LotOnHold}
