package models

import (
	"time"

	"github.com/google/uuid"
)

// Gate check status constants. A lot is only considered past a gate whose
// check is in passed status.
const (
	GateNotStarted = "not_started"
	GateInProgress = "in_progress"
	GatePassed     = "passed"
	GateFailed     = "failed"
)

// ValidGateStatuses contains all valid gate check statuses.
var ValidGateStatuses = []string{GateNotStarted, GateInProgress, GatePassed, GateFailed}

// IsValidGateStatus checks if the given status is valid.
func IsValidGateStatus(status string) bool {
	for _, s := range ValidGateStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// GateCheck is the recorded status of one gate transition for one lot.
// Transitions without a row default to not_started.
type GateCheck struct {
	ID           uuid.UUID `json:"id"`
	LotID        uuid.UUID `json:"lot_id"`
	TransitionID string    `json:"transition_id"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}
