package models

import (
	"time"

	"github.com/google/uuid"
)

// Material request lifecycle statuses. Transitions are monotonic: a request
// never moves back to an earlier status, and terminal statuses never change.
const (
	MaterialPending      = "pending"
	MaterialAcknowledged = "acknowledged"
	MaterialInTransit    = "in_transit"
	MaterialDelivered    = "delivered"
	MaterialCancelled    = "cancelled"
)

// materialStatusRank orders the delivery pipeline. Cancelled sits outside
// the pipeline: reachable from any non-terminal status, terminal itself.
var materialStatusRank = map[string]int{
	MaterialPending:      0,
	MaterialAcknowledged: 1,
	MaterialInTransit:    2,
	MaterialDelivered:    3,
}

// CanTransitionMaterialStatus reports whether a material request may move
// from one status to another.
func CanTransitionMaterialStatus(from, to string) bool {
	if from == to {
		return false
	}
	if from == MaterialDelivered || from == MaterialCancelled {
		return false
	}
	if to == MaterialCancelled {
		return true
	}
	fromRank, ok := materialStatusRank[from]
	if !ok {
		return false
	}
	toRank, ok := materialStatusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// MaterialRequest is a lifecycle record for materials needed on a lot.
// Created directly or as a mediation side-effect.
type MaterialRequest struct {
	ID              uuid.UUID  `json:"id"`
	SiteID          uuid.UUID  `json:"site_id"`
	LotID           *uuid.UUID `json:"lot_id,omitempty"`
	Name            string     `json:"name"`
	Quantity        float64    `json:"quantity,omitempty"`
	Unit            string     `json:"unit,omitempty"`
	Urgency         string     `json:"urgency,omitempty"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	SourceMessageID *uuid.UUID `json:"source_message_id,omitempty"`
	RequestedBy     *uuid.UUID `json:"requested_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	InTransitAt     *time.Time `json:"in_transit_at,omitempty"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}
