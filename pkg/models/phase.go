package models

// Phase is one ordered stage of the construction sequence. Phases are fixed
// reference data loaded from the embedded catalog, not database rows.
type Phase struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Ordinal int    `yaml:"ordinal" json:"ordinal"`
}

// GateTransition is a checkpoint between two phase groups. A lot moving to
// any ordinal greater than After must have the gate's check in passed status.
type GateTransition struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	After int    `yaml:"after" json:"after"`
}

// Derived display status for a phase, relative to a lot's current ordinal.
const (
	PhaseDone    = "done"
	PhaseBlocked = "blocked"
	PhaseActive  = "active"
	PhasePending = "pending"
)

// PhaseView is the per-phase slice of a lot's flow status.
type PhaseView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Ordinal   int    `json:"ordinal"`
	Status    string `json:"status"`
	OpenItems int    `json:"open_items"`
}

// FlowStatus is the computed phase/gate picture for one lot.
type FlowStatus struct {
	LotID           string            `json:"lot_id"`
	CurrentPhase    int               `json:"current_phase"`
	Phases          []PhaseView       `json:"phases"`
	BlockingByPhase map[string]int    `json:"blocking_by_phase"`
	GateStatus      map[string]string `json:"gate_status"`
}
