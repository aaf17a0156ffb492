package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies what a timeline message is about. The set is closed;
// routing and mediation switch over it exhaustively.
type EventType string

const (
	EventNote            EventType = "note"
	EventMaterialRequest EventType = "material_request"
	EventAlert           EventType = "alert"
	EventCalendarEvent   EventType = "calendar_event"
	EventStatusChange    EventType = "status_change"
	EventIssue           EventType = "issue"
	EventInspection      EventType = "inspection"
	EventMilestone       EventType = "milestone"
	EventWorkerArrival   EventType = "worker_arrival"
	EventWorkerDeparture EventType = "worker_departure"
)

// KnownEventTypes contains every event type the pipeline may emit.
var KnownEventTypes = []EventType{
	EventNote, EventMaterialRequest, EventAlert, EventCalendarEvent,
	EventStatusChange, EventIssue, EventInspection, EventMilestone,
	EventWorkerArrival, EventWorkerDeparture,
}

// IsKnownEventType checks whether the classifier returned a type we handle.
func IsKnownEventType(t EventType) bool {
	for _, k := range KnownEventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Sender identifies who posted a timeline message.
type Sender struct {
	UserID      uuid.UUID `json:"user_id"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name"`
}

// Attachment is a reference to an uploaded file on a message. Upload
// mechanics live outside this core; only the reference is stored.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
}

// TimelineMessage is one append-only entry in a site's activity feed.
// Content is immutable once set; only the interpretation is attached later.
type TimelineMessage struct {
	ID             uuid.UUID        `json:"id"`
	SiteID         uuid.UUID        `json:"site_id"`
	LotID          *uuid.UUID       `json:"lot_id,omitempty"`
	Sender         Sender           `json:"sender"`
	Content        string           `json:"content"`
	Attachments    []Attachment     `json:"attachments,omitempty"`
	Interpretation *MediationResult `json:"ai_interpretation,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// MaterialExtraction is the structured payload of a material_request event.
type MaterialExtraction struct {
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	Urgency   string  `json:"urgency,omitempty"`
	LotNumber string  `json:"lot_number,omitempty"`
}

// CalendarExtraction is the structured payload of a calendar_event event.
type CalendarExtraction struct {
	Title    string     `json:"title"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
}

// MediationResult is the classification of one timeline message. It is
// attached to exactly one message and never persisted on its own.
type MediationResult struct {
	EventType   EventType           `json:"event_type"`
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Confidence  float64             `json:"confidence"`
	DisplayText string              `json:"display_text,omitempty"`
	Material    *MaterialExtraction `json:"material,omitempty"`
	Calendar    *CalendarExtraction `json:"calendar,omitempty"`
}

// FallbackResult is the zero-confidence interpretation used when classifier
// output cannot be parsed. It is a valid terminal state, not an error.
func FallbackResult(original string) *MediationResult {
	return &MediationResult{
		EventType:   EventNote,
		Confidence:  0,
		DisplayText: original,
	}
}
