package models

import (
	"time"

	"github.com/google/uuid"
)

// App names for push registration. Workers carry the crew app; operators and
// monitors carry the office app.
const (
	AppCrew   = "crew"
	AppOffice = "office"
)

// AppNamesForRole returns which registered apps receive notifications
// targeted at the given role.
func AppNamesForRole(role string) []string {
	switch role {
	case RoleWorker:
		return []string{AppCrew}
	case RoleOperator, RoleMonitor:
		return []string{AppOffice}
	default:
		return nil
	}
}

// Device is one push-capable client, at most one row per (user, app).
type Device struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	AppName     string    `json:"app_name"`
	PushToken   string    `json:"push_token"`
	PushEnabled bool      `json:"push_enabled"`
	LastActive  time.Time `json:"last_active"`
	CreatedAt   time.Time `json:"created_at"`
}
