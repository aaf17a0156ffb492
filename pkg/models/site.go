package models

import (
	"time"

	"github.com/google/uuid"
)

// Site is one residential construction site, owned by an organization.
type Site struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role constants for site and organization membership.
const (
	RoleOperator = "operator"
	RoleMonitor  = "monitor"
	RoleWorker   = "worker"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleOperator, RoleMonitor, RoleWorker}

// IsValidRole checks if the given role is valid.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// SiteAssignment is an active operator assignment to a site.
type SiteAssignment struct {
	SiteID    uuid.UUID `json:"site_id"`
	UserID    uuid.UUID `json:"user_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// OrgMember is a user's role within an organization.
type OrgMember struct {
	OrgID     uuid.UUID `json:"org_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
