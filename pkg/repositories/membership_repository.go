package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lotline/lotline-engine/pkg/database"
)

// MembershipRepository resolves notification recipients: operators come from
// active site assignments, monitors and workers from organization membership.
type MembershipRepository interface {
	ListActiveOperators(ctx context.Context, siteID uuid.UUID) ([]uuid.UUID, error)
	// ListOrgMembersByRole returns user ids holding the given role in the
	// organization that owns the site.
	ListOrgMembersByRole(ctx context.Context, siteID uuid.UUID, role string) ([]uuid.UUID, error)
	AssignOperator(ctx context.Context, siteID, userID uuid.UUID) error
	AddOrgMember(ctx context.Context, orgID, userID uuid.UUID, role string) error
}

type membershipRepository struct {
	db *database.DB
}

// NewMembershipRepository creates a new membership repository.
func NewMembershipRepository(db *database.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

var _ MembershipRepository = (*membershipRepository)(nil)

func (r *membershipRepository) ListActiveOperators(ctx context.Context, siteID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT user_id FROM site_assignments WHERE site_id = $1 AND active`
	return r.listUserIDs(ctx, query, siteID)
}

func (r *membershipRepository) ListOrgMembersByRole(ctx context.Context, siteID uuid.UUID, role string) ([]uuid.UUID, error) {
	query := `
		SELECT m.user_id
		FROM org_members m
		JOIN sites s ON s.org_id = m.org_id
		WHERE s.id = $1 AND m.role = $2`
	return r.listUserIDs(ctx, query, siteID, role)
}

func (r *membershipRepository) listUserIDs(ctx context.Context, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *membershipRepository) AssignOperator(ctx context.Context, siteID, userID uuid.UUID) error {
	query := `
		INSERT INTO site_assignments (site_id, user_id, active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (site_id, user_id) DO UPDATE SET active = TRUE`

	if _, err := r.db.Exec(ctx, query, siteID, userID); err != nil {
		return fmt.Errorf("failed to assign operator: %w", err)
	}
	return nil
}

func (r *membershipRepository) AddOrgMember(ctx context.Context, orgID, userID uuid.UUID, role string) error {
	query := `
		INSERT INTO org_members (org_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id, user_id) DO UPDATE SET role = EXCLUDED.role`

	if _, err := r.db.Exec(ctx, query, orgID, userID, role); err != nil {
		return fmt.Errorf("failed to add org member: %w", err)
	}
	return nil
}
