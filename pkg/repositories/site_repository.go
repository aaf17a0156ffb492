package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lotline/lotline-engine/pkg/apperrors"
	"github.com/lotline/lotline-engine/pkg/database"
	"github.com/lotline/lotline-engine/pkg/models"
)

// SiteRepository defines data access for sites.
type SiteRepository interface {
	Create(ctx context.Context, site *models.Site) error
	GetByID(ctx context.Context, siteID uuid.UUID) (*models.Site, error)
}

type siteRepository struct {
	db *database.DB
}

// NewSiteRepository creates a new site repository.
func NewSiteRepository(db *database.DB) SiteRepository {
	return &siteRepository{db: db}
}

var _ SiteRepository = (*siteRepository)(nil)

func (r *siteRepository) Create(ctx context.Context, site *models.Site) error {
	if site.ID == uuid.Nil {
		site.ID = uuid.New()
	}
	now := time.Now()
	site.CreatedAt = now
	site.UpdatedAt = now

	query := `
		INSERT INTO sites (id, org_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, site.ID, site.OrgID, site.Name, site.CreatedAt, site.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create site: %w", err)
	}
	return nil
}

func (r *siteRepository) GetByID(ctx context.Context, siteID uuid.UUID) (*models.Site, error) {
	query := `SELECT id, org_id, name, created_at, updated_at FROM sites WHERE id = $1`

	var site models.Site
	err := r.db.QueryRow(ctx, query, siteID).Scan(
		&site.ID, &site.OrgID, &site.Name, &site.CreatedAt, &site.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan site: %w", err)
	}
	return &site, nil
}
