package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lotline/lotline-engine/pkg/database"
	"github.com/lotline/lotline-engine/pkg/models"
)

// DeviceRepository defines data access for push-capable devices.
type DeviceRepository interface {
	// Upsert registers a device, at most one row per (user, app).
	Upsert(ctx context.Context, device *models.Device) error
	// ListEnabledByUsers returns push-enabled devices with a non-empty token
	// for the given users, filtered to the given app names.
	ListEnabledByUsers(ctx context.Context, userIDs []uuid.UUID, appNames []string) ([]*models.Device, error)
}

type deviceRepository struct {
	db *database.DB
}

// NewDeviceRepository creates a new device repository.
func NewDeviceRepository(db *database.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

var _ DeviceRepository = (*deviceRepository)(nil)

func (r *deviceRepository) Upsert(ctx context.Context, device *models.Device) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	now := time.Now()
	device.LastActive = now
	device.CreatedAt = now

	query := `
		INSERT INTO devices (id, user_id, app_name, push_token, push_enabled, last_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, app_name) DO UPDATE
		SET push_token = EXCLUDED.push_token,
		    push_enabled = EXCLUDED.push_enabled,
		    last_active = EXCLUDED.last_active`

	_, err := r.db.Exec(ctx, query,
		device.ID, device.UserID, device.AppName, device.PushToken,
		device.PushEnabled, device.LastActive, device.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

func (r *deviceRepository) ListEnabledByUsers(ctx context.Context, userIDs []uuid.UUID, appNames []string) ([]*models.Device, error) {
	if len(userIDs) == 0 || len(appNames) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, user_id, app_name, push_token, push_enabled, last_active, created_at
		FROM devices
		WHERE user_id = ANY($1)
		  AND app_name = ANY($2)
		  AND push_enabled
		  AND push_token IS NOT NULL
		  AND push_token <> ''`

	rows, err := r.db.Query(ctx, query, userIDs, appNames)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.AppName, &d.PushToken,
			&d.PushEnabled, &d.LastActive, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, &d)
	}
	return devices, rows.Err()
}
