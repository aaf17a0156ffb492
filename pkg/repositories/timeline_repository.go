package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lotline/lotline-engine/pkg/apperrors"
	"github.com/lotline/lotline-engine/pkg/database"
	"github.com/lotline/lotline-engine/pkg/models"
)

// TimelineRepository defines data access for timeline messages. Messages are
// append-only: content is never mutated, only the interpretation is attached
// after the fact.
type TimelineRepository interface {
	Create(ctx context.Context, msg *models.TimelineMessage) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*models.TimelineMessage, error)
	// SetInterpretation attaches (or overwrites) the mediation result on a
	// message. Re-running mediation replaces the previous interpretation.
	SetInterpretation(ctx context.Context, messageID uuid.UUID, result *models.MediationResult) error
	// ListRecent returns the most recent messages for a site (optionally
	// filtered to one lot) in creation order, oldest first.
	ListRecent(ctx context.Context, siteID uuid.UUID, lotID *uuid.UUID, limit int) ([]*models.TimelineMessage, error)
}

type timelineRepository struct {
	db *database.DB
}

// NewTimelineRepository creates a new timeline repository.
func NewTimelineRepository(db *database.DB) TimelineRepository {
	return &timelineRepository{db: db}
}

var _ TimelineRepository = (*timelineRepository)(nil)

func (r *timelineRepository) Create(ctx context.Context, msg *models.TimelineMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.CreatedAt = time.Now()

	var attachments []byte
	if len(msg.Attachments) > 0 {
		var err error
		attachments, err = json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("marshal attachments: %w", err)
		}
	}

	query := `
		INSERT INTO timeline_messages
			(id, site_id, lot_id, sender_user_id, sender_role, sender_name, content, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		msg.ID, msg.SiteID, msg.LotID,
		msg.Sender.UserID, msg.Sender.Role, msg.Sender.DisplayName,
		msg.Content, attachments, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create timeline message: %w", err)
	}
	return nil
}

func (r *timelineRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*models.TimelineMessage, error) {
	query := timelineSelect + ` WHERE id = $1`
	return scanTimelineMessage(r.db.QueryRow(ctx, query, messageID))
}

func (r *timelineRepository) SetInterpretation(ctx context.Context, messageID uuid.UUID, result *models.MediationResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal interpretation: %w", err)
	}

	query := `UPDATE timeline_messages SET ai_interpretation = $1 WHERE id = $2`

	tag, err := r.db.Exec(ctx, query, payload, messageID)
	if err != nil {
		return fmt.Errorf("failed to set interpretation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *timelineRepository) ListRecent(ctx context.Context, siteID uuid.UUID, lotID *uuid.UUID, limit int) ([]*models.TimelineMessage, error) {
	query := timelineSelect + ` WHERE site_id = $1`
	args := []any{siteID}
	if lotID != nil {
		query += ` AND lot_id = $2`
		args = append(args, *lotID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeline messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.TimelineMessage
	for rows.Next() {
		msg, err := scanTimelineMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Fetched newest-first for the LIMIT; callers want creation order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

const timelineSelect = `
	SELECT id, site_id, lot_id, sender_user_id, sender_role, sender_name,
	       content, attachments, ai_interpretation, created_at
	FROM timeline_messages`

func scanTimelineMessage(row pgx.Row) (*models.TimelineMessage, error) {
	var (
		msg            models.TimelineMessage
		attachments    []byte
		interpretation []byte
	)
	err := row.Scan(&msg.ID, &msg.SiteID, &msg.LotID,
		&msg.Sender.UserID, &msg.Sender.Role, &msg.Sender.DisplayName,
		&msg.Content, &attachments, &interpretation, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan timeline message: %w", err)
	}

	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	if len(interpretation) > 0 {
		msg.Interpretation = &models.MediationResult{}
		if err := json.Unmarshal(interpretation, msg.Interpretation); err != nil {
			return nil, fmt.Errorf("unmarshal interpretation: %w", err)
		}
	}
	return &msg, nil
}
