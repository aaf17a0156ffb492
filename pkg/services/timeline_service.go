package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/config"
	"github.com/lotline/lotline-engine/pkg/models"
	"github.com/lotline/lotline-engine/pkg/repositories"
)

// TimelineService owns the per-site activity feed: append-only message
// posting, live delivery over pub/sub, and the bounded backlog reconnecting
// subscribers fetch.
type TimelineService interface {
	// PostMessage persists a message, then publishes it to live subscribers.
	// The store write is the source of truth; a publish failure is logged
	// and the post still succeeds.
	PostMessage(ctx context.Context, siteID uuid.UUID, lotID *uuid.UUID, sender models.Sender, content string, attachments []models.Attachment) (*models.TimelineMessage, error)

	// Backlog returns the most recent messages in creation order. The live
	// stream has no durability across a disconnect; this is the catch-up path.
	Backlog(ctx context.Context, siteID uuid.UUID, lotID *uuid.UUID, limit int) ([]*models.TimelineMessage, error)

	// Subscribe delivers messages for a site in publish order until the
	// context is cancelled. A non-nil lotID narrows delivery to that lot.
	// Returns an error when live delivery is disabled.
	Subscribe(ctx context.Context, siteID uuid.UUID, lotID *uuid.UUID) (<-chan *models.TimelineMessage, error)
}

type timelineService struct {
	messages repositories.TimelineRepository
	rdb      *redis.Client
	cfg      config.TimelineConfig
	logger   *zap.Logger
}

// NewTimelineService creates a new TimelineService. A nil Redis client
// disables live delivery; posting and backlog still work.
func NewTimelineService(
	messages repositories.TimelineRepository,
	rdb *redis.Client,
	cfg config.TimelineConfig,
	logger *zap.Logger,
) TimelineService {
	return &timelineService{
		messages: messages,
		rdb:      rdb,
		cfg:      cfg,
		logger:   logger.Named("timeline-service"),
	}
}

var _ TimelineService = (*timelineService)(nil)

func timelineChannel(siteID uuid.UUID) string {
	return "timeline:" + siteID.String()
}

func (s *timelineService) PostMessage(ctx context.Context, siteID uuid.UUID, lotID *uuid.UUID, sender models.Sender, content string, attachments []models.Attachment) (*models.TimelineMessage, error) {
	if content == "" {
		return nil, fmt.Errorf("message content is required")
	}

	msg := &models.TimelineMessage{
		SiteID:      siteID,
		LotID:       lotID,
		Sender:      sender,
		Content:     content,
		Attachments: attachments,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	// Publish after the write commits so subscribers see messages in
	// persisted order.
	s.publish(ctx, msg)

	return msg, nil
}

func (s *timelineService) publish(ctx context.Context, msg *models.TimelineMessage) {
	if s.rdb == nil {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal message for publish",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err))
		return
	}

	if err := s.rdb.Publish(ctx, timelineChannel(msg.SiteID), payload).Err(); err != nil {
		s.logger.Warn("failed to publish message to live stream",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err))
	}
}

func (s *timelineService) Backlog(ctx context.Context, siteID uuid.UUID, lotID *uuid.UUID, limit int) ([]*models.TimelineMessage, error) {
	if limit <= 0 || limit > s.cfg.BacklogLimit {
		limit = s.cfg.BacklogLimit
	}
	return s.messages.ListRecent(ctx, siteID, lotID, limit)
}

// matchesLot reports whether a message belongs on a stream filtered to the
// given lot. Site-wide messages do not match a lot-filtered stream.
func matchesLot(msg *models.TimelineMessage, lotID *uuid.UUID) bool {
	if lotID == nil {
		return true
	}
	return msg.LotID != nil && *msg.LotID == *lotID
}

func (s *timelineService) Subscribe(ctx context.Context, siteID uuid.UUID, lotID *uuid.UUID) (<-chan *models.TimelineMessage, error) {
	if s.rdb == nil {
		return nil, fmt.Errorf("live timeline delivery is not configured")
	}

	sub := s.rdb.Subscribe(ctx, timelineChannel(siteID))
	out := make(chan *models.TimelineMessage)

	go func() {
		defer close(out)
		defer func() {
			if err := sub.Close(); err != nil {
				s.logger.Debug("failed to close subscription", zap.Error(err))
			}
		}()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg models.TimelineMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					s.logger.Warn("dropping malformed stream payload", zap.Error(err))
					continue
				}
				if !matchesLot(&msg, lotID) {
					continue
				}
				select {
				case out <- &msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
