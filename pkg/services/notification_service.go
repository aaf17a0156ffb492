package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/config"
	"github.com/lotline/lotline-engine/pkg/models"
	"github.com/lotline/lotline-engine/pkg/push"
	"github.com/lotline/lotline-engine/pkg/repositories"
)

// NotificationService resolves role-scoped recipients for an event and
// dispatches batched push payloads. Delivery is best-effort: a failed batch
// is logged and skipped, never retried here.
type NotificationService interface {
	// Route fans an event out to the devices of every targeted role on the
	// site, excluding the originating user. Returns how many messages were
	// in batches the transport accepted.
	Route(ctx context.Context, eventType models.EventType, siteID uuid.UUID, excludeUserID *uuid.UUID) (int, error)
}

type notificationService struct {
	sites      repositories.SiteRepository
	membership repositories.MembershipRepository
	devices    repositories.DeviceRepository
	transport  push.Transport
	cfg        config.NotifyConfig
	logger     *zap.Logger
}

// NewNotificationService creates a new NotificationService. A nil transport
// disables delivery; routing still resolves and returns zero.
func NewNotificationService(
	sites repositories.SiteRepository,
	membership repositories.MembershipRepository,
	devices repositories.DeviceRepository,
	transport push.Transport,
	cfg config.NotifyConfig,
	logger *zap.Logger,
) NotificationService {
	return &notificationService{
		sites:      sites,
		membership: membership,
		devices:    devices,
		transport:  transport,
		cfg:        cfg,
		logger:     logger.Named("notification-service"),
	}
}

var _ NotificationService = (*notificationService)(nil)

// targetRoles maps each event type to the role groups it notifies. The
// switch enumerates the closed event set; an event with no targets
// short-circuits the fan-out.
func targetRoles(eventType models.EventType) []string {
	switch eventType {
	case models.EventMaterialRequest:
		return []string{models.RoleOperator}
	case models.EventIssue, models.EventStatusChange, models.EventMilestone,
		models.EventWorkerArrival, models.EventWorkerDeparture:
		return []string{models.RoleMonitor}
	case models.EventInspection:
		return []string{models.RoleWorker, models.RoleOperator}
	case models.EventAlert:
		return []string{models.RoleMonitor, models.RoleOperator}
	case models.EventNote, models.EventCalendarEvent:
		return nil
	default:
		return nil
	}
}

func (s *notificationService) Route(ctx context.Context, eventType models.EventType, siteID uuid.UUID, excludeUserID *uuid.UUID) (int, error) {
	roles := targetRoles(eventType)
	if len(roles) == 0 {
		return 0, nil
	}

	site, err := s.sites.GetByID(ctx, siteID)
	if err != nil {
		return 0, fmt.Errorf("get site: %w", err)
	}

	userIDs, appNames, err := s.resolveRecipients(ctx, siteID, roles, excludeUserID)
	if err != nil {
		return 0, err
	}
	if len(userIDs) == 0 {
		return 0, nil
	}

	devices, err := s.devices.ListEnabledByUsers(ctx, userIDs, appNames)
	if err != nil {
		return 0, fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 || s.transport == nil {
		return 0, nil
	}

	messages := make([]push.Message, 0, len(devices))
	title := eventTitle(eventType)
	for _, device := range devices {
		messages = append(messages, push.Message{
			Token:   device.PushToken,
			Title:   title,
			Body:    fmt.Sprintf("%s at %s", title, site.Name),
			Channel: string(eventType),
			Data: map[string]string{
				"site_id":    siteID.String(),
				"event_type": string(eventType),
			},
		})
	}

	return s.sendBatches(ctx, eventType, messages), nil
}

// resolveRecipients collects deduplicated user ids across target roles plus
// the union of app names those roles use.
func (s *notificationService) resolveRecipients(ctx context.Context, siteID uuid.UUID, roles []string, excludeUserID *uuid.UUID) ([]uuid.UUID, []string, error) {
	seen := make(map[uuid.UUID]bool)
	var userIDs []uuid.UUID
	appSeen := make(map[string]bool)
	var appNames []string

	for _, role := range roles {
		var ids []uuid.UUID
		var err error
		switch role {
		case models.RoleOperator:
			ids, err = s.membership.ListActiveOperators(ctx, siteID)
		default:
			ids, err = s.membership.ListOrgMembersByRole(ctx, siteID, role)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("resolve %s recipients: %w", role, err)
		}

		for _, id := range ids {
			if excludeUserID != nil && id == *excludeUserID {
				continue
			}
			if !seen[id] {
				seen[id] = true
				userIDs = append(userIDs, id)
			}
		}

		for _, app := range models.AppNamesForRole(role) {
			if !appSeen[app] {
				appSeen[app] = true
				appNames = append(appNames, app)
			}
		}
	}

	return userIDs, appNames, nil
}

// sendBatches chunks messages and sends each batch independently. A batch
// failure is logged and does not abort subsequent batches.
func (s *notificationService) sendBatches(ctx context.Context, eventType models.EventType, messages []push.Message) int {
	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	sent := 0
	for start := 0; start < len(messages); start += batchSize {
		end := start + batchSize
		if end > len(messages) {
			end = len(messages)
		}
		batch := messages[start:end]

		accepted, err := s.transport.SendBatch(ctx, batch)
		if err != nil || !accepted {
			s.logger.Warn("push batch not accepted",
				zap.String("event_type", string(eventType)),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			continue
		}
		sent += len(batch)
	}

	s.logger.Info("notification fan-out complete",
		zap.String("event_type", string(eventType)),
		zap.Int("messages", len(messages)),
		zap.Int("sent", sent))
	return sent
}

// eventTitle renders an event type as a human-readable notification title.
func eventTitle(eventType models.EventType) string {
	words := strings.Split(string(eventType), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
