package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/config"
	"github.com/lotline/lotline-engine/pkg/models"
)

func newTestTimelineService(messages *mockTimelineRepo) TimelineService {
	return NewTimelineService(messages, nil, config.TimelineConfig{BacklogLimit: 3}, zap.NewNop())
}

func TestTimelineService_PostMessage(t *testing.T) {
	messages := newMockTimelineRepo()
	svc := newTestTimelineService(messages)
	siteID := uuid.New()

	msg, err := svc.PostMessage(context.Background(), siteID, nil,
		models.Sender{UserID: uuid.New(), Role: models.RoleWorker, DisplayName: "Janek"},
		"walls done on 12", nil)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.Equal(t, siteID, msg.SiteID)
	assert.Len(t, messages.messages, 1)
}

func TestTimelineService_PostMessage_EmptyContent(t *testing.T) {
	svc := newTestTimelineService(newMockTimelineRepo())

	_, err := svc.PostMessage(context.Background(), uuid.New(), nil, models.Sender{}, "", nil)
	assert.ErrorContains(t, err, "content")
}

func TestTimelineService_Backlog_ClampsToConfiguredLimit(t *testing.T) {
	messages := newMockTimelineRepo()
	svc := newTestTimelineService(messages)
	siteID := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := svc.PostMessage(context.Background(), siteID, nil,
			models.Sender{UserID: uuid.New()}, "update", nil)
		require.NoError(t, err)
	}

	backlog, err := svc.Backlog(context.Background(), siteID, nil, 100)
	require.NoError(t, err)
	assert.Len(t, backlog, 3)

	backlog, err = svc.Backlog(context.Background(), siteID, nil, 2)
	require.NoError(t, err)
	assert.Len(t, backlog, 2)
}

func TestTimelineService_Backlog_FiltersByLot(t *testing.T) {
	messages := newMockTimelineRepo()
	svc := newTestTimelineService(messages)
	siteID := uuid.New()
	lotID := uuid.New()

	_, err := svc.PostMessage(context.Background(), siteID, &lotID,
		models.Sender{UserID: uuid.New()}, "on the lot", nil)
	require.NoError(t, err)
	_, err = svc.PostMessage(context.Background(), siteID, nil,
		models.Sender{UserID: uuid.New()}, "site-wide", nil)
	require.NoError(t, err)

	backlog, err := svc.Backlog(context.Background(), siteID, &lotID, 10)
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, "on the lot", backlog[0].Content)
}

func TestTimelineService_Subscribe_WithoutRedis(t *testing.T) {
	svc := newTestTimelineService(newMockTimelineRepo())

	_, err := svc.Subscribe(context.Background(), uuid.New(), nil)
	assert.ErrorContains(t, err, "not configured")
}

func TestTimelineService_MatchesLot(t *testing.T) {
	lotID := uuid.New()
	otherLot := uuid.New()
	onLot := &models.TimelineMessage{LotID: &lotID}
	siteWide := &models.TimelineMessage{}

	// Unfiltered stream carries everything.
	assert.True(t, matchesLot(onLot, nil))
	assert.True(t, matchesLot(siteWide, nil))

	// Lot-filtered stream carries only that lot's messages.
	assert.True(t, matchesLot(onLot, &lotID))
	assert.False(t, matchesLot(onLot, &otherLot))
	assert.False(t, matchesLot(siteWide, &lotID))
}
