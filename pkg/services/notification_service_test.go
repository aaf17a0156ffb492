package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/apperrors"
	"github.com/lotline/lotline-engine/pkg/config"
	"github.com/lotline/lotline-engine/pkg/models"
	"github.com/lotline/lotline-engine/pkg/push"
)

// mockSiteRepo implements repositories.SiteRepository.
type mockSiteRepo struct {
	sites map[uuid.UUID]*models.Site
}

func newMockSiteRepo(sites ...*models.Site) *mockSiteRepo {
	m := &mockSiteRepo{sites: make(map[uuid.UUID]*models.Site)}
	for _, s := range sites {
		m.sites[s.ID] = s
	}
	return m
}

func (m *mockSiteRepo) Create(_ context.Context, site *models.Site) error {
	m.sites[site.ID] = site
	return nil
}

func (m *mockSiteRepo) GetByID(_ context.Context, siteID uuid.UUID) (*models.Site, error) {
	site, ok := m.sites[siteID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return site, nil
}

// mockMembershipRepo implements repositories.MembershipRepository.
type mockMembershipRepo struct {
	operators     []uuid.UUID
	membersByRole map[string][]uuid.UUID
}

func (m *mockMembershipRepo) ListActiveOperators(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	return m.operators, nil
}

func (m *mockMembershipRepo) ListOrgMembersByRole(_ context.Context, _ uuid.UUID, role string) ([]uuid.UUID, error) {
	return m.membersByRole[role], nil
}

func (m *mockMembershipRepo) AssignOperator(_ context.Context, _, userID uuid.UUID) error {
	m.operators = append(m.operators, userID)
	return nil
}

func (m *mockMembershipRepo) AddOrgMember(_ context.Context, _, userID uuid.UUID, role string) error {
	if m.membersByRole == nil {
		m.membersByRole = make(map[string][]uuid.UUID)
	}
	m.membersByRole[role] = append(m.membersByRole[role], userID)
	return nil
}

// mockDeviceRepo implements repositories.DeviceRepository: one enabled
// device per user, token derived from the user id.
type mockDeviceRepo struct {
	appByUser map[uuid.UUID]string
}

func (m *mockDeviceRepo) Upsert(_ context.Context, device *models.Device) error {
	if m.appByUser == nil {
		m.appByUser = make(map[uuid.UUID]string)
	}
	m.appByUser[device.UserID] = device.AppName
	return nil
}

func (m *mockDeviceRepo) ListEnabledByUsers(_ context.Context, userIDs []uuid.UUID, appNames []string) ([]*models.Device, error) {
	apps := make(map[string]bool)
	for _, a := range appNames {
		apps[a] = true
	}
	var devices []*models.Device
	for _, id := range userIDs {
		app, ok := m.appByUser[id]
		if !ok || !apps[app] {
			continue
		}
		devices = append(devices, &models.Device{
			ID:          uuid.New(),
			UserID:      id,
			AppName:     app,
			PushToken:   "token-" + id.String(),
			PushEnabled: true,
		})
	}
	return devices, nil
}

// mockTransport records batches; failBatch makes the Nth batch (0-based)
// fail.
type mockTransport struct {
	batches   [][]push.Message
	failBatch int
}

func newMockTransport() *mockTransport {
	return &mockTransport{failBatch: -1}
}

func (m *mockTransport) SendBatch(_ context.Context, messages []push.Message) (bool, error) {
	idx := len(m.batches)
	m.batches = append(m.batches, messages)
	if idx == m.failBatch {
		return false, fmt.Errorf("provider returned status 502")
	}
	return true, nil
}

type notifyFixture struct {
	site       *models.Site
	membership *mockMembershipRepo
	devices    *mockDeviceRepo
	transport  *mockTransport
	svc        NotificationService
}

func newNotifyFixture(t *testing.T, batchSize int) *notifyFixture {
	t.Helper()

	site := &models.Site{ID: uuid.New(), OrgID: uuid.New(), Name: "Maple Creek"}
	membership := &mockMembershipRepo{membersByRole: make(map[string][]uuid.UUID)}
	devices := &mockDeviceRepo{appByUser: make(map[uuid.UUID]string)}
	transport := newMockTransport()

	svc := NewNotificationService(
		newMockSiteRepo(site), membership, devices, transport,
		config.NotifyConfig{BatchSize: batchSize}, zap.NewNop())

	return &notifyFixture{site: site, membership: membership, devices: devices, transport: transport, svc: svc}
}

func (f *notifyFixture) addOperator(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	f.membership.operators = append(f.membership.operators, id)
	f.devices.appByUser[id] = models.AppOffice
	return id
}

func (f *notifyFixture) addMember(t *testing.T, role, app string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	f.membership.membersByRole[role] = append(f.membership.membersByRole[role], id)
	f.devices.appByUser[id] = app
	return id
}

func TestNotificationService_RoutingTable(t *testing.T) {
	tests := []struct {
		eventType models.EventType
		roles     []string
	}{
		{models.EventMaterialRequest, []string{models.RoleOperator}},
		{models.EventIssue, []string{models.RoleMonitor}},
		{models.EventStatusChange, []string{models.RoleMonitor}},
		{models.EventMilestone, []string{models.RoleMonitor}},
		{models.EventWorkerArrival, []string{models.RoleMonitor}},
		{models.EventWorkerDeparture, []string{models.RoleMonitor}},
		{models.EventInspection, []string{models.RoleWorker, models.RoleOperator}},
		{models.EventAlert, []string{models.RoleMonitor, models.RoleOperator}},
		{models.EventNote, nil},
		{models.EventCalendarEvent, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.roles, targetRoles(tt.eventType))
		})
	}
}

func TestNotificationService_Route_SilentEventSendsNothing(t *testing.T) {
	f := newNotifyFixture(t, 100)
	f.addOperator(t)

	sent, err := f.svc.Route(context.Background(), models.EventNote, f.site.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, f.transport.batches)
}

func TestNotificationService_Route_MaterialRequestTargetsOperators(t *testing.T) {
	f := newNotifyFixture(t, 100)
	op := f.addOperator(t)
	f.addMember(t, models.RoleMonitor, models.AppOffice)
	f.addMember(t, models.RoleWorker, models.AppCrew)

	sent, err := f.svc.Route(context.Background(), models.EventMaterialRequest, f.site.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, sent)
	require.Len(t, f.transport.batches, 1)
	msg := f.transport.batches[0][0]
	assert.Equal(t, "token-"+op.String(), msg.Token)
	assert.Equal(t, "Material Request", msg.Title)
	assert.Contains(t, msg.Body, "Maple Creek")
	assert.Equal(t, "material_request", msg.Channel)
}

func TestNotificationService_Route_ExcludesSender(t *testing.T) {
	f := newNotifyFixture(t, 100)
	sender := f.addOperator(t)
	other := f.addOperator(t)

	sent, err := f.svc.Route(context.Background(), models.EventMaterialRequest, f.site.ID, &sender)
	require.NoError(t, err)

	assert.Equal(t, 1, sent)
	require.Len(t, f.transport.batches, 1)
	assert.Equal(t, "token-"+other.String(), f.transport.batches[0][0].Token)
}

func TestNotificationService_Route_DeduplicatesAcrossRoles(t *testing.T) {
	f := newNotifyFixture(t, 100)
	// Same user is both monitor and operator; alert targets both roles.
	id := f.addMember(t, models.RoleMonitor, models.AppOffice)
	f.membership.operators = append(f.membership.operators, id)

	sent, err := f.svc.Route(context.Background(), models.EventAlert, f.site.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, sent)
}

func TestNotificationService_Route_Batching(t *testing.T) {
	f := newNotifyFixture(t, 2)
	for i := 0; i < 5; i++ {
		f.addOperator(t)
	}

	sent, err := f.svc.Route(context.Background(), models.EventMaterialRequest, f.site.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, sent)
	require.Len(t, f.transport.batches, 3)
	assert.Len(t, f.transport.batches[0], 2)
	assert.Len(t, f.transport.batches[1], 2)
	assert.Len(t, f.transport.batches[2], 1)
}

func TestNotificationService_Route_FailedBatchDoesNotAbort(t *testing.T) {
	f := newNotifyFixture(t, 2)
	for i := 0; i < 5; i++ {
		f.addOperator(t)
	}
	f.transport.failBatch = 1

	sent, err := f.svc.Route(context.Background(), models.EventMaterialRequest, f.site.ID, nil)
	require.NoError(t, err)

	// Middle batch of 2 failed; the other batches still went out.
	assert.Equal(t, 3, sent)
	assert.Len(t, f.transport.batches, 3)
}

func TestNotificationService_Route_NilTransport(t *testing.T) {
	site := &models.Site{ID: uuid.New(), Name: "Maple Creek"}
	membership := &mockMembershipRepo{}
	op := uuid.New()
	membership.operators = []uuid.UUID{op}
	devices := &mockDeviceRepo{appByUser: map[uuid.UUID]string{op: models.AppOffice}}

	svc := NewNotificationService(newMockSiteRepo(site), membership, devices, nil,
		config.NotifyConfig{BatchSize: 100}, zap.NewNop())

	sent, err := svc.Route(context.Background(), models.EventAlert, site.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, sent)
}
