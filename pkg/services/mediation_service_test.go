package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/apperrors"
	"github.com/lotline/lotline-engine/pkg/config"
	"github.com/lotline/lotline-engine/pkg/llm"
	"github.com/lotline/lotline-engine/pkg/models"
)

// mockTimelineRepo implements repositories.TimelineRepository.
type mockTimelineRepo struct {
	messages map[uuid.UUID]*models.TimelineMessage
	order    []uuid.UUID
}

func newMockTimelineRepo() *mockTimelineRepo {
	return &mockTimelineRepo{messages: make(map[uuid.UUID]*models.TimelineMessage)}
}

func (m *mockTimelineRepo) Create(_ context.Context, msg *models.TimelineMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	m.messages[msg.ID] = msg
	m.order = append(m.order, msg.ID)
	return nil
}

func (m *mockTimelineRepo) GetByID(_ context.Context, messageID uuid.UUID) (*models.TimelineMessage, error) {
	msg, ok := m.messages[messageID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return msg, nil
}

func (m *mockTimelineRepo) SetInterpretation(_ context.Context, messageID uuid.UUID, result *models.MediationResult) error {
	msg, ok := m.messages[messageID]
	if !ok {
		return apperrors.ErrNotFound
	}
	msg.Interpretation = result
	return nil
}

func (m *mockTimelineRepo) ListRecent(_ context.Context, siteID uuid.UUID, lotID *uuid.UUID, limit int) ([]*models.TimelineMessage, error) {
	var result []*models.TimelineMessage
	for _, id := range m.order {
		msg := m.messages[id]
		if msg.SiteID != siteID {
			continue
		}
		if lotID != nil && (msg.LotID == nil || *msg.LotID != *lotID) {
			continue
		}
		result = append(result, msg)
	}
	if len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// mockMaterialRepo implements repositories.MaterialRequestRepository.
type mockMaterialRepo struct {
	requests  []*models.MaterialRequest
	bySource  map[uuid.UUID]bool
	createErr error
}

func newMockMaterialRepo() *mockMaterialRepo {
	return &mockMaterialRepo{bySource: make(map[uuid.UUID]bool)}
}

func (m *mockMaterialRepo) Create(_ context.Context, req *models.MaterialRequest) error {
	if m.createErr != nil {
		return m.createErr
	}
	req.ID = uuid.New()
	m.requests = append(m.requests, req)
	return nil
}

func (m *mockMaterialRepo) CreateFromMessage(_ context.Context, req *models.MaterialRequest) (bool, error) {
	if m.createErr != nil {
		return false, m.createErr
	}
	if req.SourceMessageID != nil && m.bySource[*req.SourceMessageID] {
		return false, nil
	}
	req.ID = uuid.New()
	m.requests = append(m.requests, req)
	if req.SourceMessageID != nil {
		m.bySource[*req.SourceMessageID] = true
	}
	return true, nil
}

func (m *mockMaterialRepo) GetByID(_ context.Context, requestID uuid.UUID) (*models.MaterialRequest, error) {
	for _, r := range m.requests {
		if r.ID == requestID {
			return r, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockMaterialRepo) TransitionStatus(_ context.Context, requestID uuid.UUID, from, to string) error {
	for _, r := range m.requests {
		if r.ID == requestID {
			if r.Status != from {
				return apperrors.ErrConflict
			}
			r.Status = to
			return nil
		}
	}
	return apperrors.ErrNotFound
}

// mockNotifier records routed events.
type mockNotifier struct {
	events   []models.EventType
	excluded []*uuid.UUID
}

func (m *mockNotifier) Route(_ context.Context, eventType models.EventType, _ uuid.UUID, excludeUserID *uuid.UUID) (int, error) {
	m.events = append(m.events, eventType)
	m.excluded = append(m.excluded, excludeUserID)
	return 1, nil
}

type mediationFixture struct {
	site      *models.Site
	lot       *models.Lot
	messages  *mockTimelineRepo
	materials *mockMaterialRepo
	notifier  *mockNotifier
	svc       MediationService
}

func newMediationFixture(t *testing.T, classifier llm.Classifier) *mediationFixture {
	t.Helper()

	site := &models.Site{ID: uuid.New(), Name: "Maple Creek"}
	lot := &models.Lot{
		ID: uuid.New(), SiteID: site.ID, LotNumber: "12",
		CurrentPhase: 2, Status: models.LotInProgress,
	}
	messages := newMockTimelineRepo()
	materials := newMockMaterialRepo()
	notifier := &mockNotifier{}

	// No dispatch queue: notifications run synchronously in tests.
	svc, err := NewMediationService(
		messages, newMockSiteRepo(site), newMockLotRepo(lot), materials,
		classifier, notifier, nil,
		config.MediationConfig{ConfidenceThreshold: 0.6, MaxContextLots: 30},
		zap.NewNop())
	require.NoError(t, err)

	return &mediationFixture{site: site, lot: lot, messages: messages, materials: materials, notifier: notifier, svc: svc}
}

func (f *mediationFixture) postMessage(t *testing.T, content string) *models.TimelineMessage {
	t.Helper()
	msg := &models.TimelineMessage{
		SiteID: f.site.ID,
		Sender: models.Sender{UserID: uuid.New(), Role: models.RoleWorker, DisplayName: "Janek"},
		Content: content,
	}
	require.NoError(t, f.messages.Create(context.Background(), msg))
	return msg
}

const materialResponse = `{
	"event_type": "material_request",
	"title": "Rebar needed",
	"description": "Crew needs rebar on lot 12",
	"confidence": 0.92,
	"material": {"name": "rebar", "quantity": 40, "unit": "bars", "urgency": "high", "lot_number": "12"}
}`

func TestMediationService_MaterialRequestCreatesSideRecord(t *testing.T) {
	classifier := &llm.MockClassifier{
		ClassifyFunc: func(_ context.Context, _, _ string) (string, error) {
			return materialResponse, nil
		},
	}
	f := newMediationFixture(t, classifier)
	msg := f.postMessage(t, "need 40 bars of rebar on 12")

	result, err := f.svc.Mediate(context.Background(), msg.ID)
	require.NoError(t, err)

	assert.Equal(t, models.EventMaterialRequest, result.EventType)
	assert.InDelta(t, 0.92, result.Confidence, 0.001)

	require.Len(t, f.materials.requests, 1)
	req := f.materials.requests[0]
	assert.Equal(t, "rebar", req.Name)
	assert.Equal(t, 40.0, req.Quantity)
	assert.Equal(t, models.MaterialPending, req.Status)
	require.NotNil(t, req.LotID)
	assert.Equal(t, f.lot.ID, *req.LotID)
	require.NotNil(t, req.SourceMessageID)
	assert.Equal(t, msg.ID, *req.SourceMessageID)
	assert.Contains(t, req.Notes, msg.Content)

	// Interpretation persisted on the message.
	require.NotNil(t, f.messages.messages[msg.ID].Interpretation)

	// Operator notification fired, excluding the sender.
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, models.EventMaterialRequest, f.notifier.events[0])
	require.NotNil(t, f.notifier.excluded[0])
	assert.Equal(t, msg.Sender.UserID, *f.notifier.excluded[0])
}

func TestMediationService_RemediationIsIdempotent(t *testing.T) {
	classifier := &llm.MockClassifier{
		ClassifyFunc: func(_ context.Context, _, _ string) (string, error) {
			return materialResponse, nil
		},
	}
	f := newMediationFixture(t, classifier)
	msg := f.postMessage(t, "need 40 bars of rebar on 12")

	_, err := f.svc.Mediate(context.Background(), msg.ID)
	require.NoError(t, err)
	_, err = f.svc.Mediate(context.Background(), msg.ID)
	require.NoError(t, err)

	// Re-running replaces the interpretation but never duplicates the
	// side record.
	assert.Len(t, f.materials.requests, 1)
}

func TestMediationService_GarbageOutputFallsBack(t *testing.T) {
	classifier := &llm.MockClassifier{
		ClassifyFunc: func(_ context.Context, _, _ string) (string, error) {
			return "sorry, I can't help with that", nil
		},
	}
	f := newMediationFixture(t, classifier)
	msg := f.postMessage(t, "dachser delivery at 7")

	result, err := f.svc.Mediate(context.Background(), msg.ID)
	require.NoError(t, err)

	assert.Equal(t, models.EventNote, result.EventType)
	assert.Zero(t, result.Confidence)
	assert.Equal(t, msg.Content, result.DisplayText)
	assert.Empty(t, f.notifier.events)
	assert.Empty(t, f.materials.requests)

	// The fallback is still persisted as the interpretation.
	require.NotNil(t, f.messages.messages[msg.ID].Interpretation)
	assert.Equal(t, models.EventNote, f.messages.messages[msg.ID].Interpretation.EventType)
}

func TestMediationService_SchemaRejectionFallsBack(t *testing.T) {
	classifier := &llm.MockClassifier{
		ClassifyFunc: func(_ context.Context, _, _ string) (string, error) {
			// material without required name fails validation
			return `{"event_type": "material_request", "confidence": 0.9, "material": {"quantity": 3}}`, nil
		},
	}
	f := newMediationFixture(t, classifier)
	msg := f.postMessage(t, "bring three of the usual")

	result, err := f.svc.Mediate(context.Background(), msg.ID)
	require.NoError(t, err)

	assert.Equal(t, models.EventNote, result.EventType)
	assert.Zero(t, result.Confidence)
	assert.Empty(t, f.materials.requests)
}

func TestMediationService_LowConfidenceSuppressesSideEffects(t *testing.T) {
	classifier := &llm.MockClassifier{
		ClassifyFunc: func(_ context.Context, _, _ string) (string, error) {
			return `{"event_type": "material_request", "confidence": 0.4,
				"material": {"name": "rebar"}}`, nil
		},
	}
	f := newMediationFixture(t, classifier)
	msg := f.postMessage(t, "maybe rebar?")

	result, err := f.svc.Mediate(context.Background(), msg.ID)
	require.NoError(t, err)

	assert.Equal(t, models.EventMaterialRequest, result.EventType)
	assert.Empty(t, f.materials.requests)
	assert.Empty(t, f.notifier.events)

	// The extraction itself still persists for the UI to show.
	require.NotNil(t, f.messages.messages[msg.ID].Interpretation)
	assert.Equal(t, models.EventMaterialRequest, f.messages.messages[msg.ID].Interpretation.EventType)
}

func TestMediationService_ConfidentNoteStaysSilent(t *testing.T) {
	classifier := &llm.MockClassifier{
		ClassifyFunc: func(_ context.Context, _, _ string) (string, error) {
			return `{"event_type": "note", "confidence": 0.95, "title": "Chit-chat"}`, nil
		},
	}
	f := newMediationFixture(t, classifier)
	msg := f.postMessage(t, "nice weather today")

	_, err := f.svc.Mediate(context.Background(), msg.ID)
	require.NoError(t, err)

	assert.Empty(t, f.notifier.events)
}

func TestMediationService_QuotedNumbersDecode(t *testing.T) {
	classifier := &llm.MockClassifier{
		ClassifyFunc: func(_ context.Context, _, _ string) (string, error) {
			return `{"event_type": "material_request", "confidence": "0.8",
				"material": {"name": "cement", "quantity": "12", "lot_number": 12}}`, nil
		},
	}
	f := newMediationFixture(t, classifier)
	msg := f.postMessage(t, "12 bags of cement for lot 12")

	result, err := f.svc.Mediate(context.Background(), msg.ID)
	require.NoError(t, err)

	assert.InDelta(t, 0.8, result.Confidence, 0.001)
	require.NotNil(t, result.Material)
	assert.Equal(t, 12.0, result.Material.Quantity)
	assert.Equal(t, "12", result.Material.LotNumber)
	require.Len(t, f.materials.requests, 1)
}

func TestMediationService_UnresolvedLotStillCreatesRequest(t *testing.T) {
	classifier := &llm.MockClassifier{
		ClassifyFunc: func(_ context.Context, _, _ string) (string, error) {
			return `{"event_type": "material_request", "confidence": 0.9,
				"material": {"name": "rebar", "lot_number": "99"}}`, nil
		},
	}
	f := newMediationFixture(t, classifier)
	msg := f.postMessage(t, "rebar for lot 99")

	_, err := f.svc.Mediate(context.Background(), msg.ID)
	require.NoError(t, err)

	require.Len(t, f.materials.requests, 1)
	assert.Nil(t, f.materials.requests[0].LotID)
}

func TestMediationService_NilClassifierFallsBack(t *testing.T) {
	f := newMediationFixture(t, nil)
	msg := f.postMessage(t, "anything at all")

	result, err := f.svc.Mediate(context.Background(), msg.ID)
	require.NoError(t, err)

	assert.Equal(t, models.EventNote, result.EventType)
	assert.Zero(t, result.Confidence)
}

func TestMediationService_ThinkTagsAndProseAroundJSON(t *testing.T) {
	classifier := &llm.MockClassifier{
		ClassifyFunc: func(_ context.Context, _, _ string) (string, error) {
			return "<think>classifying...</think>Here is the result:\n" +
				`{"event_type": "issue", "title": "Leak", "confidence": 0.85}` +
				"\nLet me know if you need more.", nil
		},
	}
	f := newMediationFixture(t, classifier)
	msg := f.postMessage(t, "water coming through the roof")

	result, err := f.svc.Mediate(context.Background(), msg.ID)
	require.NoError(t, err)

	assert.Equal(t, models.EventIssue, result.EventType)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, models.EventIssue, f.notifier.events[0])
}

func TestMediationService_UnknownMessage(t *testing.T) {
	f := newMediationFixture(t, nil)

	_, err := f.svc.Mediate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
