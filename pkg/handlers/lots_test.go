package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/apperrors"
	"github.com/lotline/lotline-engine/pkg/models"
	"github.com/lotline/lotline-engine/pkg/services"
)

type mockFlowService struct {
	advanceResult *services.AdvanceResult
	advanceErr    error
}

func (m *mockFlowService) GetFlowStatus(context.Context, uuid.UUID) (*models.FlowStatus, error) {
	return &models.FlowStatus{}, nil
}

func (m *mockFlowService) AdvancePhase(context.Context, uuid.UUID) (*services.AdvanceResult, error) {
	return m.advanceResult, m.advanceErr
}

func (m *mockFlowService) OpenBlockingItem(context.Context, *models.BlockingItem) error { return nil }
func (m *mockFlowService) CloseBlockingItem(context.Context, uuid.UUID) error           { return nil }
func (m *mockFlowService) RecordGateCheck(context.Context, *models.GateCheck) error     { return nil }

func advanceRequest(t *testing.T, svc services.FlowService, lotID string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewLotsHandler(svc, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/lots/"+lotID+"/advance", nil))
	return rec
}

func TestLotsHandler_AdvancePhase_OK(t *testing.T) {
	svc := &mockFlowService{advanceResult: &services.AdvanceResult{Advanced: true, NewPhase: 3}}
	rec := advanceRequest(t, svc, uuid.NewString())

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestLotsHandler_AdvancePhase_Blocked(t *testing.T) {
	svc := &mockFlowService{advanceResult: &services.AdvanceResult{
		Blocked: &services.BlockedReason{OpenItems: 2, Message: "2 open items at walls"},
	}}
	rec := advanceRequest(t, svc, uuid.NewString())

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "2 open items at walls", resp.Error)
	assert.NotNil(t, resp.Data)
}

func TestLotsHandler_AdvancePhase_Conflict(t *testing.T) {
	svc := &mockFlowService{advanceErr: apperrors.ErrConflict}
	rec := advanceRequest(t, svc, uuid.NewString())

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLotsHandler_AdvancePhase_NotFound(t *testing.T) {
	svc := &mockFlowService{advanceErr: apperrors.ErrNotFound}
	rec := advanceRequest(t, svc, uuid.NewString())

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLotsHandler_AdvancePhase_BadLotID(t *testing.T) {
	rec := advanceRequest(t, &mockFlowService{}, "not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
