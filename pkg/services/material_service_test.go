package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/apperrors"
	"github.com/lotline/lotline-engine/pkg/models"
)

func newTestMaterialService(repo *mockMaterialRepo) MaterialService {
	return NewMaterialService(repo, zap.NewNop())
}

func createTestMaterial(t *testing.T, svc MaterialService) *models.MaterialRequest {
	t.Helper()
	req := &models.MaterialRequest{SiteID: uuid.New(), Name: "rebar", Quantity: 40}
	require.NoError(t, svc.Create(context.Background(), req))
	return req
}

func TestMaterialService_Create(t *testing.T) {
	repo := newMockMaterialRepo()
	svc := newTestMaterialService(repo)

	req := createTestMaterial(t, svc)
	assert.Equal(t, models.MaterialPending, req.Status)

	err := svc.Create(context.Background(), &models.MaterialRequest{SiteID: uuid.New()})
	assert.ErrorContains(t, err, "name")
}

func TestMaterialService_Transition_ForwardOnly(t *testing.T) {
	svc := newTestMaterialService(newMockMaterialRepo())
	req := createTestMaterial(t, svc)
	ctx := context.Background()

	updated, err := svc.Transition(ctx, req.ID, models.MaterialAcknowledged)
	require.NoError(t, err)
	assert.Equal(t, models.MaterialAcknowledged, updated.Status)

	// Skipping a step forward is allowed.
	updated, err = svc.Transition(ctx, req.ID, models.MaterialDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.MaterialDelivered, updated.Status)

	// Terminal status is frozen.
	_, err = svc.Transition(ctx, req.ID, models.MaterialCancelled)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestMaterialService_Transition_NoRegression(t *testing.T) {
	svc := newTestMaterialService(newMockMaterialRepo())
	req := createTestMaterial(t, svc)
	ctx := context.Background()

	_, err := svc.Transition(ctx, req.ID, models.MaterialInTransit)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, req.ID, models.MaterialAcknowledged)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = svc.Transition(ctx, req.ID, models.MaterialInTransit)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestMaterialService_Transition_CancelFromNonTerminal(t *testing.T) {
	svc := newTestMaterialService(newMockMaterialRepo())
	req := createTestMaterial(t, svc)

	updated, err := svc.Transition(context.Background(), req.ID, models.MaterialCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.MaterialCancelled, updated.Status)
}

func TestMaterialService_Transition_UnknownRequest(t *testing.T) {
	svc := newTestMaterialService(newMockMaterialRepo())

	_, err := svc.Transition(context.Background(), uuid.New(), models.MaterialAcknowledged)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
