package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/apperrors"
	"github.com/lotline/lotline-engine/pkg/models"
	"github.com/lotline/lotline-engine/pkg/repositories"
)

// MaterialService owns the material request lifecycle. Transitions are
// monotonic: a request never regresses to an earlier status.
type MaterialService interface {
	Create(ctx context.Context, req *models.MaterialRequest) error
	Get(ctx context.Context, requestID uuid.UUID) (*models.MaterialRequest, error)
	// Transition moves a request to a later lifecycle status. Returns
	// apperrors.ErrInvalidTransition for regressions and
	// apperrors.ErrConflict when a concurrent writer moved the request first.
	Transition(ctx context.Context, requestID uuid.UUID, to string) (*models.MaterialRequest, error)
}

type materialService struct {
	materials repositories.MaterialRequestRepository
	logger    *zap.Logger
}

// NewMaterialService creates a new MaterialService.
func NewMaterialService(materials repositories.MaterialRequestRepository, logger *zap.Logger) MaterialService {
	return &materialService{
		materials: materials,
		logger:    logger.Named("material-service"),
	}
}

var _ MaterialService = (*materialService)(nil)

func (s *materialService) Create(ctx context.Context, req *models.MaterialRequest) error {
	if req.Name == "" {
		return fmt.Errorf("material name is required")
	}
	req.Status = models.MaterialPending
	return s.materials.Create(ctx, req)
}

func (s *materialService) Get(ctx context.Context, requestID uuid.UUID) (*models.MaterialRequest, error) {
	return s.materials.GetByID(ctx, requestID)
}

func (s *materialService) Transition(ctx context.Context, requestID uuid.UUID, to string) (*models.MaterialRequest, error) {
	req, err := s.materials.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get material request: %w", err)
	}

	if !models.CanTransitionMaterialStatus(req.Status, to) {
		return nil, fmt.Errorf("material request %s: %s -> %s: %w",
			requestID, req.Status, to, apperrors.ErrInvalidTransition)
	}

	if err := s.materials.TransitionStatus(ctx, requestID, req.Status, to); err != nil {
		return nil, err
	}

	s.logger.Info("material request transitioned",
		zap.String("request_id", requestID.String()),
		zap.String("from", req.Status),
		zap.String("to", to))

	return s.materials.GetByID(ctx, requestID)
}
