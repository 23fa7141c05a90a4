package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aqnus/sis-api/internal/models"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
)

type schoolYearRepository interface {
	List(ctx context.Context) ([]models.SchoolYear, error)
	FindByID(ctx context.Context, id string) (*models.SchoolYear, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, year *models.SchoolYear) error
	Update(ctx context.Context, year *models.SchoolYear) error
}

// CreateSchoolYearRequest describes the school year creation payload.
type CreateSchoolYearRequest struct {
	Name     string    `json:"name" validate:"required"`
	StartsAt time.Time `json:"starts_at" validate:"required"`
	EndsAt   time.Time `json:"ends_at" validate:"required"`
	Active   bool      `json:"active"`
}

// UpdateSchoolYearRequest updates mutable fields on a school year.
type UpdateSchoolYearRequest struct {
	Name     string    `json:"name" validate:"required"`
	StartsAt time.Time `json:"starts_at" validate:"required"`
	EndsAt   time.Time `json:"ends_at" validate:"required"`
	Active   *bool     `json:"active"`
}

// SchoolYearService manages school years.
type SchoolYearService struct {
	repo      schoolYearRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchoolYearService constructs SchoolYearService.
func NewSchoolYearService(repo schoolYearRepository, validate *validator.Validate, logger *zap.Logger) *SchoolYearService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchoolYearService{repo: repo, validator: validate, logger: logger}
}

// List returns all school years, newest first.
func (s *SchoolYearService) List(ctx context.Context) ([]models.SchoolYear, error) {
	years, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list school years")
	}
	return years, nil
}

// Get returns a school year by ID.
func (s *SchoolYearService) Get(ctx context.Context, id string) (*models.SchoolYear, error) {
	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}
	return year, nil
}

// Create adds a new school year ensuring a unique name and valid dates.
func (s *SchoolYearService) Create(ctx context.Context, req CreateSchoolYearRequest) (*models.SchoolYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school year payload")
	}
	if !req.StartsAt.Before(req.EndsAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "starts_at must be before ends_at")
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check school year uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "school year with this name already exists")
	}

	year := &models.SchoolYear{
		Name:     req.Name,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		Active:   req.Active,
	}
	if err := s.repo.Create(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school year")
	}
	return year, nil
}

// Update modifies a school year record.
func (s *SchoolYearService) Update(ctx context.Context, id string, req UpdateSchoolYearRequest) (*models.SchoolYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school year payload")
	}
	if !req.StartsAt.Before(req.EndsAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "starts_at must be before ends_at")
	}

	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check school year uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "school year with this name already exists")
	}

	year.Name = req.Name
	year.StartsAt = req.StartsAt
	year.EndsAt = req.EndsAt
	if req.Active != nil {
		year.Active = *req.Active
	}
	if err := s.repo.Update(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update school year")
	}
	return year, nil
}
