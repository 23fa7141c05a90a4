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

type timeSlotRepository interface {
	List(ctx context.Context) ([]models.TimeSlot, error)
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
	ExistsByShiftOrdinal(ctx context.Context, shift models.Shift, ordinal int, excludeID string) (bool, error)
	Create(ctx context.Context, slot *models.TimeSlot) error
}

// CreateTimeSlotRequest describes the time slot creation payload. Times are
// clock values in HH:MM.
type CreateTimeSlotRequest struct {
	Ordinal  int          `json:"ordinal" validate:"required,gte=1"`
	StartsAt string       `json:"starts_at" validate:"required"`
	EndsAt   string       `json:"ends_at" validate:"required"`
	Shift    models.Shift `json:"shift" validate:"required,oneof=MORNING AFTERNOON EVENING FULL"`
}

// TimeSlotService manages lesson periods.
type TimeSlotService struct {
	repo      timeSlotRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimeSlotService constructs TimeSlotService.
func NewTimeSlotService(repo timeSlotRepository, validate *validator.Validate, logger *zap.Logger) *TimeSlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeSlotService{repo: repo, validator: validate, logger: logger}
}

// List returns all time slots ordered by shift and ordinal.
func (s *TimeSlotService) List(ctx context.Context) ([]models.TimeSlot, error) {
	slots, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list time slots")
	}
	return slots, nil
}

// Get returns a time slot by ID.
func (s *TimeSlotService) Get(ctx context.Context, id string) (*models.TimeSlot, error) {
	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
	}
	return slot, nil
}

// Create adds a new time slot, unique by (shift, ordinal).
func (s *TimeSlotService) Create(ctx context.Context, req CreateTimeSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time slot payload")
	}
	start, err := time.Parse("15:04", req.StartsAt)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "starts_at must be a clock time in HH:MM")
	}
	end, err := time.Parse("15:04", req.EndsAt)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ends_at must be a clock time in HH:MM")
	}
	if !start.Before(end) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "starts_at must be before ends_at")
	}

	exists, err := s.repo.ExistsByShiftOrdinal(ctx, req.Shift, req.Ordinal, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check time slot uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "time slot already exists for this shift and ordinal")
	}

	slot := &models.TimeSlot{
		Ordinal:  req.Ordinal,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		Shift:    req.Shift,
	}
	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create time slot")
	}
	return slot, nil
}
