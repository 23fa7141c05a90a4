package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aqnus/sis-api/internal/models"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
)

type qualificationRepository interface {
	Exists(ctx context.Context, teacherID, subjectID, schoolYearID string) (bool, error)
	List(ctx context.Context, filter models.QualificationFilter) ([]models.QualificationDetail, int, error)
	Create(ctx context.Context, qualification *models.Qualification) error
	Delete(ctx context.Context, id string) error
}

// GrantQualificationRequest describes the qualification creation payload.
type GrantQualificationRequest struct {
	TeacherID    string `json:"teacher_id" validate:"required"`
	SubjectID    string `json:"subject_id" validate:"required"`
	SchoolYearID string `json:"school_year_id" validate:"required"`
}

// QualificationService manages which teacher may teach which subject in a
// school year.
type QualificationService struct {
	repo      qualificationRepository
	teachers  teacherReader
	subjects  subjectReader
	years     schoolYearReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQualificationService constructs QualificationService.
func NewQualificationService(repo qualificationRepository, teachers teacherReader, subjects subjectReader, years schoolYearReader, validate *validator.Validate, logger *zap.Logger) *QualificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QualificationService{repo: repo, teachers: teachers, subjects: subjects, years: years, validator: validate, logger: logger}
}

// List returns qualifications with pagination metadata.
func (s *QualificationService) List(ctx context.Context, filter models.QualificationFilter) ([]models.QualificationDetail, *models.Pagination, error) {
	qualifications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list qualifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return qualifications, pagination, nil
}

// Grant authorises a teacher for a subject within a school year.
func (s *QualificationService) Grant(ctx context.Context, req GrantQualificationRequest) (*models.Qualification, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid qualification payload")
	}
	if _, err := s.teachers.FindTeacherByID(ctx, req.TeacherID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if _, err := s.years.FindByID(ctx, req.SchoolYearID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}

	exists, err := s.repo.Exists(ctx, req.TeacherID, req.SubjectID, req.SchoolYearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check qualification")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "teacher is already qualified for this subject in this school year")
	}

	qualification := &models.Qualification{
		TeacherID:    req.TeacherID,
		SubjectID:    req.SubjectID,
		SchoolYearID: req.SchoolYearID,
	}
	if err := s.repo.Create(ctx, qualification); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create qualification")
	}
	return qualification, nil
}

// Revoke removes a qualification. Existing timetable placements are kept;
// the check only guards new ones.
func (s *QualificationService) Revoke(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "qualification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete qualification")
	}
	return nil
}
