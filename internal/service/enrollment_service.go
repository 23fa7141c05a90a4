package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aqnus/sis-api/internal/models"
	"github.com/aqnus/sis-api/internal/repository"
	"github.com/aqnus/sis-api/pkg/database"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	FindActiveByStudentAndYear(ctx context.Context, studentID, schoolYearID string) (*models.EnrollmentDetail, error)
}

type enrollmentTx interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
}

type studentClassTx interface {
	Upsert(ctx context.Context, studentID, classID string, enrolledAt time.Time) error
	Deactivate(ctx context.Context, studentID, classID string) error
}

type movementTx interface {
	Create(ctx context.Context, movement *models.StudentMovement) error
}

// enrollmentUnitOfWork opens one database transaction and hands the
// transaction-bound stores to fn. All writes inside fn commit or roll back
// together.
type enrollmentUnitOfWork interface {
	InTx(ctx context.Context, fn func(enrollments enrollmentTx, links studentClassTx, movements movementTx) error) error
}

type movementReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.StudentMovement, error)
}

type studentReader interface {
	FindStudentByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type schoolYearReader interface {
	FindByID(ctx context.Context, id string) (*models.SchoolYear, error)
}

// EnrollmentUnitOfWork is the production enrollmentUnitOfWork backed by a
// real database transaction.
type EnrollmentUnitOfWork struct {
	db          *sqlx.DB
	enrollments *repository.EnrollmentRepository
	links       *repository.StudentClassRepository
	movements   *repository.MovementRepository
}

// NewEnrollmentUnitOfWork constructs the unit of work.
func NewEnrollmentUnitOfWork(db *sqlx.DB, enrollments *repository.EnrollmentRepository, links *repository.StudentClassRepository, movements *repository.MovementRepository) *EnrollmentUnitOfWork {
	return &EnrollmentUnitOfWork{db: db, enrollments: enrollments, links: links, movements: movements}
}

// InTx runs fn inside one transaction with transaction-bound stores.
func (u *EnrollmentUnitOfWork) InTx(ctx context.Context, fn func(enrollments enrollmentTx, links studentClassTx, movements movementTx) error) error {
	return database.Transact(ctx, u.db, func(tx *sqlx.Tx) error {
		return fn(u.enrollments.WithTx(tx), u.links.WithTx(tx), u.movements.WithTx(tx))
	})
}

// EnrollStudentRequest describes the enrollment creation payload.
type EnrollStudentRequest struct {
	StudentID    string                `json:"student_id" validate:"required"`
	ClassID      string                `json:"class_id" validate:"required"`
	SchoolYearID string                `json:"school_year_id" validate:"required"`
	EnrolledAt   *time.Time            `json:"enrolled_at,omitempty"`
	Type         models.EnrollmentType `json:"type" validate:"omitempty,oneof=INITIAL TRANSFER REASSIGNMENT"`
	Note         string                `json:"note"`
}

// CloseEnrollmentRequest describes the closure payload.
type CloseEnrollmentRequest struct {
	ClosedAt *time.Time `json:"closed_at,omitempty"`
	Reason   string     `json:"reason"`
}

// TransferEnrollmentRequest describes the transfer payload.
type TransferEnrollmentRequest struct {
	NewClassID    string     `json:"new_class_id" validate:"required"`
	TransferredAt *time.Time `json:"transferred_at,omitempty"`
	Note          string     `json:"note"`
}

// EnrollmentService orchestrates the enrollment ledger: every admission,
// transfer and closure is recorded as enrollment rows plus movement entries,
// with the student/class link kept in step.
type EnrollmentService struct {
	repo      enrollmentRepository
	uow       enrollmentUnitOfWork
	movements movementReader
	students  studentReader
	classes   classReader
	years     schoolYearReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, uow enrollmentUnitOfWork, movements movementReader, students studentReader, classes classReader, years schoolYearReader, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, uow: uow, movements: movements, students: students, classes: classes, years: years, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// Get returns a single enrollment with contextual names.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Movements returns the movement history of a student, newest first.
func (s *EnrollmentService) Movements(ctx context.Context, studentID string) ([]models.StudentMovement, error) {
	if _, err := s.students.FindStudentByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	movements, err := s.movements.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list movements")
	}
	return movements, nil
}

// movementEventForType maps how a student entered a class to the ledger
// event recorded for it.
func movementEventForType(t models.EnrollmentType) models.MovementEvent {
	switch t {
	case models.EnrollmentTypeTransfer:
		return models.MovementTransferIn
	case models.EnrollmentTypeReassignment:
		return models.MovementReassignment
	default:
		return models.MovementInitialEnrollment
	}
}

// Enroll admits a student to a class for a school year. The enrollment row,
// the student/class link and the movement entry are written in one
// transaction.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.Type == "" {
		req.Type = models.EnrollmentTypeInitial
	}

	if _, err := s.students.FindStudentByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if _, err := s.years.FindByID(ctx, req.SchoolYearID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}
	if class.SchoolYearID != req.SchoolYearID {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "class does not belong to the given school year")
	}

	existing, err := s.repo.FindActiveByStudentAndYear(ctx, req.StudentID, req.SchoolYearID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("student already has an active enrollment in class %s for this school year", existing.ClassName))
	}

	enrolledAt := time.Now().UTC()
	if req.EnrolledAt != nil {
		enrolledAt = req.EnrolledAt.UTC()
	}
	enrollment := &models.Enrollment{
		StudentID:    req.StudentID,
		ClassID:      req.ClassID,
		SchoolYearID: req.SchoolYearID,
		EnrolledAt:   enrolledAt,
		Type:         req.Type,
		Status:       models.EnrollmentStatusActive,
		Note:         req.Note,
	}

	description := fmt.Sprintf("enrolled in class %s", class.Name)
	if req.Note != "" {
		description = fmt.Sprintf("%s: %s", description, req.Note)
	}

	err = s.uow.InTx(ctx, func(enrollments enrollmentTx, links studentClassTx, movements movementTx) error {
		if err := enrollments.Create(ctx, enrollment); err != nil {
			return err
		}
		if err := links.Upsert(ctx, req.StudentID, req.ClassID, enrolledAt); err != nil {
			return err
		}
		return movements.Create(ctx, &models.StudentMovement{
			StudentID:    req.StudentID,
			Event:        movementEventForType(req.Type),
			OccurredAt:   enrolledAt,
			Description:  description,
			EnrollmentID: &enrollment.ID,
		})
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
				"student already has an active enrollment for this school year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", req.StudentID),
		zap.String("class_id", req.ClassID))
	return detail, nil
}

// Close ends an active enrollment. The status change, the link deactivation
// and the closure movement are written in one transaction.
func (s *EnrollmentService) Close(ctx context.Context, id string, req CloseEnrollmentRequest) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("enrollment is %s, only active enrollments can be closed", enrollment.Status))
	}

	closedAt := time.Now().UTC()
	if req.ClosedAt != nil {
		closedAt = req.ClosedAt.UTC()
	}
	description := "enrollment closed"
	if req.Reason != "" {
		description = fmt.Sprintf("enrollment closed: %s", req.Reason)
	}

	err = s.uow.InTx(ctx, func(enrollments enrollmentTx, links studentClassTx, movements movementTx) error {
		if err := enrollments.UpdateStatus(ctx, id, models.EnrollmentStatusClosed); err != nil {
			return err
		}
		if err := links.Deactivate(ctx, enrollment.StudentID, enrollment.ClassID); err != nil {
			return err
		}
		return movements.Create(ctx, &models.StudentMovement{
			StudentID:    enrollment.StudentID,
			Event:        models.MovementClosure,
			OccurredAt:   closedAt,
			Description:  description,
			EnrollmentID: &enrollment.ID,
		})
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close enrollment")
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Cancel voids an active enrollment, for admissions recorded by mistake. The
// ledger keeps the row with a cancelled status; nothing is deleted.
func (s *EnrollmentService) Cancel(ctx context.Context, id string, req CloseEnrollmentRequest) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("enrollment is %s, only active enrollments can be cancelled", enrollment.Status))
	}

	cancelledAt := time.Now().UTC()
	if req.ClosedAt != nil {
		cancelledAt = req.ClosedAt.UTC()
	}
	description := "enrollment cancelled"
	if req.Reason != "" {
		description = fmt.Sprintf("enrollment cancelled: %s", req.Reason)
	}

	err = s.uow.InTx(ctx, func(enrollments enrollmentTx, links studentClassTx, movements movementTx) error {
		if err := enrollments.UpdateStatus(ctx, id, models.EnrollmentStatusCancelled); err != nil {
			return err
		}
		if err := links.Deactivate(ctx, enrollment.StudentID, enrollment.ClassID); err != nil {
			return err
		}
		return movements.Create(ctx, &models.StudentMovement{
			StudentID:    enrollment.StudentID,
			Event:        models.MovementCancellation,
			OccurredAt:   cancelledAt,
			Description:  description,
			EnrollmentID: &enrollment.ID,
		})
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Transfer moves a student to a different class within the same school year.
// In one transaction the current enrollment is closed with a transfer-out
// movement and a new transfer enrollment is created with a transfer-in
// movement, so the ledger shows both sides.
func (s *EnrollmentService) Transfer(ctx context.Context, id string, req TransferEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer payload")
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("enrollment is %s, only active enrollments can be transferred", enrollment.Status))
	}
	if enrollment.ClassID == req.NewClassID {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "student is already in the target class")
	}
	newClass, err := s.classes.FindByID(ctx, req.NewClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target class")
	}
	if newClass.SchoolYearID != enrollment.SchoolYearID {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "target class does not belong to the enrollment's school year")
	}

	transferredAt := time.Now().UTC()
	if req.TransferredAt != nil {
		transferredAt = req.TransferredAt.UTC()
	}
	next := &models.Enrollment{
		StudentID:    enrollment.StudentID,
		ClassID:      req.NewClassID,
		SchoolYearID: enrollment.SchoolYearID,
		EnrolledAt:   transferredAt,
		Type:         models.EnrollmentTypeTransfer,
		Status:       models.EnrollmentStatusActive,
		Note:         req.Note,
	}
	outDescription := fmt.Sprintf("transferred out to class %s", newClass.Name)
	inDescription := fmt.Sprintf("transferred in to class %s", newClass.Name)
	if req.Note != "" {
		outDescription = fmt.Sprintf("%s: %s", outDescription, req.Note)
		inDescription = fmt.Sprintf("%s: %s", inDescription, req.Note)
	}

	err = s.uow.InTx(ctx, func(enrollments enrollmentTx, links studentClassTx, movements movementTx) error {
		if err := enrollments.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusClosed); err != nil {
			return err
		}
		if err := links.Deactivate(ctx, enrollment.StudentID, enrollment.ClassID); err != nil {
			return err
		}
		if err := movements.Create(ctx, &models.StudentMovement{
			StudentID:    enrollment.StudentID,
			Event:        models.MovementTransferOut,
			OccurredAt:   transferredAt,
			Description:  outDescription,
			EnrollmentID: &enrollment.ID,
		}); err != nil {
			return err
		}
		if err := enrollments.Create(ctx, next); err != nil {
			return err
		}
		if err := links.Upsert(ctx, enrollment.StudentID, req.NewClassID, transferredAt); err != nil {
			return err
		}
		return movements.Create(ctx, &models.StudentMovement{
			StudentID:    enrollment.StudentID,
			Event:        models.MovementTransferIn,
			OccurredAt:   transferredAt,
			Description:  inDescription,
			EnrollmentID: &next.ID,
		})
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
				"student already has an active enrollment for this school year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transfer enrollment")
	}

	detail, err := s.repo.FindDetailByID(ctx, next.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	s.logger.Info("student transferred",
		zap.String("old_enrollment_id", enrollment.ID),
		zap.String("new_enrollment_id", next.ID),
		zap.String("class_id", req.NewClassID))
	return detail, nil
}
