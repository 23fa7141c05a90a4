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

type loanRepository interface {
	List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Loan, error)
	FindDetailByID(ctx context.Context, id string) (*models.LoanDetail, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

type loanTx interface {
	Create(ctx context.Context, loan *models.Loan) error
	MarkReturned(ctx context.Context, id string, returnedAt time.Time, note string) error
	FindOpenByCopy(ctx context.Context, copyID string) (*models.Loan, error)
}

type copyReader interface {
	FindByID(ctx context.Context, id string) (*models.Copy, error)
}

type copyTx interface {
	UpdateAvailability(ctx context.Context, id string, availability models.CopyAvailability) error
}

// libraryUnitOfWork opens one database transaction around a loan write and
// the availability recompute it triggers.
type libraryUnitOfWork interface {
	InTx(ctx context.Context, fn func(loans loanTx, copies copyTx) error) error
}

// LibraryUnitOfWork is the production libraryUnitOfWork backed by a real
// database transaction.
type LibraryUnitOfWork struct {
	db     *sqlx.DB
	loans  *repository.LoanRepository
	copies *repository.CopyRepository
}

// NewLibraryUnitOfWork constructs the unit of work.
func NewLibraryUnitOfWork(db *sqlx.DB, loans *repository.LoanRepository, copies *repository.CopyRepository) *LibraryUnitOfWork {
	return &LibraryUnitOfWork{db: db, loans: loans, copies: copies}
}

// InTx runs fn inside one transaction with transaction-bound stores.
func (u *LibraryUnitOfWork) InTx(ctx context.Context, fn func(loans loanTx, copies copyTx) error) error {
	return database.Transact(ctx, u.db, func(tx *sqlx.Tx) error {
		return fn(u.loans.WithTx(tx), u.copies.WithTx(tx))
	})
}

// LoanRequest describes the loan creation payload. Student and class are
// optional so staff can borrow copies too.
type LoanRequest struct {
	CopyID    string     `json:"copy_id" validate:"required"`
	StudentID *string    `json:"student_id,omitempty"`
	ClassID   *string    `json:"class_id,omitempty"`
	LoanedAt  *time.Time `json:"loaned_at,omitempty"`
	DueAt     time.Time  `json:"due_at" validate:"required"`
	Note      string     `json:"note"`
}

// ReturnRequest describes the loan return payload.
type ReturnRequest struct {
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Note       string     `json:"note"`
}

// LibraryService runs circulation: loans, returns and the overdue sweep.
// Copy availability is derived state owned by this service; nothing else
// writes it.
type LibraryService struct {
	loans     loanRepository
	copies    copyReader
	uow       libraryUnitOfWork
	students  studentReader
	classes   classReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLibraryService constructs LibraryService.
func NewLibraryService(loans loanRepository, copies copyReader, uow libraryUnitOfWork, students studentReader, classes classReader, validate *validator.Validate, logger *zap.Logger) *LibraryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LibraryService{loans: loans, copies: copies, uow: uow, students: students, classes: classes, validator: validate, logger: logger}
}

// ListLoans returns loans with pagination metadata.
func (s *LibraryService) ListLoans(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	loans, total, err := s.loans.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list loans")
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
	return loans, pagination, nil
}

// GetLoan returns a single loan with copy and borrower info.
func (s *LibraryService) GetLoan(ctx context.Context, id string) (*models.LoanDetail, error) {
	loan, err := s.loans.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan")
	}
	return loan, nil
}

// availabilityAfter computes the availability a copy should carry given
// whether it has an open loan. Retired and inactive copies keep their state.
func availabilityAfter(copy *models.Copy, hasOpenLoan bool) models.CopyAvailability {
	if hasOpenLoan {
		return models.CopyLoaned
	}
	if copy.Active && copy.Availability != models.CopyRetired {
		return models.CopyAvailable
	}
	return copy.Availability
}

// Loan lends an available copy. The loan row and the availability change are
// written in one transaction; the partial unique open-loan index on copies
// settles concurrent borrowers.
func (s *LibraryService) Loan(ctx context.Context, req LoanRequest) (*models.LoanDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid loan payload")
	}

	copy, err := s.copies.FindByID(ctx, req.CopyID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "copy not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load copy")
	}
	if !copy.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "copy is inactive")
	}
	if copy.Availability != models.CopyAvailable {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("copy %s is %s, not available for loan", copy.InventoryCode, copy.Availability))
	}

	if req.StudentID != nil {
		if _, err := s.students.FindStudentByID(ctx, *req.StudentID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
	}
	if req.ClassID != nil {
		if _, err := s.classes.FindByID(ctx, *req.ClassID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
	}

	loanedAt := time.Now().UTC()
	if req.LoanedAt != nil {
		loanedAt = req.LoanedAt.UTC()
	}
	if !req.DueAt.After(loanedAt) {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "due date must be after the loan date")
	}

	loan := &models.Loan{
		CopyID:    req.CopyID,
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		LoanedAt:  loanedAt,
		DueAt:     req.DueAt.UTC(),
		Status:    models.LoanStatusActive,
		Note:      req.Note,
	}
	err = s.uow.InTx(ctx, func(loans loanTx, copies copyTx) error {
		if err := loans.Create(ctx, loan); err != nil {
			return err
		}
		return copies.UpdateAvailability(ctx, copy.ID, availabilityAfter(copy, true))
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
				fmt.Sprintf("copy %s already has an open loan", copy.InventoryCode))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create loan")
	}

	detail, err := s.loans.FindDetailByID(ctx, loan.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan detail")
	}
	s.logger.Info("copy loaned",
		zap.String("loan_id", loan.ID),
		zap.String("copy_id", loan.CopyID))
	return detail, nil
}

// Return closes an open loan and recomputes the copy's availability, both in
// one transaction. Return notes are appended below the loan note.
func (s *LibraryService) Return(ctx context.Context, id string, req ReturnRequest) (*models.LoanDetail, error) {
	loan, err := s.loans.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan")
	}
	if loan.Status != models.LoanStatusActive && loan.Status != models.LoanStatusOverdue {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("loan is %s, only open loans can be returned", loan.Status))
	}

	copy, err := s.copies.FindByID(ctx, loan.CopyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load copy")
	}

	returnedAt := time.Now().UTC()
	if req.ReturnedAt != nil {
		returnedAt = req.ReturnedAt.UTC()
	}
	note := loan.Note
	if req.Note != "" {
		if note != "" {
			note = note + "\n" + req.Note
		} else {
			note = req.Note
		}
	}

	err = s.uow.InTx(ctx, func(loans loanTx, copies copyTx) error {
		if err := loans.MarkReturned(ctx, id, returnedAt, note); err != nil {
			return err
		}
		// Recompute from the loans actually open after the return instead
		// of assuming none remain.
		hasOpen := true
		if _, err := loans.FindOpenByCopy(ctx, loan.CopyID); err != nil {
			if err != sql.ErrNoRows {
				return err
			}
			hasOpen = false
		}
		next := availabilityAfter(copy, hasOpen)
		if next == copy.Availability {
			return nil
		}
		return copies.UpdateAvailability(ctx, copy.ID, next)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to return loan")
	}

	detail, err := s.loans.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan detail")
	}
	return detail, nil
}

// MarkOverdueLoans flips every active loan whose due date fell strictly
// before today to overdue and returns the number of flipped loans. The sweep
// is idempotent; loans already overdue or returned are untouched.
func (s *LibraryService) MarkOverdueLoans(ctx context.Context) (int64, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	count, err := s.loans.MarkOverdue(ctx, today)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark overdue loans")
	}
	if count > 0 {
		s.logger.Info("loans marked overdue", zap.Int64("count", count))
	}
	return count, nil
}
