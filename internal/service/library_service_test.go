package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqnus/sis-api/internal/models"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
)

type loanRepoStub struct {
	byID        map[string]models.Loan
	created     []*models.Loan
	returned    []string
	returnNotes map[string]string
	overdueArg  time.Time
	overdueN    int64
	seq         int
}

func (s *loanRepoStub) List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, int, error) {
	return nil, 0, nil
}

func (s *loanRepoStub) FindByID(ctx context.Context, id string) (*models.Loan, error) {
	if l, ok := s.byID[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

func (s *loanRepoStub) FindDetailByID(ctx context.Context, id string) (*models.LoanDetail, error) {
	if l, ok := s.byID[id]; ok {
		return &models.LoanDetail{Loan: l}, nil
	}
	return &models.LoanDetail{Loan: models.Loan{ID: id}}, nil
}

func (s *loanRepoStub) FindOpenByCopy(ctx context.Context, copyID string) (*models.Loan, error) {
	for _, l := range s.byID {
		if l.CopyID == copyID && (l.Status == models.LoanStatusActive || l.Status == models.LoanStatusOverdue) {
			return &l, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *loanRepoStub) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	s.overdueArg = now
	return s.overdueN, nil
}

func (s *loanRepoStub) Create(ctx context.Context, loan *models.Loan) error {
	s.seq++
	loan.ID = "loan-new"
	s.created = append(s.created, loan)
	return nil
}

func (s *loanRepoStub) MarkReturned(ctx context.Context, id string, returnedAt time.Time, note string) error {
	s.returned = append(s.returned, id)
	if s.returnNotes == nil {
		s.returnNotes = make(map[string]string)
	}
	s.returnNotes[id] = note
	if l, ok := s.byID[id]; ok {
		l.Status = models.LoanStatusReturned
		s.byID[id] = l
	}
	return nil
}

type copyStoreStub struct {
	copies       map[string]models.Copy
	availability map[string]models.CopyAvailability
}

func (s *copyStoreStub) FindByID(ctx context.Context, id string) (*models.Copy, error) {
	if c, ok := s.copies[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *copyStoreStub) UpdateAvailability(ctx context.Context, id string, availability models.CopyAvailability) error {
	if s.availability == nil {
		s.availability = make(map[string]models.CopyAvailability)
	}
	s.availability[id] = availability
	return nil
}

type libraryUOWStub struct {
	loans  *loanRepoStub
	copies *copyStoreStub
	txErr  error
}

func (s *libraryUOWStub) InTx(ctx context.Context, fn func(loans loanTx, copies copyTx) error) error {
	if s.txErr != nil {
		return s.txErr
	}
	return fn(s.loans, s.copies)
}

func newLibraryFixture() (*LibraryService, *loanRepoStub, *copyStoreStub) {
	loans := &loanRepoStub{byID: map[string]models.Loan{}}
	copies := &copyStoreStub{copies: map[string]models.Copy{
		"copy-1": {ID: "copy-1", InventoryCode: "INV-001", Availability: models.CopyAvailable, Active: true},
		"copy-2": {ID: "copy-2", InventoryCode: "INV-002", Availability: models.CopyLoaned, Active: true},
		"copy-3": {ID: "copy-3", InventoryCode: "INV-003", Availability: models.CopyRetired, Active: false},
	}}
	uow := &libraryUOWStub{loans: loans, copies: copies}
	svc := NewLibraryService(loans, copies, uow, studentReaderStub{}, classReaderStub{}, validator.New(), nil)
	return svc, loans, copies
}

func TestLibraryServiceLoan(t *testing.T) {
	svc, loans, copies := newLibraryFixture()
	due := time.Now().UTC().Add(14 * 24 * time.Hour)
	student := "stu-1"

	_, err := svc.Loan(context.Background(), LoanRequest{CopyID: "copy-1", StudentID: &student, DueAt: due})
	require.NoError(t, err)

	require.Len(t, loans.created, 1)
	assert.Equal(t, models.LoanStatusActive, loans.created[0].Status)
	assert.Equal(t, models.CopyLoaned, copies.availability["copy-1"])
}

func TestLibraryServiceLoanRejectsLoanedCopy(t *testing.T) {
	svc, loans, _ := newLibraryFixture()
	due := time.Now().UTC().Add(24 * time.Hour)

	_, err := svc.Loan(context.Background(), LoanRequest{CopyID: "copy-2", DueAt: due})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, "INV-002")
	assert.Empty(t, loans.created)
}

func TestLibraryServiceLoanRejectsRetiredCopy(t *testing.T) {
	svc, _, _ := newLibraryFixture()
	due := time.Now().UTC().Add(24 * time.Hour)

	_, err := svc.Loan(context.Background(), LoanRequest{CopyID: "copy-3", DueAt: due})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestLibraryServiceLoanDueBeforeLoanDate(t *testing.T) {
	svc, _, _ := newLibraryFixture()
	loanedAt := time.Now().UTC()
	due := loanedAt.Add(-time.Hour)

	_, err := svc.Loan(context.Background(), LoanRequest{CopyID: "copy-1", LoanedAt: &loanedAt, DueAt: due})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidArgument.Code, appErrors.FromError(err).Code)
}

func TestLibraryServiceLoanConcurrentWriterConflict(t *testing.T) {
	loans := &loanRepoStub{byID: map[string]models.Loan{}}
	copies := &copyStoreStub{copies: map[string]models.Copy{
		"copy-1": {ID: "copy-1", InventoryCode: "INV-001", Availability: models.CopyAvailable, Active: true},
	}}
	uow := &libraryUOWStub{loans: loans, copies: copies,
		txErr: &pq.Error{Code: "23505", Constraint: "loans_one_open_per_copy"}}
	svc := NewLibraryService(loans, copies, uow, studentReaderStub{}, classReaderStub{}, validator.New(), nil)
	due := time.Now().UTC().Add(24 * time.Hour)

	_, err := svc.Loan(context.Background(), LoanRequest{CopyID: "copy-1", DueAt: due})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, "INV-001")
}

func TestLibraryServiceReturn(t *testing.T) {
	svc, loans, copies := newLibraryFixture()
	loans.byID["loan-1"] = models.Loan{
		ID: "loan-1", CopyID: "copy-2", Status: models.LoanStatusActive, Note: "handle with care",
	}

	_, err := svc.Return(context.Background(), "loan-1", ReturnRequest{Note: "scratched cover"})
	require.NoError(t, err)

	assert.Equal(t, []string{"loan-1"}, loans.returned)
	assert.Equal(t, "handle with care\nscratched cover", loans.returnNotes["loan-1"])
	assert.Equal(t, models.CopyAvailable, copies.availability["copy-2"])
}

func TestLibraryServiceReturnKeepsLoanedWhileAnotherOpen(t *testing.T) {
	svc, loans, copies := newLibraryFixture()
	loans.byID["loan-1"] = models.Loan{ID: "loan-1", CopyID: "copy-1", Status: models.LoanStatusActive}
	loans.byID["loan-2"] = models.Loan{ID: "loan-2", CopyID: "copy-1", Status: models.LoanStatusOverdue}

	_, err := svc.Return(context.Background(), "loan-1", ReturnRequest{})
	require.NoError(t, err)

	assert.Equal(t, []string{"loan-1"}, loans.returned)
	assert.Equal(t, models.CopyLoaned, copies.availability["copy-1"])
}

func TestLibraryServiceReturnOverdueLoan(t *testing.T) {
	svc, loans, _ := newLibraryFixture()
	loans.byID["loan-1"] = models.Loan{ID: "loan-1", CopyID: "copy-2", Status: models.LoanStatusOverdue}

	_, err := svc.Return(context.Background(), "loan-1", ReturnRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"loan-1"}, loans.returned)
}

func TestLibraryServiceReturnAlreadyReturned(t *testing.T) {
	svc, loans, _ := newLibraryFixture()
	loans.byID["loan-1"] = models.Loan{ID: "loan-1", CopyID: "copy-2", Status: models.LoanStatusReturned}

	_, err := svc.Return(context.Background(), "loan-1", ReturnRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.Empty(t, loans.returned)
}

func TestLibraryServiceReturnRetiredCopyKeepsState(t *testing.T) {
	svc, loans, copies := newLibraryFixture()
	loans.byID["loan-1"] = models.Loan{ID: "loan-1", CopyID: "copy-3", Status: models.LoanStatusActive}

	_, err := svc.Return(context.Background(), "loan-1", ReturnRequest{})
	require.NoError(t, err)
	_, touched := copies.availability["copy-3"]
	assert.False(t, touched, "retired copy must keep its availability")
}

func TestLibraryServiceMarkOverdueUsesStartOfDay(t *testing.T) {
	svc, loans, _ := newLibraryFixture()
	loans.overdueN = 3

	count, err := svc.MarkOverdueLoans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, loans.overdueArg, loans.overdueArg.Truncate(24*time.Hour), "cutoff must be start of day")
}
