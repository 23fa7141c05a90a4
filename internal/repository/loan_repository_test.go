package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/aqnus/sis-api/internal/models"
)

func TestLoanRepositoryFindOpenByCopy(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "copy_id", "student_id", "class_id", "loaned_at", "due_at", "returned_at",
		"status", "note", "created_at", "updated_at"}).
		AddRow("loan-1", "copy-1", nil, nil, now, now.Add(24*time.Hour), nil, models.LoanStatusActive, "", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM loans WHERE copy_id = $1 AND status IN ($2, $3) LIMIT 1")).
		WithArgs("copy-1", models.LoanStatusActive, models.LoanStatusOverdue).
		WillReturnRows(rows)

	loan, err := repo.FindOpenByCopy(context.Background(), "copy-1")
	require.NoError(t, err)
	require.Equal(t, models.LoanStatusActive, loan.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryMarkReturned(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	returnedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET status = $2, returned_at = $3, note = $4, updated_at = $5 WHERE id = $1")).
		WithArgs("loan-1", models.LoanStatusReturned, returnedAt, "left at the desk", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkReturned(context.Background(), "loan-1", returnedAt, "left at the desk"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryMarkReturnedMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET status = $2, returned_at = $3, note = $4, updated_at = $5 WHERE id = $1")).
		WithArgs("ghost", models.LoanStatusReturned, sqlmock.AnyArg(), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkReturned(context.Background(), "ghost", time.Now(), "")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLoanRepositoryMarkOverdue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	cutoff := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET status = $1, updated_at = $2 WHERE status = $3 AND due_at < $4")).
		WithArgs(models.LoanStatusOverdue, sqlmock.AnyArg(), models.LoanStatusActive, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.MarkOverdue(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
	require.NoError(t, mock.ExpectationsWereMet())
}
