package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/aqnus/sis-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func enrollmentDetailColumns() []string {
	return []string{"id", "student_id", "class_id", "school_year_id", "enrolled_at", "type", "status", "note",
		"created_at", "updated_at", "student_name", "class_name", "school_year_name"}
}

func TestEnrollmentRepositoryFindActiveByStudentAndYear(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(enrollmentDetailColumns()).
		AddRow("enr-1", "stu-1", "class-1", "year-1", now, models.EnrollmentTypeInitial, models.EnrollmentStatusActive, "",
			now, now, "Ana Souza", "1A", "2026")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.student_id = $1 AND e.school_year_id = $2 AND e.status = $3")).
		WithArgs("stu-1", "year-1", models.EnrollmentStatusActive).
		WillReturnRows(rows)

	detail, err := repo.FindActiveByStudentAndYear(context.Background(), "stu-1", "year-1")
	require.NoError(t, err)
	require.Equal(t, "1A", detail.ClassName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindActiveByStudentAndYearNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.student_id = $1 AND e.school_year_id = $2 AND e.status = $3")).
		WithArgs("stu-1", "year-1", models.EnrollmentStatusActive).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByStudentAndYear(context.Background(), "stu-1", "year-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEnrollmentRepositoryListFiltersByStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(enrollmentDetailColumns()).
		AddRow("enr-1", "stu-1", "class-1", "year-1", now, models.EnrollmentTypeInitial, models.EnrollmentStatusActive, "",
			now, now, "Ana Souza", "1A", "2026")
	mock.ExpectQuery(regexp.QuoteMeta("e.status = $1 ORDER BY e.enrolled_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(models.EnrollmentStatusActive).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{Status: models.EnrollmentStatusActive})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{
		StudentID:    "stu-1",
		ClassID:      "class-1",
		SchoolYearID: "year-1",
		EnrolledAt:   time.Now().UTC(),
		Type:         models.EnrollmentTypeInitial,
	}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatusMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("ghost", models.EnrollmentStatusClosed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "ghost", models.EnrollmentStatusClosed)
	require.ErrorIs(t, err, sql.ErrNoRows)
}
