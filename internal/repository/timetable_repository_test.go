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

func TestTimetableRepositoryFindTeacherSlotItem(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "timetable_id", "weekday", "time_slot_id", "subject_id", "teacher_id",
		"created_at", "updated_at", "class_name", "subject_name"}).
		AddRow("item-1", "tt-2", models.WeekdayMonday, "slot-1", "subj-1", "teach-1", now, now, "1B", "Mathematics")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE i.teacher_id = $1 AND i.weekday = $2 AND i.time_slot_id = $3")).
		WithArgs("teach-1", models.WeekdayMonday, "slot-1", "year-1").
		WillReturnRows(rows)

	conflict, err := repo.FindTeacherSlotItem(context.Background(), "teach-1", models.WeekdayMonday, "slot-1", "year-1", "")
	require.NoError(t, err)
	require.Equal(t, "1B", conflict.ClassName)
	require.Equal(t, "Mathematics", conflict.SubjectName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryFindTeacherSlotItemExcludesItem(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("AND i.id <> $5")).
		WithArgs("teach-1", models.WeekdayMonday, "slot-1", "year-1", "item-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindTeacherSlotItem(context.Background(), "teach-1", models.WeekdayMonday, "slot-1", "year-1", "item-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryFindItemBySlotExcludesItem(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE i.timetable_id = $1 AND i.weekday = $2 AND i.time_slot_id = $3 AND i.id <> $4")).
		WithArgs("tt-1", models.WeekdayFriday, "slot-2", "item-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindItemBySlot(context.Background(), "tt-1", models.WeekdayFriday, "slot-2", "item-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTimetableRepositoryDeactivateSiblings(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetables SET active = FALSE")).
		WithArgs("class-1", "year-1", sqlmock.AnyArg(), "tt-keep").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.DeactivateSiblings(context.Background(), "class-1", "year-1", "tt-keep"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryCreateItem(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_items")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	item := &models.TimetableItem{
		TimetableID: "tt-1",
		Weekday:     models.WeekdayMonday,
		TimeSlotID:  "slot-1",
		SubjectID:   "subj-1",
		TeacherID:   "teach-1",
	}
	require.NoError(t, repo.CreateItem(context.Background(), item))
	require.NotEmpty(t, item.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
