package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aqnus/sis-api/internal/models"
)

// TimetableRepository handles timetables and their lesson placements.
type TimetableRepository struct {
	db sqlx.ExtContext
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *TimetableRepository) WithTx(tx *sqlx.Tx) *TimetableRepository {
	return &TimetableRepository{db: tx}
}

// FindByID returns a timetable by its ID.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	const query = `SELECT id, class_id, school_year_id, active, note, created_at, updated_at
        FROM timetables WHERE id = $1`
	var timetable models.Timetable
	if err := sqlx.GetContext(ctx, r.db, &timetable, query, id); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// FindActive returns the active timetable for (class, school year).
func (r *TimetableRepository) FindActive(ctx context.Context, classID, schoolYearID string) (*models.Timetable, error) {
	const query = `SELECT id, class_id, school_year_id, active, note, created_at, updated_at
        FROM timetables WHERE class_id = $1 AND school_year_id = $2 AND active = TRUE`
	var timetable models.Timetable
	if err := sqlx.GetContext(ctx, r.db, &timetable, query, classID, schoolYearID); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// Create persists a new timetable. A partial unique index on (class_id,
// school_year_id) WHERE active backs the single-active invariant.
func (r *TimetableRepository) Create(ctx context.Context, timetable *models.Timetable) error {
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	timetable.CreatedAt = now
	timetable.UpdatedAt = now
	const query = `INSERT INTO timetables (id, class_id, school_year_id, active, note, created_at, updated_at)
        VALUES (:id, :class_id, :school_year_id, :active, :note, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, timetable); err != nil {
		return fmt.Errorf("create timetable: %w", err)
	}
	return nil
}

// SetActive flips the active flag of a timetable.
func (r *TimetableRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE timetables SET active = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set timetable active: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeactivateSiblings deactivates every active timetable of (class, school
// year) other than excludeID.
func (r *TimetableRepository) DeactivateSiblings(ctx context.Context, classID, schoolYearID, excludeID string) error {
	query := `UPDATE timetables SET active = FALSE, updated_at = $3
        WHERE class_id = $1 AND school_year_id = $2 AND active = TRUE`
	args := []interface{}{classID, schoolYearID, time.Now().UTC()}
	if excludeID != "" {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deactivate sibling timetables: %w", err)
	}
	return nil
}

// ListItems returns the placements of a timetable with slot, subject and
// teacher names, ordered for display.
func (r *TimetableRepository) ListItems(ctx context.Context, timetableID string) ([]models.TimetableItemDetail, error) {
	const query = `SELECT i.id, i.timetable_id, i.weekday, i.time_slot_id, i.subject_id, i.teacher_id,
        i.created_at, i.updated_at,
        ts.ordinal AS slot_ordinal, ts.starts_at AS slot_start, ts.ends_at AS slot_end,
        s.name AS subject_name, p.full_name AS teacher_name
        FROM timetable_items i
        JOIN time_slots ts ON ts.id = i.time_slot_id
        JOIN subjects s ON s.id = i.subject_id
        JOIN teacher_profiles t ON t.id = i.teacher_id
        JOIN people p ON p.id = t.person_id
        WHERE i.timetable_id = $1
        ORDER BY i.weekday, ts.ordinal`
	var items []models.TimetableItemDetail
	if err := sqlx.SelectContext(ctx, r.db, &items, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable items: %w", err)
	}
	return items, nil
}

// FindItemByID returns a placement by its ID.
func (r *TimetableRepository) FindItemByID(ctx context.Context, id string) (*models.TimetableItem, error) {
	const query = `SELECT id, timetable_id, weekday, time_slot_id, subject_id, teacher_id, created_at, updated_at
        FROM timetable_items WHERE id = $1`
	var item models.TimetableItem
	if err := sqlx.GetContext(ctx, r.db, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemBySlot returns the placement occupying (timetable, weekday, slot),
// optionally ignoring one item id, or sql.ErrNoRows.
func (r *TimetableRepository) FindItemBySlot(ctx context.Context, timetableID string, weekday models.Weekday, timeSlotID, excludeItemID string) (*models.TimetableItemDetail, error) {
	query := `SELECT i.id, i.timetable_id, i.weekday, i.time_slot_id, i.subject_id, i.teacher_id,
        i.created_at, i.updated_at,
        ts.ordinal AS slot_ordinal, ts.starts_at AS slot_start, ts.ends_at AS slot_end,
        s.name AS subject_name, p.full_name AS teacher_name
        FROM timetable_items i
        JOIN time_slots ts ON ts.id = i.time_slot_id
        JOIN subjects s ON s.id = i.subject_id
        JOIN teacher_profiles t ON t.id = i.teacher_id
        JOIN people p ON p.id = t.person_id
        WHERE i.timetable_id = $1 AND i.weekday = $2 AND i.time_slot_id = $3`
	args := []interface{}{timetableID, weekday, timeSlotID}
	if excludeItemID != "" {
		query += " AND i.id <> $4"
		args = append(args, excludeItemID)
	}
	query += " LIMIT 1"
	var item models.TimetableItemDetail
	if err := sqlx.GetContext(ctx, r.db, &item, query, args...); err != nil {
		return nil, err
	}
	return &item, nil
}

// TeacherSlotConflict is the placement blocking a teacher at a weekday/slot,
// enriched with the offending class and subject.
type TeacherSlotConflict struct {
	models.TimetableItem
	ClassName   string `db:"class_name"`
	SubjectName string `db:"subject_name"`
}

// FindTeacherSlotItem returns the placement assigning the teacher to
// (weekday, slot) across all active timetables of the school year,
// optionally ignoring one item id, or sql.ErrNoRows.
func (r *TimetableRepository) FindTeacherSlotItem(ctx context.Context, teacherID string, weekday models.Weekday, timeSlotID, schoolYearID, excludeItemID string) (*TeacherSlotConflict, error) {
	query := `SELECT i.id, i.timetable_id, i.weekday, i.time_slot_id, i.subject_id, i.teacher_id,
        i.created_at, i.updated_at,
        c.name AS class_name, s.name AS subject_name
        FROM timetable_items i
        JOIN timetables g ON g.id = i.timetable_id
        JOIN classes c ON c.id = g.class_id
        JOIN subjects s ON s.id = i.subject_id
        WHERE i.teacher_id = $1 AND i.weekday = $2 AND i.time_slot_id = $3
          AND g.school_year_id = $4 AND g.active = TRUE`
	args := []interface{}{teacherID, weekday, timeSlotID, schoolYearID}
	if excludeItemID != "" {
		query += " AND i.id <> $5"
		args = append(args, excludeItemID)
	}
	query += " LIMIT 1"
	var conflict TeacherSlotConflict
	if err := sqlx.GetContext(ctx, r.db, &conflict, query, args...); err != nil {
		return nil, err
	}
	return &conflict, nil
}

// CreateItem persists a lesson placement. Unique (timetable_id, weekday,
// time_slot_id) backs the one-lesson-per-slot invariant.
func (r *TimetableRepository) CreateItem(ctx context.Context, item *models.TimetableItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO timetable_items (id, timetable_id, weekday, time_slot_id, subject_id, teacher_id, created_at, updated_at)
        VALUES (:id, :timetable_id, :weekday, :time_slot_id, :subject_id, :teacher_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, item); err != nil {
		return fmt.Errorf("create timetable item: %w", err)
	}
	return nil
}

// UpdateItem overwrites the placement fields of an item.
func (r *TimetableRepository) UpdateItem(ctx context.Context, item *models.TimetableItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE timetable_items
        SET weekday = :weekday, time_slot_id = :time_slot_id, subject_id = :subject_id, teacher_id = :teacher_id, updated_at = :updated_at
        WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.db, query, item)
	if err != nil {
		return fmt.Errorf("update timetable item: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteItem removes a placement.
func (r *TimetableRepository) DeleteItem(ctx context.Context, id string) error {
	const query = `DELETE FROM timetable_items WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete timetable item: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
