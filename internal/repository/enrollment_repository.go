package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aqnus/sis-api/internal/models"
)

// EnrollmentRepository handles persistence of the enrollment ledger.
type EnrollmentRepository struct {
	db sqlx.ExtContext
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *EnrollmentRepository) WithTx(tx *sqlx.Tx) *EnrollmentRepository {
	return &EnrollmentRepository{db: tx}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN student_profiles st ON st.id = e.student_id
JOIN people p ON p.id = st.person_id
JOIN classes c ON c.id = e.class_id
JOIN school_years y ON y.id = e.school_year_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.SchoolYearID != "" {
		conditions = append(conditions, fmt.Sprintf("e.school_year_id = $%d", len(args)+1))
		args = append(args, filter.SchoolYearID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "p.full_name",
		"class_name":   "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.class_id, e.school_year_id, e.enrolled_at, e.type, e.status, e.note,
        e.created_at, e.updated_at,
        p.full_name AS student_name, c.name AS class_name, y.name AS school_year_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.db, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, school_year_id, enrolled_at, type, status, note, created_at, updated_at
        FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.db, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.school_year_id, e.enrolled_at, e.type, e.status, e.note,
        e.created_at, e.updated_at,
        p.full_name AS student_name, c.name AS class_name, y.name AS school_year_name
        FROM enrollments e
        JOIN student_profiles st ON st.id = e.student_id
        JOIN people p ON p.id = st.person_id
        JOIN classes c ON c.id = e.class_id
        JOIN school_years y ON y.id = e.school_year_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := sqlx.GetContext(ctx, r.db, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActiveByStudentAndYear returns the active enrollment for (student,
// school year) or sql.ErrNoRows. The class name is included so callers can
// name the conflicting class.
func (r *EnrollmentRepository) FindActiveByStudentAndYear(ctx context.Context, studentID, schoolYearID string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.school_year_id, e.enrolled_at, e.type, e.status, e.note,
        e.created_at, e.updated_at,
        p.full_name AS student_name, c.name AS class_name, y.name AS school_year_name
        FROM enrollments e
        JOIN student_profiles st ON st.id = e.student_id
        JOIN people p ON p.id = st.person_id
        JOIN classes c ON c.id = e.class_id
        JOIN school_years y ON y.id = e.school_year_id
        WHERE e.student_id = $1 AND e.school_year_id = $2 AND e.status = $3
        LIMIT 1`
	var detail models.EnrollmentDetail
	if err := sqlx.GetContext(ctx, r.db, &detail, query, studentID, schoolYearID, models.EnrollmentStatusActive); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create persists a new enrollment record. A partial unique index on
// (student_id, school_year_id) WHERE status = 'ACTIVE' backs the one-active
// invariant under concurrent writers.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, class_id, school_year_id, enrolled_at, type, status, note, created_at, updated_at)
        VALUES (:id, :student_id, :class_id, :school_year_id, :enrolled_at, :type, :status, :note, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus moves an enrollment to a new lifecycle status.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
