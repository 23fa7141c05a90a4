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

// QualificationRepository handles teacher/subject qualifications.
type QualificationRepository struct {
	db sqlx.ExtContext
}

// NewQualificationRepository constructs the repository.
func NewQualificationRepository(db *sqlx.DB) *QualificationRepository {
	return &QualificationRepository{db: db}
}

// Exists reports whether the teacher is qualified for the subject in the
// school year.
func (r *QualificationRepository) Exists(ctx context.Context, teacherID, subjectID, schoolYearID string) (bool, error) {
	const query = `SELECT 1 FROM qualifications WHERE teacher_id = $1 AND subject_id = $2 AND school_year_id = $3 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.db, &exists, query, teacherID, subjectID, schoolYearID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check qualification: %w", err)
	}
	return true, nil
}

// List returns qualifications filtered by teacher, subject and year.
func (r *QualificationRepository) List(ctx context.Context, filter models.QualificationFilter) ([]models.QualificationDetail, int, error) {
	base := `FROM qualifications q
JOIN teacher_profiles t ON t.id = q.teacher_id
JOIN people p ON p.id = t.person_id
JOIN subjects s ON s.id = q.subject_id
JOIN school_years y ON y.id = q.school_year_id`
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("q.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("q.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.SchoolYearID != "" {
		conditions = append(conditions, fmt.Sprintf("q.school_year_id = $%d", len(args)+1))
		args = append(args, filter.SchoolYearID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT q.id, q.teacher_id, q.subject_id, q.school_year_id, q.created_at,
        p.full_name AS teacher_name, s.name AS subject_name, y.name AS school_year_name
        %s ORDER BY y.name DESC, p.full_name, s.name LIMIT %d OFFSET %d`, base+clause, size, offset)

	var qualifications []models.QualificationDetail
	if err := sqlx.SelectContext(ctx, r.db, &qualifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list qualifications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count qualifications: %w", err)
	}
	return qualifications, total, nil
}

// Create persists a qualification. Unique (teacher, subject, school year).
func (r *QualificationRepository) Create(ctx context.Context, qualification *models.Qualification) error {
	if qualification.ID == "" {
		qualification.ID = uuid.NewString()
	}
	if qualification.CreatedAt.IsZero() {
		qualification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO qualifications (id, teacher_id, subject_id, school_year_id, created_at)
        VALUES (:id, :teacher_id, :subject_id, :school_year_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, qualification); err != nil {
		return fmt.Errorf("create qualification: %w", err)
	}
	return nil
}

// Delete removes a qualification.
func (r *QualificationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM qualifications WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete qualification: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
