package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aqnus/sis-api/internal/models"
)

// StudentClassRepository handles the current-state student/class links.
type StudentClassRepository struct {
	db sqlx.ExtContext
}

// NewStudentClassRepository constructs the repository.
func NewStudentClassRepository(db *sqlx.DB) *StudentClassRepository {
	return &StudentClassRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *StudentClassRepository) WithTx(tx *sqlx.Tx) *StudentClassRepository {
	return &StudentClassRepository{db: tx}
}

// FindByStudentAndClass returns the link row for (student, class).
func (r *StudentClassRepository) FindByStudentAndClass(ctx context.Context, studentID, classID string) (*models.StudentClass, error) {
	const query = `SELECT id, student_id, class_id, enrolled_at, active, created_at, updated_at
        FROM student_classes WHERE student_id = $1 AND class_id = $2`
	var link models.StudentClass
	if err := sqlx.GetContext(ctx, r.db, &link, query, studentID, classID); err != nil {
		return nil, err
	}
	return &link, nil
}

// ListByClass returns all active links of a class.
func (r *StudentClassRepository) ListByClass(ctx context.Context, classID string) ([]models.StudentClass, error) {
	const query = `SELECT id, student_id, class_id, enrolled_at, active, created_at, updated_at
        FROM student_classes WHERE class_id = $1 AND active = TRUE ORDER BY enrolled_at`
	var links []models.StudentClass
	if err := sqlx.SelectContext(ctx, r.db, &links, query, classID); err != nil {
		return nil, fmt.Errorf("list class links: %w", err)
	}
	return links, nil
}

// Upsert creates or reactivates the (student, class) link, setting the
// enrollment date and the active flag.
func (r *StudentClassRepository) Upsert(ctx context.Context, studentID, classID string, enrolledAt time.Time) error {
	now := time.Now().UTC()
	const query = `INSERT INTO student_classes (id, student_id, class_id, enrolled_at, active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, TRUE, $5, $5)
        ON CONFLICT (student_id, class_id)
        DO UPDATE SET enrolled_at = EXCLUDED.enrolled_at, active = TRUE, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), studentID, classID, enrolledAt, now); err != nil {
		return fmt.Errorf("upsert student class link: %w", err)
	}
	return nil
}

// Deactivate flags the (student, class) link inactive.
func (r *StudentClassRepository) Deactivate(ctx context.Context, studentID, classID string) error {
	const query = `UPDATE student_classes SET active = FALSE, updated_at = $3 WHERE student_id = $1 AND class_id = $2`
	if _, err := r.db.ExecContext(ctx, query, studentID, classID, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate student class link: %w", err)
	}
	return nil
}
