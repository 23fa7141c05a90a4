package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aqnus/sis-api/internal/models"
)

// MovementRepository appends to and reads the student movement ledger.
// The ledger is append-only: there is no update or delete here on purpose.
type MovementRepository struct {
	db sqlx.ExtContext
}

// NewMovementRepository constructs the repository.
func NewMovementRepository(db *sqlx.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *MovementRepository) WithTx(tx *sqlx.Tx) *MovementRepository {
	return &MovementRepository{db: tx}
}

// Create appends a movement entry.
func (r *MovementRepository) Create(ctx context.Context, movement *models.StudentMovement) error {
	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_movements (id, student_id, event, occurred_at, description, enrollment_id, created_at)
        VALUES (:id, :student_id, :event, :occurred_at, :description, :enrollment_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, movement); err != nil {
		return fmt.Errorf("create student movement: %w", err)
	}
	return nil
}

// ListByStudent returns the movement history of a student, newest first.
func (r *MovementRepository) ListByStudent(ctx context.Context, studentID string) ([]models.StudentMovement, error) {
	const query = `SELECT id, student_id, event, occurred_at, description, enrollment_id, created_at
        FROM student_movements WHERE student_id = $1 ORDER BY occurred_at DESC, created_at DESC`
	var movements []models.StudentMovement
	if err := sqlx.SelectContext(ctx, r.db, &movements, query, studentID); err != nil {
		return nil, fmt.Errorf("list student movements: %w", err)
	}
	return movements, nil
}

// ListByEnrollment returns the movements linked to an enrollment record.
func (r *MovementRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.StudentMovement, error) {
	const query = `SELECT id, student_id, event, occurred_at, description, enrollment_id, created_at
        FROM student_movements WHERE enrollment_id = $1 ORDER BY occurred_at, created_at`
	var movements []models.StudentMovement
	if err := sqlx.SelectContext(ctx, r.db, &movements, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment movements: %w", err)
	}
	return movements, nil
}
