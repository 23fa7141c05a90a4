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

// SchoolRepository handles persistence of school units.
type SchoolRepository struct {
	db sqlx.ExtContext
}

// NewSchoolRepository constructs the repository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// List returns all schools ordered by name.
func (r *SchoolRepository) List(ctx context.Context) ([]models.School, error) {
	const query = `SELECT id, name, code, active, created_at, updated_at FROM schools ORDER BY name`
	var schools []models.School
	if err := sqlx.SelectContext(ctx, r.db, &schools, query); err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	return schools, nil
}

// FindByID returns a school by its ID.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	const query = `SELECT id, name, code, active, created_at, updated_at FROM schools WHERE id = $1`
	var school models.School
	if err := sqlx.GetContext(ctx, r.db, &school, query, id); err != nil {
		return nil, err
	}
	return &school, nil
}

// ExistsByCode reports whether a school with the code exists.
func (r *SchoolRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	const query = `SELECT 1 FROM schools WHERE LOWER(code) = LOWER($1) LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.db, &exists, query, code); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check school code: %w", err)
	}
	return true, nil
}

// Create persists a new school.
func (r *SchoolRepository) Create(ctx context.Context, school *models.School) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	school.CreatedAt = now
	school.UpdatedAt = now
	const query = `INSERT INTO schools (id, name, code, active, created_at, updated_at)
        VALUES (:id, :name, :code, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, school); err != nil {
		return fmt.Errorf("create school: %w", err)
	}
	return nil
}
