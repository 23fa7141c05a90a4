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

// SchoolYearRepository handles persistence of school years.
type SchoolYearRepository struct {
	db sqlx.ExtContext
}

// NewSchoolYearRepository constructs the repository.
func NewSchoolYearRepository(db *sqlx.DB) *SchoolYearRepository {
	return &SchoolYearRepository{db: db}
}

// List returns all school years, newest first.
func (r *SchoolYearRepository) List(ctx context.Context) ([]models.SchoolYear, error) {
	const query = `SELECT id, name, starts_at, ends_at, active, created_at, updated_at
        FROM school_years ORDER BY name DESC`
	var years []models.SchoolYear
	if err := sqlx.SelectContext(ctx, r.db, &years, query); err != nil {
		return nil, fmt.Errorf("list school years: %w", err)
	}
	return years, nil
}

// FindByID returns a school year by its ID.
func (r *SchoolYearRepository) FindByID(ctx context.Context, id string) (*models.SchoolYear, error) {
	const query = `SELECT id, name, starts_at, ends_at, active, created_at, updated_at
        FROM school_years WHERE id = $1`
	var year models.SchoolYear
	if err := sqlx.GetContext(ctx, r.db, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// ExistsByName reports whether a school year with the name exists,
// optionally ignoring one id.
func (r *SchoolYearRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	query := `SELECT 1 FROM school_years WHERE name = $1`
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := sqlx.GetContext(ctx, r.db, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check school year name: %w", err)
	}
	return true, nil
}

// Create persists a new school year.
func (r *SchoolYearRepository) Create(ctx context.Context, year *models.SchoolYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	year.CreatedAt = now
	year.UpdatedAt = now
	const query = `INSERT INTO school_years (id, name, starts_at, ends_at, active, created_at, updated_at)
        VALUES (:id, :name, :starts_at, :ends_at, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, year); err != nil {
		return fmt.Errorf("create school year: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a school year.
func (r *SchoolYearRepository) Update(ctx context.Context, year *models.SchoolYear) error {
	year.UpdatedAt = time.Now().UTC()
	const query = `UPDATE school_years
        SET name = :name, starts_at = :starts_at, ends_at = :ends_at, active = :active, updated_at = :updated_at
        WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.db, query, year)
	if err != nil {
		return fmt.Errorf("update school year: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
