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

// ClassRepository handles persistence of classes.
type ClassRepository struct {
	db sqlx.ExtContext
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes filtered by the provided criteria.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	base := `FROM classes c
JOIN school_years y ON y.id = c.school_year_id
JOIN schools s ON s.id = c.school_id`
	var conditions []string
	var args []interface{}

	if filter.SchoolYearID != "" {
		conditions = append(conditions, fmt.Sprintf("c.school_year_id = $%d", len(args)+1))
		args = append(args, filter.SchoolYearID)
	}
	if filter.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("c.school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("c.name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("c.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
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

	query := fmt.Sprintf(`SELECT c.id, c.name, c.school_year_id, c.school_id, c.active, c.created_at, c.updated_at,
        y.name AS school_year_name, s.name AS school_name
        %s ORDER BY y.name DESC, c.name LIMIT %d OFFSET %d`, base+clause, size, offset)

	var classes []models.ClassDetail
	if err := sqlx.SelectContext(ctx, r.db, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class by its ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, school_year_id, school_id, active, created_at, updated_at
        FROM classes WHERE id = $1`
	var class models.Class
	if err := sqlx.GetContext(ctx, r.db, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ExistsByNameYearSchool reports whether a class with the same (name, year,
// school) exists, optionally ignoring one id.
func (r *ClassRepository) ExistsByNameYearSchool(ctx context.Context, name, schoolYearID, schoolID, excludeID string) (bool, error) {
	query := `SELECT 1 FROM classes WHERE name = $1 AND school_year_id = $2 AND school_id = $3`
	args := []interface{}{name, schoolYearID, schoolID}
	if excludeID != "" {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := sqlx.GetContext(ctx, r.db, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class uniqueness: %w", err)
	}
	return true, nil
}

// Create persists a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, school_year_id, school_id, active, created_at, updated_at)
        VALUES (:id, :name, :school_year_id, :school_id, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a class.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, active = :active, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.db, query, class)
	if err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
