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

// CopyRepository handles persistence of physical copies.
type CopyRepository struct {
	db sqlx.ExtContext
}

// NewCopyRepository constructs the repository.
func NewCopyRepository(db *sqlx.DB) *CopyRepository {
	return &CopyRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *CopyRepository) WithTx(tx *sqlx.Tx) *CopyRepository {
	return &CopyRepository{db: tx}
}

// List returns copies filtered by the provided criteria.
func (r *CopyRepository) List(ctx context.Context, filter models.CopyFilter) ([]models.CopyDetail, int, error) {
	base := `FROM copies cp JOIN works w ON w.id = cp.work_id`
	var conditions []string
	var args []interface{}

	if filter.WorkID != "" {
		conditions = append(conditions, fmt.Sprintf("cp.work_id = $%d", len(args)+1))
		args = append(args, filter.WorkID)
	}
	if filter.Availability != "" {
		conditions = append(conditions, fmt.Sprintf("cp.availability = $%d", len(args)+1))
		args = append(args, filter.Availability)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("cp.active = $%d", len(args)+1))
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

	query := fmt.Sprintf(`SELECT cp.id, cp.work_id, cp.inventory_code, cp.condition, cp.availability, cp.active,
        cp.created_at, cp.updated_at, w.title AS work_title
        %s ORDER BY cp.inventory_code LIMIT %d OFFSET %d`, base+clause, size, offset)

	var copies []models.CopyDetail
	if err := sqlx.SelectContext(ctx, r.db, &copies, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list copies: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count copies: %w", err)
	}
	return copies, total, nil
}

// FindByID returns a copy by its ID.
func (r *CopyRepository) FindByID(ctx context.Context, id string) (*models.Copy, error) {
	const query = `SELECT id, work_id, inventory_code, condition, availability, active, created_at, updated_at
        FROM copies WHERE id = $1`
	var copy models.Copy
	if err := sqlx.GetContext(ctx, r.db, &copy, query, id); err != nil {
		return nil, err
	}
	return &copy, nil
}

// FindByInventoryCode returns a copy by its inventory code.
func (r *CopyRepository) FindByInventoryCode(ctx context.Context, code string) (*models.Copy, error) {
	const query = `SELECT id, work_id, inventory_code, condition, availability, active, created_at, updated_at
        FROM copies WHERE inventory_code = $1`
	var copy models.Copy
	if err := sqlx.GetContext(ctx, r.db, &copy, query, code); err != nil {
		return nil, err
	}
	return &copy, nil
}

// ExistsByInventoryCode reports whether a copy with the inventory code
// exists, excluding the given ID when non-empty.
func (r *CopyRepository) ExistsByInventoryCode(ctx context.Context, code, excludeID string) (bool, error) {
	query := `SELECT 1 FROM copies WHERE inventory_code = $1`
	args := []interface{}{code}
	if excludeID != "" {
		query += ` AND id != $2`
		args = append(args, excludeID)
	}
	query += ` LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.db, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check inventory code: %w", err)
	}
	return true, nil
}

// Create persists a new copy.
func (r *CopyRepository) Create(ctx context.Context, copy *models.Copy) error {
	if copy.ID == "" {
		copy.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	copy.CreatedAt = now
	copy.UpdatedAt = now
	if copy.Condition == "" {
		copy.Condition = models.CopyConditionGood
	}
	if copy.Availability == "" {
		copy.Availability = models.CopyAvailable
	}
	const query = `INSERT INTO copies (id, work_id, inventory_code, condition, availability, active, created_at, updated_at)
        VALUES (:id, :work_id, :inventory_code, :condition, :availability, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, copy); err != nil {
		return fmt.Errorf("create copy: %w", err)
	}
	return nil
}

// UpdateAvailability moves a copy to a new availability state.
func (r *CopyRepository) UpdateAvailability(ctx context.Context, id string, availability models.CopyAvailability) error {
	const query = `UPDATE copies SET availability = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, availability, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update copy availability: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateCondition records a new physical condition for a copy.
func (r *CopyRepository) UpdateCondition(ctx context.Context, id string, condition models.CopyCondition) error {
	const query = `UPDATE copies SET condition = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, condition, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update copy condition: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
