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

// TimeSlotRepository handles persistence of lesson periods.
type TimeSlotRepository struct {
	db sqlx.ExtContext
}

// NewTimeSlotRepository constructs the repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

// List returns all time slots ordered by shift and ordinal.
func (r *TimeSlotRepository) List(ctx context.Context) ([]models.TimeSlot, error) {
	const query = `SELECT id, ordinal, starts_at, ends_at, shift, created_at, updated_at
        FROM time_slots ORDER BY shift, ordinal`
	var slots []models.TimeSlot
	if err := sqlx.SelectContext(ctx, r.db, &slots, query); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// FindByID returns a time slot by its ID.
func (r *TimeSlotRepository) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	const query = `SELECT id, ordinal, starts_at, ends_at, shift, created_at, updated_at FROM time_slots WHERE id = $1`
	var slot models.TimeSlot
	if err := sqlx.GetContext(ctx, r.db, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ExistsByShiftOrdinal reports whether a slot with the (shift, ordinal) pair
// exists, optionally ignoring one id.
func (r *TimeSlotRepository) ExistsByShiftOrdinal(ctx context.Context, shift models.Shift, ordinal int, excludeID string) (bool, error) {
	query := `SELECT 1 FROM time_slots WHERE shift = $1 AND ordinal = $2`
	args := []interface{}{shift, ordinal}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := sqlx.GetContext(ctx, r.db, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check time slot uniqueness: %w", err)
	}
	return true, nil
}

// Create persists a new time slot.
func (r *TimeSlotRepository) Create(ctx context.Context, slot *models.TimeSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	const query = `INSERT INTO time_slots (id, ordinal, starts_at, ends_at, shift, created_at, updated_at)
        VALUES (:id, :ordinal, :starts_at, :ends_at, :shift, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, slot); err != nil {
		return fmt.Errorf("create time slot: %w", err)
	}
	return nil
}
