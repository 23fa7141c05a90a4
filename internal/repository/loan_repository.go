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

// LoanRepository handles persistence of loans.
type LoanRepository struct {
	db sqlx.ExtContext
}

// NewLoanRepository constructs the repository.
func NewLoanRepository(db *sqlx.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *LoanRepository) WithTx(tx *sqlx.Tx) *LoanRepository {
	return &LoanRepository{db: tx}
}

// List returns loans filtered by the provided criteria.
func (r *LoanRepository) List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, int, error) {
	base := `FROM loans l
JOIN copies cp ON cp.id = l.copy_id
JOIN works w ON w.id = cp.work_id
LEFT JOIN student_profiles st ON st.id = l.student_id
LEFT JOIN people p ON p.id = st.person_id`
	var conditions []string
	var args []interface{}

	if filter.CopyID != "" {
		conditions = append(conditions, fmt.Sprintf("l.copy_id = $%d", len(args)+1))
		args = append(args, filter.CopyID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("l.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("l.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("l.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"loaned_at": "l.loaned_at",
		"due_at":    "l.due_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "l.loaned_at"
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

	query := fmt.Sprintf(`SELECT l.id, l.copy_id, l.student_id, l.class_id, l.loaned_at, l.due_at, l.returned_at,
        l.status, l.note, l.created_at, l.updated_at,
        cp.inventory_code, w.title AS work_title, p.full_name AS student_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var loans []models.LoanDetail
	if err := sqlx.SelectContext(ctx, r.db, &loans, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list loans: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count loans: %w", err)
	}
	return loans, total, nil
}

// FindByID returns a loan by its ID.
func (r *LoanRepository) FindByID(ctx context.Context, id string) (*models.Loan, error) {
	const query = `SELECT id, copy_id, student_id, class_id, loaned_at, due_at, returned_at, status, note, created_at, updated_at
        FROM loans WHERE id = $1`
	var loan models.Loan
	if err := sqlx.GetContext(ctx, r.db, &loan, query, id); err != nil {
		return nil, err
	}
	return &loan, nil
}

// FindDetailByID returns a loan with copy and student info.
func (r *LoanRepository) FindDetailByID(ctx context.Context, id string) (*models.LoanDetail, error) {
	const query = `SELECT l.id, l.copy_id, l.student_id, l.class_id, l.loaned_at, l.due_at, l.returned_at,
        l.status, l.note, l.created_at, l.updated_at,
        cp.inventory_code, w.title AS work_title, p.full_name AS student_name
        FROM loans l
        JOIN copies cp ON cp.id = l.copy_id
        JOIN works w ON w.id = cp.work_id
        LEFT JOIN student_profiles st ON st.id = l.student_id
        LEFT JOIN people p ON p.id = st.person_id
        WHERE l.id = $1`
	var loan models.LoanDetail
	if err := sqlx.GetContext(ctx, r.db, &loan, query, id); err != nil {
		return nil, err
	}
	return &loan, nil
}

// FindOpenByCopy returns the open loan (active or overdue) for a copy, or
// sql.ErrNoRows. A partial unique index on copy_id over open statuses backs
// the at-most-one invariant under concurrent writers.
func (r *LoanRepository) FindOpenByCopy(ctx context.Context, copyID string) (*models.Loan, error) {
	const query = `SELECT id, copy_id, student_id, class_id, loaned_at, due_at, returned_at, status, note, created_at, updated_at
        FROM loans WHERE copy_id = $1 AND status IN ($2, $3) LIMIT 1`
	var loan models.Loan
	if err := sqlx.GetContext(ctx, r.db, &loan, query, copyID, models.LoanStatusActive, models.LoanStatusOverdue); err != nil {
		return nil, err
	}
	return &loan, nil
}

// Create persists a new loan.
func (r *LoanRepository) Create(ctx context.Context, loan *models.Loan) error {
	if loan.ID == "" {
		loan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	loan.CreatedAt = now
	loan.UpdatedAt = now
	if loan.Status == "" {
		loan.Status = models.LoanStatusActive
	}
	const query = `INSERT INTO loans (id, copy_id, student_id, class_id, loaned_at, due_at, returned_at, status, note, created_at, updated_at)
        VALUES (:id, :copy_id, :student_id, :class_id, :loaned_at, :due_at, :returned_at, :status, :note, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, loan); err != nil {
		return fmt.Errorf("create loan: %w", err)
	}
	return nil
}

// MarkReturned closes a loan, stamping the return time and the final note.
func (r *LoanRepository) MarkReturned(ctx context.Context, id string, returnedAt time.Time, note string) error {
	const query = `UPDATE loans SET status = $2, returned_at = $3, note = $4, updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, models.LoanStatusReturned, returnedAt, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark loan returned: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkOverdue flips every active loan whose due date has passed to overdue
// and returns how many were flipped. Returned loans are never touched.
func (r *LoanRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE loans SET status = $1, updated_at = $2 WHERE status = $3 AND due_at < $4`
	res, err := r.db.ExecContext(ctx, query, models.LoanStatusOverdue, time.Now().UTC(), models.LoanStatusActive, now)
	if err != nil {
		return 0, fmt.Errorf("mark loans overdue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark loans overdue: %w", err)
	}
	return affected, nil
}
