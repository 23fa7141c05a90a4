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

// CatalogRepository handles persistence of the bibliographic catalog: works,
// authors, publishers and library subjects.
type CatalogRepository struct {
	db sqlx.ExtContext
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *CatalogRepository) WithTx(tx *sqlx.Tx) *CatalogRepository {
	return &CatalogRepository{db: tx}
}

// ListAuthors returns all authors ordered by name.
func (r *CatalogRepository) ListAuthors(ctx context.Context) ([]models.Author, error) {
	const query = `SELECT id, name, active, created_at, updated_at FROM authors ORDER BY name`
	var authors []models.Author
	if err := sqlx.SelectContext(ctx, r.db, &authors, query); err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	return authors, nil
}

// CreateAuthor persists a new author.
func (r *CatalogRepository) CreateAuthor(ctx context.Context, author *models.Author) error {
	if author.ID == "" {
		author.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	author.CreatedAt = now
	author.UpdatedAt = now
	const query = `INSERT INTO authors (id, name, active, created_at, updated_at)
        VALUES (:id, :name, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, author); err != nil {
		return fmt.Errorf("create author: %w", err)
	}
	return nil
}

// ListPublishers returns all publishers ordered by name.
func (r *CatalogRepository) ListPublishers(ctx context.Context) ([]models.Publisher, error) {
	const query = `SELECT id, name, active, created_at, updated_at FROM publishers ORDER BY name`
	var publishers []models.Publisher
	if err := sqlx.SelectContext(ctx, r.db, &publishers, query); err != nil {
		return nil, fmt.Errorf("list publishers: %w", err)
	}
	return publishers, nil
}

// CreatePublisher persists a new publisher.
func (r *CatalogRepository) CreatePublisher(ctx context.Context, publisher *models.Publisher) error {
	if publisher.ID == "" {
		publisher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	publisher.CreatedAt = now
	publisher.UpdatedAt = now
	const query = `INSERT INTO publishers (id, name, active, created_at, updated_at)
        VALUES (:id, :name, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, publisher); err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	return nil
}

// ListSubjects returns all library subjects ordered by name.
func (r *CatalogRepository) ListSubjects(ctx context.Context) ([]models.LibrarySubject, error) {
	const query = `SELECT id, name, active, created_at, updated_at FROM library_subjects ORDER BY name`
	var subjects []models.LibrarySubject
	if err := sqlx.SelectContext(ctx, r.db, &subjects, query); err != nil {
		return nil, fmt.Errorf("list library subjects: %w", err)
	}
	return subjects, nil
}

// ExistsSubjectByName reports whether a subject with the name exists.
func (r *CatalogRepository) ExistsSubjectByName(ctx context.Context, name string) (bool, error) {
	const query = `SELECT 1 FROM library_subjects WHERE LOWER(name) = LOWER($1) LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.db, &exists, query, name); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check library subject name: %w", err)
	}
	return true, nil
}

// CreateSubject persists a new library subject.
func (r *CatalogRepository) CreateSubject(ctx context.Context, subject *models.LibrarySubject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	subject.CreatedAt = now
	subject.UpdatedAt = now
	const query = `INSERT INTO library_subjects (id, name, active, created_at, updated_at)
        VALUES (:id, :name, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, subject); err != nil {
		return fmt.Errorf("create library subject: %w", err)
	}
	return nil
}

// ListWorks returns works filtered by the provided criteria. Authors are
// loaded in a second query to avoid row multiplication.
func (r *CatalogRepository) ListWorks(ctx context.Context, filter models.WorkFilter) ([]models.WorkDetail, int, error) {
	base := `FROM works w
LEFT JOIN publishers pub ON pub.id = w.publisher_id
LEFT JOIN library_subjects ls ON ls.id = w.library_subject_id`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(w.title ILIKE $%d OR w.isbn ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.PublisherID != "" {
		conditions = append(conditions, fmt.Sprintf("w.publisher_id = $%d", len(args)+1))
		args = append(args, filter.PublisherID)
	}
	if filter.LibrarySubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("w.library_subject_id = $%d", len(args)+1))
		args = append(args, filter.LibrarySubjectID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("w.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"title":      "w.title",
		"created_at": "w.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "w.title"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT w.id, w.title, w.publisher_id, w.library_subject_id, w.isbn, w.published_year, w.note,
        w.active, w.created_at, w.updated_at,
        pub.name AS publisher_name, ls.name AS library_subject_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var works []models.WorkDetail
	if err := sqlx.SelectContext(ctx, r.db, &works, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list works: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count works: %w", err)
	}

	for i := range works {
		authors, err := r.ListAuthorsByWork(ctx, works[i].ID)
		if err != nil {
			return nil, 0, err
		}
		works[i].Authors = authors
	}
	return works, total, nil
}

// FindWorkByID returns a work with publisher, subject and authors.
func (r *CatalogRepository) FindWorkByID(ctx context.Context, id string) (*models.WorkDetail, error) {
	const query = `SELECT w.id, w.title, w.publisher_id, w.library_subject_id, w.isbn, w.published_year, w.note,
        w.active, w.created_at, w.updated_at,
        pub.name AS publisher_name, ls.name AS library_subject_name
        FROM works w
        LEFT JOIN publishers pub ON pub.id = w.publisher_id
        LEFT JOIN library_subjects ls ON ls.id = w.library_subject_id
        WHERE w.id = $1`
	var work models.WorkDetail
	if err := sqlx.GetContext(ctx, r.db, &work, query, id); err != nil {
		return nil, err
	}
	authors, err := r.ListAuthorsByWork(ctx, id)
	if err != nil {
		return nil, err
	}
	work.Authors = authors
	return &work, nil
}

// ExistsWorkByISBN reports whether a work with the ISBN exists, excluding the
// given ID when non-empty. Blank ISBNs never collide.
func (r *CatalogRepository) ExistsWorkByISBN(ctx context.Context, isbn, excludeID string) (bool, error) {
	if isbn == "" {
		return false, nil
	}
	query := `SELECT 1 FROM works WHERE isbn = $1`
	args := []interface{}{isbn}
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
		return false, fmt.Errorf("check isbn: %w", err)
	}
	return true, nil
}

// CreateWork persists a new work.
func (r *CatalogRepository) CreateWork(ctx context.Context, work *models.Work) error {
	if work.ID == "" {
		work.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	work.CreatedAt = now
	work.UpdatedAt = now
	const query = `INSERT INTO works (id, title, publisher_id, library_subject_id, isbn, published_year, note, active, created_at, updated_at)
        VALUES (:id, :title, :publisher_id, :library_subject_id, :isbn, :published_year, :note, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, work); err != nil {
		return fmt.Errorf("create work: %w", err)
	}
	return nil
}

// Update overwrites a work's editable fields.
func (r *CatalogRepository) UpdateWork(ctx context.Context, work *models.Work) error {
	work.UpdatedAt = time.Now().UTC()
	const query = `UPDATE works SET title = :title, publisher_id = :publisher_id, library_subject_id = :library_subject_id,
        isbn = :isbn, published_year = :published_year, note = :note, active = :active, updated_at = :updated_at
        WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.db, query, work)
	if err != nil {
		return fmt.Errorf("update work: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAuthorsByWork returns the authors of a work in link order.
func (r *CatalogRepository) ListAuthorsByWork(ctx context.Context, workID string) ([]models.Author, error) {
	const query = `SELECT a.id, a.name, a.active, a.created_at, a.updated_at
        FROM authors a
        JOIN work_authors wa ON wa.author_id = a.id
        WHERE wa.work_id = $1
        ORDER BY wa.created_at`
	var authors []models.Author
	if err := sqlx.SelectContext(ctx, r.db, &authors, query, workID); err != nil {
		return nil, fmt.Errorf("list work authors: %w", err)
	}
	return authors, nil
}

// SetWorkAuthors replaces the author links of a work.
func (r *CatalogRepository) SetWorkAuthors(ctx context.Context, workID string, authorIDs []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM work_authors WHERE work_id = $1`, workID); err != nil {
		return fmt.Errorf("clear work authors: %w", err)
	}
	const query = `INSERT INTO work_authors (id, work_id, author_id, created_at) VALUES ($1, $2, $3, $4)`
	now := time.Now().UTC()
	for _, authorID := range authorIDs {
		if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), workID, authorID, now); err != nil {
			return fmt.Errorf("link work author: %w", err)
		}
	}
	return nil
}
