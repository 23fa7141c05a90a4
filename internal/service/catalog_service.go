package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aqnus/sis-api/internal/models"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
)

type catalogRepository interface {
	ListAuthors(ctx context.Context) ([]models.Author, error)
	CreateAuthor(ctx context.Context, author *models.Author) error
	ListPublishers(ctx context.Context) ([]models.Publisher, error)
	CreatePublisher(ctx context.Context, publisher *models.Publisher) error
	ListSubjects(ctx context.Context) ([]models.LibrarySubject, error)
	ExistsSubjectByName(ctx context.Context, name string) (bool, error)
	CreateSubject(ctx context.Context, subject *models.LibrarySubject) error
	ListWorks(ctx context.Context, filter models.WorkFilter) ([]models.WorkDetail, int, error)
	FindWorkByID(ctx context.Context, id string) (*models.WorkDetail, error)
	ExistsWorkByISBN(ctx context.Context, isbn, excludeID string) (bool, error)
	CreateWork(ctx context.Context, work *models.Work) error
	UpdateWork(ctx context.Context, work *models.Work) error
	SetWorkAuthors(ctx context.Context, workID string, authorIDs []string) error
}

type copyRepository interface {
	List(ctx context.Context, filter models.CopyFilter) ([]models.CopyDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Copy, error)
	ExistsByInventoryCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, copy *models.Copy) error
	UpdateCondition(ctx context.Context, id string, condition models.CopyCondition) error
}

// CreateAuthorRequest describes the author creation payload.
type CreateAuthorRequest struct {
	Name string `json:"name" validate:"required"`
}

// CreatePublisherRequest describes the publisher creation payload.
type CreatePublisherRequest struct {
	Name string `json:"name" validate:"required"`
}

// CreateLibrarySubjectRequest describes the library subject creation payload.
type CreateLibrarySubjectRequest struct {
	Name string `json:"name" validate:"required"`
}

// CreateWorkRequest describes the work creation payload.
type CreateWorkRequest struct {
	Title            string   `json:"title" validate:"required"`
	PublisherID      *string  `json:"publisher_id,omitempty"`
	LibrarySubjectID *string  `json:"library_subject_id,omitempty"`
	ISBN             string   `json:"isbn"`
	PublishedYear    *int     `json:"published_year,omitempty"`
	Note             string   `json:"note"`
	AuthorIDs        []string `json:"author_ids"`
}

// UpdateWorkRequest updates mutable fields on a work. A nil AuthorIDs keeps
// the current author set.
type UpdateWorkRequest struct {
	Title            string   `json:"title" validate:"required"`
	PublisherID      *string  `json:"publisher_id,omitempty"`
	LibrarySubjectID *string  `json:"library_subject_id,omitempty"`
	ISBN             string   `json:"isbn"`
	PublishedYear    *int     `json:"published_year,omitempty"`
	Note             string   `json:"note"`
	Active           *bool    `json:"active"`
	AuthorIDs        []string `json:"author_ids,omitempty"`
}

// CreateCopyRequest describes the copy creation payload.
type CreateCopyRequest struct {
	WorkID        string               `json:"work_id" validate:"required"`
	InventoryCode string               `json:"inventory_code" validate:"required"`
	Condition     models.CopyCondition `json:"condition" validate:"omitempty,oneof=GOOD FAIR POOR DAMAGED"`
}

// UpdateCopyConditionRequest records a new physical condition.
type UpdateCopyConditionRequest struct {
	Condition models.CopyCondition `json:"condition" validate:"required,oneof=GOOD FAIR POOR DAMAGED"`
}

// CatalogService manages the bibliographic catalog and the copy inventory.
// Circulation state lives in LibraryService; this service never touches
// availability except for the initial value of a new copy.
type CatalogService struct {
	repo      catalogRepository
	copies    copyRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(repo catalogRepository, copies copyRepository, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, copies: copies, validator: validate, logger: logger}
}

// ListAuthors returns all authors.
func (s *CatalogService) ListAuthors(ctx context.Context) ([]models.Author, error) {
	authors, err := s.repo.ListAuthors(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list authors")
	}
	return authors, nil
}

// CreateAuthor adds a new author.
func (s *CatalogService) CreateAuthor(ctx context.Context, req CreateAuthorRequest) (*models.Author, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid author payload")
	}
	author := &models.Author{Name: req.Name, Active: true}
	if err := s.repo.CreateAuthor(ctx, author); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create author")
	}
	return author, nil
}

// ListPublishers returns all publishers.
func (s *CatalogService) ListPublishers(ctx context.Context) ([]models.Publisher, error) {
	publishers, err := s.repo.ListPublishers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list publishers")
	}
	return publishers, nil
}

// CreatePublisher adds a new publisher.
func (s *CatalogService) CreatePublisher(ctx context.Context, req CreatePublisherRequest) (*models.Publisher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid publisher payload")
	}
	publisher := &models.Publisher{Name: req.Name, Active: true}
	if err := s.repo.CreatePublisher(ctx, publisher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create publisher")
	}
	return publisher, nil
}

// ListLibrarySubjects returns all library subjects.
func (s *CatalogService) ListLibrarySubjects(ctx context.Context) ([]models.LibrarySubject, error) {
	subjects, err := s.repo.ListSubjects(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list library subjects")
	}
	return subjects, nil
}

// CreateLibrarySubject adds a new library subject with a unique name.
func (s *CatalogService) CreateLibrarySubject(ctx context.Context, req CreateLibrarySubjectRequest) (*models.LibrarySubject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid library subject payload")
	}
	exists, err := s.repo.ExistsSubjectByName(ctx, req.Name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check library subject name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "library subject with this name already exists")
	}
	subject := &models.LibrarySubject{Name: req.Name, Active: true}
	if err := s.repo.CreateSubject(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create library subject")
	}
	return subject, nil
}

// ListWorks returns works with pagination metadata.
func (s *CatalogService) ListWorks(ctx context.Context, filter models.WorkFilter) ([]models.WorkDetail, *models.Pagination, error) {
	works, total, err := s.repo.ListWorks(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list works")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return works, pagination, nil
}

// GetWork returns a work with its authors.
func (s *CatalogService) GetWork(ctx context.Context, id string) (*models.WorkDetail, error) {
	work, err := s.repo.FindWorkByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "work not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load work")
	}
	return work, nil
}

// CreateWork adds a new work. ISBN is unique when present; blank ISBNs never
// collide.
func (s *CatalogService) CreateWork(ctx context.Context, req CreateWorkRequest) (*models.WorkDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid work payload")
	}
	exists, err := s.repo.ExistsWorkByISBN(ctx, req.ISBN, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check isbn")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "work with this isbn already exists")
	}

	work := &models.Work{
		Title:            req.Title,
		PublisherID:      req.PublisherID,
		LibrarySubjectID: req.LibrarySubjectID,
		ISBN:             req.ISBN,
		PublishedYear:    req.PublishedYear,
		Note:             req.Note,
		Active:           true,
	}
	if err := s.repo.CreateWork(ctx, work); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create work")
	}
	if len(req.AuthorIDs) > 0 {
		if err := s.repo.SetWorkAuthors(ctx, work.ID, req.AuthorIDs); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set work authors")
		}
	}
	return s.GetWork(ctx, work.ID)
}

// UpdateWork modifies a work and optionally replaces its author set.
func (s *CatalogService) UpdateWork(ctx context.Context, id string, req UpdateWorkRequest) (*models.WorkDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid work payload")
	}
	detail, err := s.repo.FindWorkByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "work not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load work")
	}

	exists, err := s.repo.ExistsWorkByISBN(ctx, req.ISBN, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check isbn")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "work with this isbn already exists")
	}

	work := detail.Work
	work.Title = req.Title
	work.PublisherID = req.PublisherID
	work.LibrarySubjectID = req.LibrarySubjectID
	work.ISBN = req.ISBN
	work.PublishedYear = req.PublishedYear
	work.Note = req.Note
	if req.Active != nil {
		work.Active = *req.Active
	}
	if err := s.repo.UpdateWork(ctx, &work); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update work")
	}
	if req.AuthorIDs != nil {
		if err := s.repo.SetWorkAuthors(ctx, id, req.AuthorIDs); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set work authors")
		}
	}
	return s.GetWork(ctx, id)
}

// ListCopies returns copies with pagination metadata.
func (s *CatalogService) ListCopies(ctx context.Context, filter models.CopyFilter) ([]models.CopyDetail, *models.Pagination, error) {
	copies, total, err := s.copies.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list copies")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return copies, pagination, nil
}

// CreateCopy registers a physical copy of a work with a unique inventory
// code. New copies start available.
func (s *CatalogService) CreateCopy(ctx context.Context, req CreateCopyRequest) (*models.Copy, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid copy payload")
	}
	if _, err := s.repo.FindWorkByID(ctx, req.WorkID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "work not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load work")
	}
	exists, err := s.copies.ExistsByInventoryCode(ctx, req.InventoryCode, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check inventory code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "copy with this inventory code already exists")
	}

	condition := req.Condition
	if condition == "" {
		condition = models.CopyConditionGood
	}
	c := &models.Copy{
		WorkID:        req.WorkID,
		InventoryCode: req.InventoryCode,
		Condition:     condition,
		Availability:  models.CopyAvailable,
		Active:        true,
	}
	if err := s.copies.Create(ctx, c); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create copy")
	}
	return c, nil
}

// UpdateCopyCondition records a new physical condition for a copy.
func (s *CatalogService) UpdateCopyCondition(ctx context.Context, id string, req UpdateCopyConditionRequest) (*models.Copy, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid copy payload")
	}
	c, err := s.copies.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "copy not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load copy")
	}
	if err := s.copies.UpdateCondition(ctx, id, req.Condition); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update copy condition")
	}
	c.Condition = req.Condition
	return c, nil
}
