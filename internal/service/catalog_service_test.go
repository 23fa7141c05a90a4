package service

import (
	"context"
	"database/sql"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqnus/sis-api/internal/models"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
)

type catalogRepoStub struct {
	works       map[string]models.WorkDetail
	isbns       map[string]string
	workAuthors map[string][]string
	created     []*models.Work
	seq         int
}

func (s *catalogRepoStub) ListAuthors(ctx context.Context) ([]models.Author, error) {
	return []models.Author{}, nil
}

func (s *catalogRepoStub) CreateAuthor(ctx context.Context, author *models.Author) error {
	author.ID = "author-1"
	return nil
}

func (s *catalogRepoStub) ListPublishers(ctx context.Context) ([]models.Publisher, error) {
	return []models.Publisher{}, nil
}

func (s *catalogRepoStub) CreatePublisher(ctx context.Context, publisher *models.Publisher) error {
	publisher.ID = "pub-1"
	return nil
}

func (s *catalogRepoStub) ListSubjects(ctx context.Context) ([]models.LibrarySubject, error) {
	return []models.LibrarySubject{}, nil
}

func (s *catalogRepoStub) ExistsSubjectByName(ctx context.Context, name string) (bool, error) {
	return false, nil
}

func (s *catalogRepoStub) CreateSubject(ctx context.Context, subject *models.LibrarySubject) error {
	subject.ID = "lsub-1"
	return nil
}

func (s *catalogRepoStub) ListWorks(ctx context.Context, filter models.WorkFilter) ([]models.WorkDetail, int, error) {
	return []models.WorkDetail{}, 0, nil
}

func (s *catalogRepoStub) FindWorkByID(ctx context.Context, id string) (*models.WorkDetail, error) {
	detail, ok := s.works[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &detail, nil
}

func (s *catalogRepoStub) ExistsWorkByISBN(ctx context.Context, isbn, excludeID string) (bool, error) {
	if isbn == "" {
		return false, nil
	}
	id, ok := s.isbns[isbn]
	return ok && id != excludeID, nil
}

func (s *catalogRepoStub) CreateWork(ctx context.Context, work *models.Work) error {
	s.seq++
	work.ID = "work-" + strconv.Itoa(s.seq)
	work.Active = true
	s.created = append(s.created, work)
	if s.works == nil {
		s.works = map[string]models.WorkDetail{}
	}
	s.works[work.ID] = models.WorkDetail{Work: *work}
	if work.ISBN != "" {
		if s.isbns == nil {
			s.isbns = map[string]string{}
		}
		s.isbns[work.ISBN] = work.ID
	}
	return nil
}

func (s *catalogRepoStub) UpdateWork(ctx context.Context, work *models.Work) error {
	s.works[work.ID] = models.WorkDetail{Work: *work}
	return nil
}

func (s *catalogRepoStub) SetWorkAuthors(ctx context.Context, workID string, authorIDs []string) error {
	if s.workAuthors == nil {
		s.workAuthors = map[string][]string{}
	}
	s.workAuthors[workID] = authorIDs
	return nil
}

type copyRepoStub struct {
	copies  map[string]models.Copy
	codes   map[string]string
	created []*models.Copy
}

func (s *copyRepoStub) List(ctx context.Context, filter models.CopyFilter) ([]models.CopyDetail, int, error) {
	return []models.CopyDetail{}, 0, nil
}

func (s *copyRepoStub) FindByID(ctx context.Context, id string) (*models.Copy, error) {
	c, ok := s.copies[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *copyRepoStub) ExistsByInventoryCode(ctx context.Context, code, excludeID string) (bool, error) {
	id, ok := s.codes[code]
	return ok && id != excludeID, nil
}

func (s *copyRepoStub) Create(ctx context.Context, copy *models.Copy) error {
	copy.ID = "copy-new"
	s.created = append(s.created, copy)
	return nil
}

func (s *copyRepoStub) UpdateCondition(ctx context.Context, id string, condition models.CopyCondition) error {
	c := s.copies[id]
	c.Condition = condition
	s.copies[id] = c
	return nil
}

func newCatalogFixture() (*CatalogService, *catalogRepoStub, *copyRepoStub) {
	repo := &catalogRepoStub{works: map[string]models.WorkDetail{}, isbns: map[string]string{}}
	copies := &copyRepoStub{copies: map[string]models.Copy{}, codes: map[string]string{}}
	svc := NewCatalogService(repo, copies, validator.New(), nil)
	return svc, repo, copies
}

func TestCatalogServiceCreateWork(t *testing.T) {
	svc, repo, _ := newCatalogFixture()

	work, err := svc.CreateWork(context.Background(), CreateWorkRequest{
		Title:     "Algebra I",
		ISBN:      "978-0-0000-0001-0",
		AuthorIDs: []string{"author-1", "author-2"},
	})
	require.NoError(t, err)
	assert.True(t, work.Active)
	assert.Equal(t, []string{"author-1", "author-2"}, repo.workAuthors[work.ID])
}

func TestCatalogServiceCreateWorkDuplicateISBN(t *testing.T) {
	svc, repo, _ := newCatalogFixture()
	repo.isbns["978-0-0000-0001-0"] = "work-0"

	_, err := svc.CreateWork(context.Background(), CreateWorkRequest{
		Title: "Algebra I",
		ISBN:  "978-0-0000-0001-0",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestCatalogServiceCreateWorkBlankISBNNeverCollides(t *testing.T) {
	svc, _, _ := newCatalogFixture()

	_, err := svc.CreateWork(context.Background(), CreateWorkRequest{Title: "Reader A"})
	require.NoError(t, err)
	_, err = svc.CreateWork(context.Background(), CreateWorkRequest{Title: "Reader B"})
	require.NoError(t, err)
}

func TestCatalogServiceUpdateWorkKeepsAuthorsWhenNil(t *testing.T) {
	svc, repo, _ := newCatalogFixture()
	repo.works["work-1"] = models.WorkDetail{Work: models.Work{ID: "work-1", Title: "Old", Active: true}}
	repo.workAuthors = map[string][]string{"work-1": {"author-1"}}

	_, err := svc.UpdateWork(context.Background(), "work-1", UpdateWorkRequest{Title: "New"})
	require.NoError(t, err)
	assert.Equal(t, []string{"author-1"}, repo.workAuthors["work-1"])
	assert.Equal(t, "New", repo.works["work-1"].Title)
}

func TestCatalogServiceCreateCopyDefaults(t *testing.T) {
	svc, repo, copies := newCatalogFixture()
	repo.works["work-1"] = models.WorkDetail{Work: models.Work{ID: "work-1", Title: "Algebra I", Active: true}}

	c, err := svc.CreateCopy(context.Background(), CreateCopyRequest{WorkID: "work-1", InventoryCode: "INV-010"})
	require.NoError(t, err)
	assert.Equal(t, models.CopyConditionGood, c.Condition)
	assert.Equal(t, models.CopyAvailable, c.Availability)
	assert.True(t, c.Active)
	require.Len(t, copies.created, 1)
}

func TestCatalogServiceCreateCopyDuplicateCode(t *testing.T) {
	svc, repo, copies := newCatalogFixture()
	repo.works["work-1"] = models.WorkDetail{Work: models.Work{ID: "work-1", Active: true}}
	copies.codes["INV-010"] = "copy-1"

	_, err := svc.CreateCopy(context.Background(), CreateCopyRequest{WorkID: "work-1", InventoryCode: "INV-010"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCatalogServiceUpdateCopyConditionMissing(t *testing.T) {
	svc, _, _ := newCatalogFixture()

	_, err := svc.UpdateCopyCondition(context.Background(), "ghost", UpdateCopyConditionRequest{Condition: models.CopyConditionFair})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
