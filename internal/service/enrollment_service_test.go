package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqnus/sis-api/internal/models"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
)

type enrollmentRepoStub struct {
	byID     map[string]models.Enrollment
	details  map[string]models.EnrollmentDetail
	active   *models.EnrollmentDetail
	listErr  error
	statuses map[string]models.EnrollmentStatus
	created  []*models.Enrollment
	seq      int
}

func (s *enrollmentRepoStub) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	return nil, 0, nil
}

func (s *enrollmentRepoStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := s.byID[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentRepoStub) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if d, ok := s.details[id]; ok {
		return &d, nil
	}
	return &models.EnrollmentDetail{Enrollment: models.Enrollment{ID: id}}, nil
}

func (s *enrollmentRepoStub) FindActiveByStudentAndYear(ctx context.Context, studentID, schoolYearID string) (*models.EnrollmentDetail, error) {
	if s.active != nil {
		return s.active, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentRepoStub) Create(ctx context.Context, enrollment *models.Enrollment) error {
	s.seq++
	enrollment.ID = fmt.Sprintf("enr-%d", s.seq)
	s.created = append(s.created, enrollment)
	return nil
}

func (s *enrollmentRepoStub) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if s.statuses == nil {
		s.statuses = make(map[string]models.EnrollmentStatus)
	}
	s.statuses[id] = status
	return nil
}

type studentClassStub struct {
	upserts     []string
	deactivated []string
}

func (s *studentClassStub) Upsert(ctx context.Context, studentID, classID string, enrolledAt time.Time) error {
	s.upserts = append(s.upserts, studentID+":"+classID)
	return nil
}

func (s *studentClassStub) Deactivate(ctx context.Context, studentID, classID string) error {
	s.deactivated = append(s.deactivated, studentID+":"+classID)
	return nil
}

type movementStub struct {
	entries []models.StudentMovement
}

func (s *movementStub) Create(ctx context.Context, movement *models.StudentMovement) error {
	s.entries = append(s.entries, *movement)
	return nil
}

func (s *movementStub) ListByStudent(ctx context.Context, studentID string) ([]models.StudentMovement, error) {
	result := []models.StudentMovement{}
	for _, m := range s.entries {
		if m.StudentID == studentID {
			result = append(result, m)
		}
	}
	return result, nil
}

// enrollmentUOWStub runs fn against the in-memory stores with no transaction.
type enrollmentUOWStub struct {
	repo      *enrollmentRepoStub
	links     *studentClassStub
	movements *movementStub
	txErr     error
}

func (s *enrollmentUOWStub) InTx(ctx context.Context, fn func(enrollments enrollmentTx, links studentClassTx, movements movementTx) error) error {
	if s.txErr != nil {
		return s.txErr
	}
	return fn(s.repo, s.links, s.movements)
}

type studentReaderStub struct {
	known map[string]bool
}

func (s studentReaderStub) FindStudentByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s.known == nil || s.known[id] {
		return &models.StudentDetail{}, nil
	}
	return nil, sql.ErrNoRows
}

type classReaderStub struct {
	classes map[string]models.Class
}

func (s classReaderStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := s.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

type schoolYearReaderStub struct{}

func (schoolYearReaderStub) FindByID(ctx context.Context, id string) (*models.SchoolYear, error) {
	return &models.SchoolYear{ID: id}, nil
}

func newEnrollmentFixture() (*EnrollmentService, *enrollmentRepoStub, *studentClassStub, *movementStub) {
	repo := &enrollmentRepoStub{byID: map[string]models.Enrollment{}, details: map[string]models.EnrollmentDetail{}}
	links := &studentClassStub{}
	movements := &movementStub{}
	uow := &enrollmentUOWStub{repo: repo, links: links, movements: movements}
	classes := classReaderStub{classes: map[string]models.Class{
		"class-a": {ID: "class-a", Name: "1A", SchoolYearID: "year-1"},
		"class-b": {ID: "class-b", Name: "1B", SchoolYearID: "year-1"},
		"class-x": {ID: "class-x", Name: "2A", SchoolYearID: "year-2"},
	}}
	svc := NewEnrollmentService(repo, uow, movements, studentReaderStub{}, classes, schoolYearReaderStub{}, validator.New(), nil)
	return svc, repo, links, movements
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	svc, repo, links, movements := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID:    "stu-1",
		ClassID:      "class-a",
		SchoolYearID: "year-1",
		Note:         "late arrival",
	})
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, models.EnrollmentStatusActive, repo.created[0].Status)
	assert.Equal(t, models.EnrollmentTypeInitial, repo.created[0].Type)
	assert.Equal(t, []string{"stu-1:class-a"}, links.upserts)
	require.Len(t, movements.entries, 1)
	assert.Equal(t, models.MovementInitialEnrollment, movements.entries[0].Event)
	assert.Contains(t, movements.entries[0].Description, "1A")
	assert.Contains(t, movements.entries[0].Description, "late arrival")
}

func TestEnrollmentServiceEnrollConcurrentWriterConflict(t *testing.T) {
	repo := &enrollmentRepoStub{byID: map[string]models.Enrollment{}, details: map[string]models.EnrollmentDetail{}}
	uow := &enrollmentUOWStub{repo: repo, links: &studentClassStub{}, movements: &movementStub{},
		txErr: &pq.Error{Code: "23505", Constraint: "enrollments_one_active_per_student_year"}}
	classes := classReaderStub{classes: map[string]models.Class{
		"class-a": {ID: "class-a", Name: "1A", SchoolYearID: "year-1"},
	}}
	svc := NewEnrollmentService(repo, uow, &movementStub{}, studentReaderStub{}, classes, schoolYearReaderStub{}, validator.New(), nil)

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID:    "stu-1",
		ClassID:      "class-a",
		SchoolYearID: "year-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollRejectsSecondActive(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.active = &models.EnrollmentDetail{
		Enrollment: models.Enrollment{ID: "enr-0", ClassID: "class-b", Status: models.EnrollmentStatusActive},
		ClassName:  "1B",
	}

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID:    "stu-1",
		ClassID:      "class-a",
		SchoolYearID: "year-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, "1B")
	assert.Empty(t, repo.created)
}

func TestEnrollmentServiceEnrollClassYearMismatch(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID:    "stu-1",
		ClassID:      "class-x",
		SchoolYearID: "year-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidArgument.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceClose(t *testing.T) {
	svc, repo, links, movements := newEnrollmentFixture()
	repo.byID["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", ClassID: "class-a", SchoolYearID: "year-1",
		Status: models.EnrollmentStatusActive,
	}

	_, err := svc.Close(context.Background(), "enr-1", CloseEnrollmentRequest{Reason: "moved away"})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusClosed, repo.statuses["enr-1"])
	assert.Equal(t, []string{"stu-1:class-a"}, links.deactivated)
	require.Len(t, movements.entries, 1)
	assert.Equal(t, models.MovementClosure, movements.entries[0].Event)
	assert.Contains(t, movements.entries[0].Description, "moved away")
}

func TestEnrollmentServiceCloseRequiresActive(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.byID["enr-1"] = models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusClosed}

	_, err := svc.Close(context.Background(), "enr-1", CloseEnrollmentRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCancel(t *testing.T) {
	svc, repo, _, movements := newEnrollmentFixture()
	repo.byID["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", ClassID: "class-a",
		Status: models.EnrollmentStatusActive,
	}

	_, err := svc.Cancel(context.Background(), "enr-1", CloseEnrollmentRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, repo.statuses["enr-1"])
	require.Len(t, movements.entries, 1)
	assert.Equal(t, models.MovementCancellation, movements.entries[0].Event)
}

func TestEnrollmentServiceTransfer(t *testing.T) {
	svc, repo, links, movements := newEnrollmentFixture()
	repo.byID["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", ClassID: "class-a", SchoolYearID: "year-1",
		Status: models.EnrollmentStatusActive,
	}

	_, err := svc.Transfer(context.Background(), "enr-1", TransferEnrollmentRequest{NewClassID: "class-b", Note: "guardian request"})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusClosed, repo.statuses["enr-1"])
	require.Len(t, repo.created, 1)
	next := repo.created[0]
	assert.Equal(t, "class-b", next.ClassID)
	assert.Equal(t, "year-1", next.SchoolYearID)
	assert.Equal(t, models.EnrollmentTypeTransfer, next.Type)
	assert.Equal(t, models.EnrollmentStatusActive, next.Status)

	assert.Equal(t, []string{"stu-1:class-a"}, links.deactivated)
	assert.Equal(t, []string{"stu-1:class-b"}, links.upserts)

	require.Len(t, movements.entries, 2)
	assert.Equal(t, models.MovementTransferOut, movements.entries[0].Event)
	assert.Equal(t, "enr-1", *movements.entries[0].EnrollmentID)
	assert.Contains(t, movements.entries[0].Description, "guardian request")
	assert.Equal(t, models.MovementTransferIn, movements.entries[1].Event)
	assert.Equal(t, next.ID, *movements.entries[1].EnrollmentID)
	assert.Contains(t, movements.entries[1].Description, "guardian request")
}

func TestEnrollmentServiceTransferSameClass(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.byID["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", ClassID: "class-a", SchoolYearID: "year-1",
		Status: models.EnrollmentStatusActive,
	}

	_, err := svc.Transfer(context.Background(), "enr-1", TransferEnrollmentRequest{NewClassID: "class-a"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidArgument.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceTransferAcrossYears(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.byID["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", ClassID: "class-a", SchoolYearID: "year-1",
		Status: models.EnrollmentStatusActive,
	}

	_, err := svc.Transfer(context.Background(), "enr-1", TransferEnrollmentRequest{NewClassID: "class-x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidArgument.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceMovementsUnknownStudent(t *testing.T) {
	repo := &enrollmentRepoStub{}
	uow := &enrollmentUOWStub{repo: repo, links: &studentClassStub{}, movements: &movementStub{}}
	svc := NewEnrollmentService(repo, uow, &movementStub{}, studentReaderStub{known: map[string]bool{}}, classReaderStub{}, schoolYearReaderStub{}, validator.New(), nil)

	_, err := svc.Movements(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
