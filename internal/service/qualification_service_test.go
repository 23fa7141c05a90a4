package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqnus/sis-api/internal/models"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
)

type qualificationRepoStub struct {
	existing map[string]bool
	created  []*models.Qualification
	deleted  []string
}

func (s *qualificationRepoStub) Exists(ctx context.Context, teacherID, subjectID, schoolYearID string) (bool, error) {
	return s.existing[teacherID+":"+subjectID+":"+schoolYearID], nil
}

func (s *qualificationRepoStub) List(ctx context.Context, filter models.QualificationFilter) ([]models.QualificationDetail, int, error) {
	return []models.QualificationDetail{}, 0, nil
}

func (s *qualificationRepoStub) Create(ctx context.Context, qualification *models.Qualification) error {
	qualification.ID = "qual-1"
	s.created = append(s.created, qualification)
	return nil
}

func (s *qualificationRepoStub) Delete(ctx context.Context, id string) error {
	if id == "missing" {
		return sql.ErrNoRows
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func newQualificationFixture(existing map[string]bool) (*QualificationService, *qualificationRepoStub) {
	repo := &qualificationRepoStub{existing: existing}
	svc := NewQualificationService(repo, teacherReaderStub{}, subjectReaderStub{}, schoolYearReaderStub{}, validator.New(), nil)
	return svc, repo
}

func TestQualificationServiceGrant(t *testing.T) {
	svc, repo := newQualificationFixture(nil)

	qualification, err := svc.Grant(context.Background(), GrantQualificationRequest{
		TeacherID:    "teach-1",
		SubjectID:    "subj-1",
		SchoolYearID: "year-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "qual-1", qualification.ID)
	require.Len(t, repo.created, 1)
}

func TestQualificationServiceGrantDuplicate(t *testing.T) {
	svc, repo := newQualificationFixture(map[string]bool{"teach-1:subj-1:year-1": true})

	_, err := svc.Grant(context.Background(), GrantQualificationRequest{
		TeacherID:    "teach-1",
		SubjectID:    "subj-1",
		SchoolYearID: "year-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestQualificationServiceGrantMissingField(t *testing.T) {
	svc, _ := newQualificationFixture(nil)

	_, err := svc.Grant(context.Background(), GrantQualificationRequest{TeacherID: "teach-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestQualificationServiceRevoke(t *testing.T) {
	svc, repo := newQualificationFixture(nil)

	require.NoError(t, svc.Revoke(context.Background(), "qual-1"))
	assert.Equal(t, []string{"qual-1"}, repo.deleted)
}

func TestQualificationServiceRevokeMissing(t *testing.T) {
	svc, _ := newQualificationFixture(nil)

	err := svc.Revoke(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
