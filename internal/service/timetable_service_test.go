package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqnus/sis-api/internal/models"
	"github.com/aqnus/sis-api/internal/repository"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
)

type timetableRepoStub struct {
	timetables     map[string]models.Timetable
	items          map[string]models.TimetableItem
	slotConflict   *models.TimetableItemDetail
	teacherBusy    *repository.TeacherSlotConflict
	findActive     *models.Timetable
	findActiveHits int
	created        []*models.TimetableItem
	updated        []*models.TimetableItem
	deleted        []string
	deactivations  []string
	activations    []string
	createItemErr  error
	seq            int
}

func (s *timetableRepoStub) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	if tt, ok := s.timetables[id]; ok {
		return &tt, nil
	}
	return nil, sql.ErrNoRows
}

func (s *timetableRepoStub) FindActive(ctx context.Context, classID, schoolYearID string) (*models.Timetable, error) {
	s.findActiveHits++
	if s.findActive != nil {
		return s.findActive, nil
	}
	return nil, sql.ErrNoRows
}

func (s *timetableRepoStub) ListItems(ctx context.Context, timetableID string) ([]models.TimetableItemDetail, error) {
	return []models.TimetableItemDetail{}, nil
}

func (s *timetableRepoStub) FindItemByID(ctx context.Context, id string) (*models.TimetableItem, error) {
	if item, ok := s.items[id]; ok {
		return &item, nil
	}
	return nil, sql.ErrNoRows
}

func (s *timetableRepoStub) FindItemBySlot(ctx context.Context, timetableID string, weekday models.Weekday, timeSlotID, excludeItemID string) (*models.TimetableItemDetail, error) {
	if s.slotConflict != nil && s.slotConflict.ID != excludeItemID {
		return s.slotConflict, nil
	}
	return nil, sql.ErrNoRows
}

func (s *timetableRepoStub) FindTeacherSlotItem(ctx context.Context, teacherID string, weekday models.Weekday, timeSlotID, schoolYearID, excludeItemID string) (*repository.TeacherSlotConflict, error) {
	if s.teacherBusy != nil && s.teacherBusy.ID != excludeItemID {
		return s.teacherBusy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *timetableRepoStub) CreateItem(ctx context.Context, item *models.TimetableItem) error {
	if s.createItemErr != nil {
		return s.createItemErr
	}
	s.seq++
	item.ID = "item-new"
	s.created = append(s.created, item)
	return nil
}

func (s *timetableRepoStub) UpdateItem(ctx context.Context, item *models.TimetableItem) error {
	s.updated = append(s.updated, item)
	return nil
}

func (s *timetableRepoStub) DeleteItem(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *timetableRepoStub) Create(ctx context.Context, timetable *models.Timetable) error {
	timetable.ID = "tt-new"
	if s.timetables == nil {
		s.timetables = make(map[string]models.Timetable)
	}
	s.timetables[timetable.ID] = *timetable
	return nil
}

func (s *timetableRepoStub) SetActive(ctx context.Context, id string, active bool) error {
	s.activations = append(s.activations, id)
	return nil
}

func (s *timetableRepoStub) DeactivateSiblings(ctx context.Context, classID, schoolYearID, excludeID string) error {
	s.deactivations = append(s.deactivations, classID+":"+schoolYearID)
	return nil
}

type timetableUOWStub struct {
	repo *timetableRepoStub
}

func (s *timetableUOWStub) InTx(ctx context.Context, fn func(timetables timetableTx) error) error {
	return fn(s.repo)
}

type qualificationStub struct {
	qualified map[string]bool
}

func (s qualificationStub) Exists(ctx context.Context, teacherID, subjectID, schoolYearID string) (bool, error) {
	return s.qualified[teacherID+":"+subjectID], nil
}

type teacherReaderStub struct{}

func (teacherReaderStub) FindTeacherByID(ctx context.Context, id string) (*models.TeacherDetail, error) {
	return &models.TeacherDetail{FullName: "T. " + id}, nil
}

type subjectReaderStub struct{}

func (subjectReaderStub) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	return &models.Subject{ID: id, Name: "Subject " + id}, nil
}

type timeSlotReaderStub struct{}

func (timeSlotReaderStub) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	return &models.TimeSlot{ID: id}, nil
}

type cacheStub struct {
	data    map[string][]byte
	sets    int
	deletes int
}

func (s *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := s.data[key]
	if !ok {
		return appErrors.Clone(appErrors.ErrCacheMiss, "")
	}
	return json.Unmarshal(raw, dest)
}

func (s *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if s.data == nil {
		s.data = make(map[string][]byte)
	}
	s.data[key] = raw
	s.sets++
	return nil
}

func (s *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.deletes++
	s.data = nil
	return nil
}

func newTimetableFixture(qualified map[string]bool) (*TimetableService, *timetableRepoStub, *cacheStub) {
	repo := &timetableRepoStub{
		timetables: map[string]models.Timetable{
			"tt-1": {ID: "tt-1", ClassID: "class-a", SchoolYearID: "year-1", Active: true},
		},
		items: map[string]models.TimetableItem{},
	}
	cache := &cacheStub{}
	classes := classReaderStub{classes: map[string]models.Class{
		"class-a": {ID: "class-a", Name: "1A", SchoolYearID: "year-1"},
	}}
	svc := NewTimetableService(repo, &timetableUOWStub{repo: repo}, qualificationStub{qualified: qualified},
		teacherReaderStub{}, subjectReaderStub{}, timeSlotReaderStub{}, classes,
		cache, true, time.Minute, nil, validator.New(), nil)
	return svc, repo, cache
}

func TestTimetableServiceAddLesson(t *testing.T) {
	svc, repo, cache := newTimetableFixture(map[string]bool{"teach-1:subj-1": true})

	item, err := svc.AddLesson(context.Background(), "tt-1", LessonRequest{
		Weekday: models.WeekdayMonday, TimeSlotID: "slot-1", SubjectID: "subj-1", TeacherID: "teach-1",
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "tt-1", item.TimetableID)
	assert.Equal(t, 1, cache.deletes)
}

func TestTimetableServiceAddLessonConcurrentWriterConflict(t *testing.T) {
	svc, repo, _ := newTimetableFixture(map[string]bool{"teach-1:subj-1": true})
	repo.createItemErr = &pq.Error{Code: "23505", Constraint: "timetable_items_one_per_slot"}

	_, err := svc.AddLesson(context.Background(), "tt-1", LessonRequest{
		Weekday: models.WeekdayMonday, TimeSlotID: "slot-1", SubjectID: "subj-1", TeacherID: "teach-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, "already taken")
}

func TestTimetableServiceAddLessonUnqualified(t *testing.T) {
	svc, repo, _ := newTimetableFixture(map[string]bool{})

	_, err := svc.AddLesson(context.Background(), "tt-1", LessonRequest{
		Weekday: models.WeekdayMonday, TimeSlotID: "slot-1", SubjectID: "subj-1", TeacherID: "teach-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, "not qualified")
	assert.Empty(t, repo.created)
}

func TestTimetableServiceAddLessonTeacherConflict(t *testing.T) {
	svc, repo, _ := newTimetableFixture(map[string]bool{"teach-1:subj-1": true})
	repo.teacherBusy = &repository.TeacherSlotConflict{
		TimetableItem: models.TimetableItem{ID: "item-9", TimetableID: "tt-other", Weekday: models.WeekdayMonday, TimeSlotID: "slot-1"},
		ClassName:     "1B",
		SubjectName:   "Subject subj-2",
	}

	_, err := svc.AddLesson(context.Background(), "tt-1", LessonRequest{
		Weekday: models.WeekdayMonday, TimeSlotID: "slot-1", SubjectID: "subj-1", TeacherID: "teach-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	var conflict *models.TimetableConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "TEACHER_CONFLICT", conflict.Type)
	assert.Equal(t, "teacher", conflict.Conflict.Dimension)
	assert.Equal(t, "item-9", conflict.Conflict.ItemID)
}

func TestTimetableServiceAddLessonClassConflict(t *testing.T) {
	svc, _, _ := newTimetableFixture(map[string]bool{"teach-1:subj-1": true})
	repoConflict := &models.TimetableItemDetail{
		TimetableItem: models.TimetableItem{ID: "item-5", TimetableID: "tt-1", Weekday: models.WeekdayMonday, TimeSlotID: "slot-1"},
		SubjectName:   "Subject subj-3",
		TeacherName:   "T. other",
	}
	svc.repo.(*timetableRepoStub).slotConflict = repoConflict

	_, err := svc.AddLesson(context.Background(), "tt-1", LessonRequest{
		Weekday: models.WeekdayMonday, TimeSlotID: "slot-1", SubjectID: "subj-1", TeacherID: "teach-1",
	})
	require.Error(t, err)

	var conflict *models.TimetableConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "CLASS_CONFLICT", conflict.Type)
	assert.Equal(t, "class", conflict.Conflict.Dimension)
}

func TestTimetableServiceAddLessonTeacherConflictWins(t *testing.T) {
	svc, repo, _ := newTimetableFixture(map[string]bool{"teach-1:subj-1": true})
	repo.teacherBusy = &repository.TeacherSlotConflict{
		TimetableItem: models.TimetableItem{ID: "item-9"},
	}
	repo.slotConflict = &models.TimetableItemDetail{
		TimetableItem: models.TimetableItem{ID: "item-5"},
	}

	_, err := svc.AddLesson(context.Background(), "tt-1", LessonRequest{
		Weekday: models.WeekdayMonday, TimeSlotID: "slot-1", SubjectID: "subj-1", TeacherID: "teach-1",
	})
	require.Error(t, err)
	var conflict *models.TimetableConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "TEACHER_CONFLICT", conflict.Type)
}

func TestTimetableServiceAddLessonUnknownWeekday(t *testing.T) {
	svc, _, _ := newTimetableFixture(map[string]bool{"teach-1:subj-1": true})

	_, err := svc.AddLesson(context.Background(), "tt-1", LessonRequest{
		Weekday: "FUNDAY", TimeSlotID: "slot-1", SubjectID: "subj-1", TeacherID: "teach-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceUpdateLessonExcludesSelf(t *testing.T) {
	svc, repo, _ := newTimetableFixture(map[string]bool{"teach-1:subj-1": true})
	repo.items["item-1"] = models.TimetableItem{
		ID: "item-1", TimetableID: "tt-1", Weekday: models.WeekdayMonday,
		TimeSlotID: "slot-1", SubjectID: "subj-1", TeacherID: "teach-1",
	}
	// The only conflicting placement is the item itself, moved one day.
	repo.teacherBusy = &repository.TeacherSlotConflict{
		TimetableItem: models.TimetableItem{ID: "item-1"},
	}
	repo.slotConflict = &models.TimetableItemDetail{
		TimetableItem: models.TimetableItem{ID: "item-1"},
	}

	tuesday := models.WeekdayTuesday
	item, err := svc.UpdateLesson(context.Background(), "item-1", UpdateLessonRequest{Weekday: &tuesday})
	require.NoError(t, err)
	assert.Equal(t, models.WeekdayTuesday, item.Weekday)
	require.Len(t, repo.updated, 1)
}

func TestTimetableServiceUpdateLessonTeacherChangeRechecksQualification(t *testing.T) {
	svc, repo, _ := newTimetableFixture(map[string]bool{"teach-1:subj-1": true})
	repo.items["item-1"] = models.TimetableItem{
		ID: "item-1", TimetableID: "tt-1", Weekday: models.WeekdayMonday,
		TimeSlotID: "slot-1", SubjectID: "subj-1", TeacherID: "teach-1",
	}

	other := "teach-2"
	_, err := svc.UpdateLesson(context.Background(), "item-1", UpdateLessonRequest{TeacherID: &other})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.updated)
}

func TestTimetableServiceCreateActiveDeactivatesSiblings(t *testing.T) {
	svc, repo, _ := newTimetableFixture(nil)

	tt, err := svc.CreateTimetable(context.Background(), CreateTimetableRequest{
		ClassID: "class-a", SchoolYearID: "year-1", Active: true,
	})
	require.NoError(t, err)
	assert.True(t, tt.Active)
	assert.Equal(t, []string{"class-a:year-1"}, repo.deactivations)
}

func TestTimetableServiceActivateAlreadyActive(t *testing.T) {
	svc, repo, _ := newTimetableFixture(nil)

	tt, err := svc.ActivateTimetable(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.True(t, tt.Active)
	assert.Empty(t, repo.activations)
}

func TestTimetableServiceGetActiveCaches(t *testing.T) {
	svc, repo, cache := newTimetableFixture(nil)
	repo.findActive = &models.Timetable{ID: "tt-1", ClassID: "class-a", SchoolYearID: "year-1", Active: true}

	first, err := svc.GetActiveTimetable(context.Background(), "class-a", "year-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.findActiveHits)
	assert.Equal(t, 1, cache.sets)

	second, err := svc.GetActiveTimetable(context.Background(), "class-a", "year-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.findActiveHits, "second read must come from cache")
	assert.Equal(t, first.ID, second.ID)
}

func TestTimetableServiceRemoveLessonInvalidatesCache(t *testing.T) {
	svc, repo, cache := newTimetableFixture(nil)
	repo.items["item-1"] = models.TimetableItem{ID: "item-1", TimetableID: "tt-1"}

	require.NoError(t, svc.RemoveLesson(context.Background(), "item-1"))
	assert.Equal(t, []string{"item-1"}, repo.deleted)
	assert.Equal(t, 1, cache.deletes)
}
