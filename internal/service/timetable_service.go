package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aqnus/sis-api/internal/models"
	"github.com/aqnus/sis-api/internal/repository"
	"github.com/aqnus/sis-api/pkg/database"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
)

type timetableRepository interface {
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	FindActive(ctx context.Context, classID, schoolYearID string) (*models.Timetable, error)
	ListItems(ctx context.Context, timetableID string) ([]models.TimetableItemDetail, error)
	FindItemByID(ctx context.Context, id string) (*models.TimetableItem, error)
	FindItemBySlot(ctx context.Context, timetableID string, weekday models.Weekday, timeSlotID, excludeItemID string) (*models.TimetableItemDetail, error)
	FindTeacherSlotItem(ctx context.Context, teacherID string, weekday models.Weekday, timeSlotID, schoolYearID, excludeItemID string) (*repository.TeacherSlotConflict, error)
	CreateItem(ctx context.Context, item *models.TimetableItem) error
	UpdateItem(ctx context.Context, item *models.TimetableItem) error
	DeleteItem(ctx context.Context, id string) error
}

type timetableTx interface {
	Create(ctx context.Context, timetable *models.Timetable) error
	SetActive(ctx context.Context, id string, active bool) error
	DeactivateSiblings(ctx context.Context, classID, schoolYearID, excludeID string) error
}

// timetableUnitOfWork opens one database transaction around timetable
// activation writes.
type timetableUnitOfWork interface {
	InTx(ctx context.Context, fn func(timetables timetableTx) error) error
}

type qualificationChecker interface {
	Exists(ctx context.Context, teacherID, subjectID, schoolYearID string) (bool, error)
}

type teacherReader interface {
	FindTeacherByID(ctx context.Context, id string) (*models.TeacherDetail, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type timeSlotReader interface {
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
}

type timetableCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheMetrics interface {
	RecordCacheLookup(hit bool)
}

// TimetableUnitOfWork is the production timetableUnitOfWork backed by a real
// database transaction.
type TimetableUnitOfWork struct {
	db         *sqlx.DB
	timetables *repository.TimetableRepository
}

// NewTimetableUnitOfWork constructs the unit of work.
func NewTimetableUnitOfWork(db *sqlx.DB, timetables *repository.TimetableRepository) *TimetableUnitOfWork {
	return &TimetableUnitOfWork{db: db, timetables: timetables}
}

// InTx runs fn inside one transaction with a transaction-bound store.
func (u *TimetableUnitOfWork) InTx(ctx context.Context, fn func(timetables timetableTx) error) error {
	return database.Transact(ctx, u.db, func(tx *sqlx.Tx) error {
		return fn(u.timetables.WithTx(tx))
	})
}

// CreateTimetableRequest describes the timetable creation payload.
type CreateTimetableRequest struct {
	ClassID      string `json:"class_id" validate:"required"`
	SchoolYearID string `json:"school_year_id" validate:"required"`
	Active       bool   `json:"active"`
	Note         string `json:"note"`
}

// LessonRequest describes a lesson placement payload, used for both adding
// and updating lessons.
type LessonRequest struct {
	Weekday    models.Weekday `json:"weekday" validate:"required"`
	TimeSlotID string         `json:"time_slot_id" validate:"required"`
	SubjectID  string         `json:"subject_id" validate:"required"`
	TeacherID  string         `json:"teacher_id" validate:"required"`
}

// UpdateLessonRequest carries partial placement changes; nil fields keep the
// current value.
type UpdateLessonRequest struct {
	Weekday    *models.Weekday `json:"weekday,omitempty"`
	TimeSlotID *string         `json:"time_slot_id,omitempty"`
	SubjectID  *string         `json:"subject_id,omitempty"`
	TeacherID  *string         `json:"teacher_id,omitempty"`
}

// TimetableService manages weekly lesson grids. Placements are guarded by
// three independent checks, in order: the teacher must hold a qualification
// for the subject in the school year, the teacher must be free at the
// weekday/slot across all active timetables of the year, and the slot must
// be free within the timetable itself.
type TimetableService struct {
	repo           timetableRepository
	uow            timetableUnitOfWork
	qualifications qualificationChecker
	teachers       teacherReader
	subjects       subjectReader
	slots          timeSlotReader
	classes        classReader
	cache          timetableCache
	cacheEnabled   bool
	cacheTTL       time.Duration
	metrics        cacheMetrics
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewTimetableService constructs TimetableService. Cache may be nil, in
// which case reads always hit the database.
func NewTimetableService(repo timetableRepository, uow timetableUnitOfWork, qualifications qualificationChecker, teachers teacherReader, subjects subjectReader, slots timeSlotReader, classes classReader, cache timetableCache, cacheEnabled bool, cacheTTL time.Duration, metrics cacheMetrics, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &TimetableService{
		repo:           repo,
		uow:            uow,
		qualifications: qualifications,
		teachers:       teachers,
		subjects:       subjects,
		slots:          slots,
		classes:        classes,
		cache:          cache,
		cacheEnabled:   cacheEnabled && cache != nil,
		cacheTTL:       cacheTTL,
		metrics:        metrics,
		validator:      validate,
		logger:         logger,
	}
}

func activeTimetableCacheKey(classID, schoolYearID string) string {
	return fmt.Sprintf("timetable:active:%s:%s", classID, schoolYearID)
}

func (s *TimetableService) invalidateCache(ctx context.Context, classID, schoolYearID string) {
	if !s.cacheEnabled {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, activeTimetableCacheKey(classID, schoolYearID)); err != nil {
		s.logger.Warn("failed to invalidate timetable cache",
			zap.String("class_id", classID),
			zap.Error(err))
	}
}

// ValidateQualification fails unless the teacher holds a qualification for
// the subject within the school year.
func (s *TimetableService) ValidateQualification(ctx context.Context, teacherID, subjectID, schoolYearID string) error {
	qualified, err := s.qualifications.Exists(ctx, teacherID, subjectID, schoolYearID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check qualification")
	}
	if qualified {
		return nil
	}
	teacherName := teacherID
	if teacher, err := s.teachers.FindTeacherByID(ctx, teacherID); err == nil {
		teacherName = teacher.FullName
	}
	subjectName := subjectID
	if subject, err := s.subjects.FindByID(ctx, subjectID); err == nil {
		subjectName = subject.Name
	}
	return appErrors.Clone(appErrors.ErrValidation,
		fmt.Sprintf("teacher %s is not qualified to teach %s in this school year", teacherName, subjectName))
}

// ValidateTeacherConflict fails if the teacher is already placed at the
// weekday/slot in any active timetable of the school year. excludeItemID
// exempts the item being edited from colliding with itself.
func (s *TimetableService) ValidateTeacherConflict(ctx context.Context, teacherID string, weekday models.Weekday, timeSlotID, schoolYearID, excludeItemID string) error {
	existing, err := s.repo.FindTeacherSlotItem(ctx, teacherID, weekday, timeSlotID, schoolYearID, excludeItemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher availability")
	}
	conflict := &models.TimetableConflictError{
		Type: "TEACHER_CONFLICT",
		Message: fmt.Sprintf("teacher already teaches %s to class %s at this weekday and slot",
			existing.SubjectName, existing.ClassName),
		Conflict: models.TimetableConflict{
			ItemID:      existing.ID,
			TimetableID: existing.TimetableID,
			ClassName:   existing.ClassName,
			SubjectName: existing.SubjectName,
			Weekday:     existing.Weekday,
			TimeSlotID:  existing.TimeSlotID,
			Dimension:   "teacher",
		},
	}
	return appErrors.Wrap(conflict, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, conflict.Message)
}

// ValidateClassConflict fails if the weekday/slot is already occupied within
// the timetable. excludeItemID exempts the item being edited.
func (s *TimetableService) ValidateClassConflict(ctx context.Context, timetableID string, weekday models.Weekday, timeSlotID, excludeItemID string) error {
	existing, err := s.repo.FindItemBySlot(ctx, timetableID, weekday, timeSlotID, excludeItemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot availability")
	}
	conflict := &models.TimetableConflictError{
		Type: "CLASS_CONFLICT",
		Message: fmt.Sprintf("slot already holds %s with %s",
			existing.SubjectName, existing.TeacherName),
		Conflict: models.TimetableConflict{
			ItemID:      existing.ID,
			TimetableID: existing.TimetableID,
			SubjectName: existing.SubjectName,
			TeacherName: existing.TeacherName,
			Weekday:     existing.Weekday,
			TimeSlotID:  existing.TimeSlotID,
			Dimension:   "class",
		},
	}
	return appErrors.Wrap(conflict, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, conflict.Message)
}

// CreateTimetable creates a lesson grid for a class in a school year. When
// the new grid is created active, sibling active grids are deactivated in
// the same transaction so at most one stays active.
func (s *TimetableService) CreateTimetable(ctx context.Context, req CreateTimetableRequest) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.SchoolYearID != req.SchoolYearID {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "class does not belong to the given school year")
	}

	timetable := &models.Timetable{
		ClassID:      req.ClassID,
		SchoolYearID: req.SchoolYearID,
		Active:       req.Active,
		Note:         req.Note,
	}
	err = s.uow.InTx(ctx, func(timetables timetableTx) error {
		if req.Active {
			if err := timetables.DeactivateSiblings(ctx, req.ClassID, req.SchoolYearID, ""); err != nil {
				return err
			}
		}
		return timetables.Create(ctx, timetable)
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
				"class already has an active timetable for this school year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
	}
	s.invalidateCache(ctx, req.ClassID, req.SchoolYearID)
	return timetable, nil
}

// ActivateTimetable makes a timetable the active grid of its class and year,
// deactivating any sibling. Activating an already active timetable is a
// no-op.
func (s *TimetableService) ActivateTimetable(ctx context.Context, id string) (*models.Timetable, error) {
	timetable, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if timetable.Active {
		return timetable, nil
	}
	err = s.uow.InTx(ctx, func(timetables timetableTx) error {
		if err := timetables.DeactivateSiblings(ctx, timetable.ClassID, timetable.SchoolYearID, id); err != nil {
			return err
		}
		return timetables.SetActive(ctx, id, true)
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
				"class already has an active timetable for this school year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate timetable")
	}
	timetable.Active = true
	s.invalidateCache(ctx, timetable.ClassID, timetable.SchoolYearID)
	return timetable, nil
}

// GetActiveTimetable returns the active grid of a class in a school year
// with its items, read through the cache when enabled.
func (s *TimetableService) GetActiveTimetable(ctx context.Context, classID, schoolYearID string) (*models.TimetableDetail, error) {
	key := activeTimetableCacheKey(classID, schoolYearID)
	if s.cacheEnabled {
		var cached models.TimetableDetail
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheLookup(true)
			}
			return &cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("timetable cache read failed", zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheLookup(false)
		}
	}

	timetable, err := s.repo.FindActive(ctx, classID, schoolYearID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active timetable for class and school year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	items, err := s.repo.ListItems(ctx, timetable.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable items")
	}
	detail := &models.TimetableDetail{Timetable: *timetable, Items: items}

	if s.cacheEnabled {
		if err := s.cache.Set(ctx, key, detail, s.cacheTTL); err != nil {
			s.logger.Warn("timetable cache write failed", zap.Error(err))
		}
	}
	return detail, nil
}

// GetTimetable returns a timetable with its items regardless of activation.
func (s *TimetableService) GetTimetable(ctx context.Context, id string) (*models.TimetableDetail, error) {
	timetable, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	items, err := s.repo.ListItems(ctx, timetable.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable items")
	}
	return &models.TimetableDetail{Timetable: *timetable, Items: items}, nil
}

// AddLesson places a lesson on a timetable after running the qualification,
// teacher and class checks in that order, failing on the first violation.
func (s *TimetableService) AddLesson(ctx context.Context, timetableID string, req LessonRequest) (*models.TimetableItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	if !models.ValidWeekday(req.Weekday) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown weekday %q", req.Weekday))
	}
	timetable, err := s.repo.FindByID(ctx, timetableID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if _, err := s.slots.FindByID(ctx, req.TimeSlotID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
	}

	if err := s.ValidateQualification(ctx, req.TeacherID, req.SubjectID, timetable.SchoolYearID); err != nil {
		return nil, err
	}
	if err := s.ValidateTeacherConflict(ctx, req.TeacherID, req.Weekday, req.TimeSlotID, timetable.SchoolYearID, ""); err != nil {
		return nil, err
	}
	if err := s.ValidateClassConflict(ctx, timetableID, req.Weekday, req.TimeSlotID, ""); err != nil {
		return nil, err
	}

	item := &models.TimetableItem{
		TimetableID: timetableID,
		Weekday:     req.Weekday,
		TimeSlotID:  req.TimeSlotID,
		SubjectID:   req.SubjectID,
		TeacherID:   req.TeacherID,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
				"slot is already taken in this timetable")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	s.invalidateCache(ctx, timetable.ClassID, timetable.SchoolYearID)
	return item, nil
}

// UpdateLesson changes a placement. Checks run against the effective values
// (request value when provided, current value otherwise) and only the rules
// touched by a change are re-checked, always excluding the item itself.
func (s *TimetableService) UpdateLesson(ctx context.Context, itemID string, req UpdateLessonRequest) (*models.TimetableItem, error) {
	item, err := s.repo.FindItemByID(ctx, itemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	timetable, err := s.repo.FindByID(ctx, item.TimetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}

	weekday := item.Weekday
	if req.Weekday != nil {
		if !models.ValidWeekday(*req.Weekday) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown weekday %q", *req.Weekday))
		}
		weekday = *req.Weekday
	}
	timeSlotID := item.TimeSlotID
	if req.TimeSlotID != nil {
		if _, err := s.slots.FindByID(ctx, *req.TimeSlotID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
		}
		timeSlotID = *req.TimeSlotID
	}
	subjectID := item.SubjectID
	if req.SubjectID != nil {
		subjectID = *req.SubjectID
	}
	teacherID := item.TeacherID
	if req.TeacherID != nil {
		teacherID = *req.TeacherID
	}

	slotChanged := weekday != item.Weekday || timeSlotID != item.TimeSlotID
	teachingChanged := subjectID != item.SubjectID || teacherID != item.TeacherID

	if teachingChanged {
		if err := s.ValidateQualification(ctx, teacherID, subjectID, timetable.SchoolYearID); err != nil {
			return nil, err
		}
	}
	if slotChanged || teacherID != item.TeacherID {
		if err := s.ValidateTeacherConflict(ctx, teacherID, weekday, timeSlotID, timetable.SchoolYearID, item.ID); err != nil {
			return nil, err
		}
	}
	if slotChanged {
		if err := s.ValidateClassConflict(ctx, item.TimetableID, weekday, timeSlotID, item.ID); err != nil {
			return nil, err
		}
	}

	item.Weekday = weekday
	item.TimeSlotID = timeSlotID
	item.SubjectID = subjectID
	item.TeacherID = teacherID
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
				"slot is already taken in this timetable")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}
	s.invalidateCache(ctx, timetable.ClassID, timetable.SchoolYearID)
	return item, nil
}

// RemoveLesson deletes a placement unconditionally.
func (s *TimetableService) RemoveLesson(ctx context.Context, itemID string) error {
	item, err := s.repo.FindItemByID(ctx, itemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson")
	}
	if timetable, err := s.repo.FindByID(ctx, item.TimetableID); err == nil {
		s.invalidateCache(ctx, timetable.ClassID, timetable.SchoolYearID)
	}
	return nil
}
