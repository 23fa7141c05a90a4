package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aqnus/sis-api/internal/models"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
)

type personRepository interface {
	List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error)
	FindByID(ctx context.Context, id string) (*models.Person, error)
	ExistsByNationalID(ctx context.Context, nationalID, excludeID string) (bool, error)
	Create(ctx context.Context, person *models.Person) error
	Update(ctx context.Context, person *models.Person) error
	ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindStudentByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsStudentByRegistration(ctx context.Context, registration, excludeID string) (bool, error)
	CreateStudent(ctx context.Context, student *models.StudentProfile) error
	UpdateStudentSituation(ctx context.Context, id string, situation models.StudentSituation) error
	ListTeachers(ctx context.Context) ([]models.TeacherDetail, error)
	FindTeacherByID(ctx context.Context, id string) (*models.TeacherDetail, error)
	CreateTeacher(ctx context.Context, teacher *models.TeacherProfile) error
	CreateStaff(ctx context.Context, staff *models.StaffProfile) error
	CreateGuardian(ctx context.Context, guardian *models.GuardianProfile) error
	LinkGuardian(ctx context.Context, link *models.StudentGuardian) error
	ListGuardiansByStudent(ctx context.Context, studentID string) ([]models.GuardianProfile, error)
}

// CreatePersonRequest describes the person creation payload.
type CreatePersonRequest struct {
	FullName   string     `json:"full_name" validate:"required"`
	NationalID string     `json:"national_id" validate:"required"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	Phone      string     `json:"phone"`
	Email      string     `json:"email" validate:"omitempty,email"`
	Address    string     `json:"address"`
}

// UpdatePersonRequest updates mutable fields on a person.
type UpdatePersonRequest struct {
	FullName   string     `json:"full_name" validate:"required"`
	NationalID string     `json:"national_id" validate:"required"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	Phone      string     `json:"phone"`
	Email      string     `json:"email" validate:"omitempty,email"`
	Address    string     `json:"address"`
	Active     *bool      `json:"active"`
}

// AttachStudentRequest creates a student profile for a person.
type AttachStudentRequest struct {
	PersonID     string     `json:"person_id" validate:"required"`
	Registration string     `json:"registration" validate:"required"`
	AdmittedAt   *time.Time `json:"admitted_at,omitempty"`
}

// AttachTeacherRequest creates a teacher profile for a person.
type AttachTeacherRequest struct {
	PersonID       string `json:"person_id" validate:"required"`
	Background     string `json:"background"`
	MaxWeeklyHours int    `json:"max_weekly_hours" validate:"gte=0"`
}

// AttachStaffRequest creates a staff profile for a person.
type AttachStaffRequest struct {
	PersonID  string `json:"person_id" validate:"required"`
	RoleTitle string `json:"role_title" validate:"required"`
}

// AttachGuardianRequest creates a guardian profile for a person.
type AttachGuardianRequest struct {
	PersonID string              `json:"person_id" validate:"required"`
	Kind     models.GuardianKind `json:"kind" validate:"required,oneof=FATHER MOTHER LEGAL_GUARDIAN"`
}

// LinkGuardianRequest links a guardian to a student.
type LinkGuardianRequest struct {
	GuardianID string `json:"guardian_id" validate:"required"`
}

// PersonService manages people and their role profiles. A person is created
// once and roles are attached to it, so the same person can be a guardian of
// one student and a staff member at the same time.
type PersonService struct {
	repo      personRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPersonService constructs PersonService.
func NewPersonService(repo personRepository, validate *validator.Validate, logger *zap.Logger) *PersonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonService{repo: repo, validator: validate, logger: logger}
}

// List returns people with pagination metadata.
func (s *PersonService) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, *models.Pagination, error) {
	people, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list people")
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
	return people, pagination, nil
}

// Get returns a person by ID.
func (s *PersonService) Get(ctx context.Context, id string) (*models.Person, error) {
	person, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	return person, nil
}

// Create adds a new person with a unique national ID.
func (s *PersonService) Create(ctx context.Context, req CreatePersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid person payload")
	}
	exists, err := s.repo.ExistsByNationalID(ctx, req.NationalID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check national id")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "person with this national id already exists")
	}

	person := &models.Person{
		FullName:   req.FullName,
		NationalID: req.NationalID,
		BirthDate:  req.BirthDate,
		Phone:      req.Phone,
		Email:      req.Email,
		Address:    req.Address,
		Active:     true,
	}
	if err := s.repo.Create(ctx, person); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create person")
	}
	return person, nil
}

// Update modifies a person record.
func (s *PersonService) Update(ctx context.Context, id string, req UpdatePersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid person payload")
	}
	person, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}

	exists, err := s.repo.ExistsByNationalID(ctx, req.NationalID, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check national id")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "person with this national id already exists")
	}

	person.FullName = req.FullName
	person.NationalID = req.NationalID
	person.BirthDate = req.BirthDate
	person.Phone = req.Phone
	person.Email = req.Email
	person.Address = req.Address
	if req.Active != nil {
		person.Active = *req.Active
	}
	if err := s.repo.Update(ctx, person); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update person")
	}
	return person, nil
}

// ListStudents returns student profiles with pagination metadata.
func (s *PersonService) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.ListStudents(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
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
	return students, pagination, nil
}

// GetStudent returns a student profile by ID.
func (s *PersonService) GetStudent(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindStudentByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// AttachStudent creates a student profile on an existing person.
func (s *PersonService) AttachStudent(ctx context.Context, req AttachStudentRequest) (*models.StudentProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if _, err := s.repo.FindByID(ctx, req.PersonID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	exists, err := s.repo.ExistsStudentByRegistration(ctx, req.Registration, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student with this registration already exists")
	}

	admittedAt := time.Now().UTC()
	if req.AdmittedAt != nil {
		admittedAt = req.AdmittedAt.UTC()
	}
	student := &models.StudentProfile{
		PersonID:     req.PersonID,
		Registration: req.Registration,
		AdmittedAt:   admittedAt,
		Situation:    models.StudentSituationActive,
	}
	if err := s.repo.CreateStudent(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student profile")
	}
	return student, nil
}

// ListTeachers returns all teacher profiles.
func (s *PersonService) ListTeachers(ctx context.Context) ([]models.TeacherDetail, error) {
	teachers, err := s.repo.ListTeachers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, nil
}

// AttachTeacher creates a teacher profile on an existing person.
func (s *PersonService) AttachTeacher(ctx context.Context, req AttachTeacherRequest) (*models.TeacherProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	if _, err := s.repo.FindByID(ctx, req.PersonID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	teacher := &models.TeacherProfile{
		PersonID:       req.PersonID,
		Background:     req.Background,
		MaxWeeklyHours: req.MaxWeeklyHours,
		Active:         true,
	}
	if err := s.repo.CreateTeacher(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher profile")
	}
	return teacher, nil
}

// AttachStaff creates a staff profile on an existing person.
func (s *PersonService) AttachStaff(ctx context.Context, req AttachStaffRequest) (*models.StaffProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid staff payload")
	}
	if _, err := s.repo.FindByID(ctx, req.PersonID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	staff := &models.StaffProfile{PersonID: req.PersonID, RoleTitle: req.RoleTitle, Active: true}
	if err := s.repo.CreateStaff(ctx, staff); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create staff profile")
	}
	return staff, nil
}

// AttachGuardian creates a guardian profile on an existing person.
func (s *PersonService) AttachGuardian(ctx context.Context, req AttachGuardianRequest) (*models.GuardianProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid guardian payload")
	}
	if _, err := s.repo.FindByID(ctx, req.PersonID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	guardian := &models.GuardianProfile{PersonID: req.PersonID, Kind: req.Kind, Active: true}
	if err := s.repo.CreateGuardian(ctx, guardian); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create guardian profile")
	}
	return guardian, nil
}

// LinkGuardian links a guardian to a student. Linking an already linked pair
// is a no-op so siblings can share guardians safely.
func (s *PersonService) LinkGuardian(ctx context.Context, studentID string, req LinkGuardianRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid guardian link payload")
	}
	if _, err := s.repo.FindStudentByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	link := &models.StudentGuardian{StudentID: studentID, GuardianID: req.GuardianID}
	if err := s.repo.LinkGuardian(ctx, link); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link guardian")
	}
	return nil
}

// ListGuardians returns the guardians linked to a student.
func (s *PersonService) ListGuardians(ctx context.Context, studentID string) ([]models.GuardianProfile, error) {
	if _, err := s.repo.FindStudentByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	guardians, err := s.repo.ListGuardiansByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list guardians")
	}
	return guardians, nil
}
