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

// PersonRepository handles persistence of people and their role profiles.
type PersonRepository struct {
	db sqlx.ExtContext
}

// NewPersonRepository constructs the repository.
func NewPersonRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// List returns people filtered by the provided criteria.
func (r *PersonRepository) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error) {
	base := `FROM people p`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(p.full_name ILIKE $%d OR p.national_id ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("p.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"full_name":  "p.full_name",
		"created_at": "p.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "p.full_name"
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

	query := fmt.Sprintf(`SELECT p.id, p.full_name, p.national_id, p.birth_date, p.phone, p.email, p.address, p.active,
        p.created_at, p.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var people []models.Person
	if err := sqlx.SelectContext(ctx, r.db, &people, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list people: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count people: %w", err)
	}
	return people, total, nil
}

// FindByID returns a person by their ID.
func (r *PersonRepository) FindByID(ctx context.Context, id string) (*models.Person, error) {
	const query = `SELECT id, full_name, national_id, birth_date, phone, email, address, active, created_at, updated_at
        FROM people WHERE id = $1`
	var person models.Person
	if err := sqlx.GetContext(ctx, r.db, &person, query, id); err != nil {
		return nil, err
	}
	return &person, nil
}

// ExistsByNationalID reports whether a person with the national ID exists,
// excluding the given ID when non-empty.
func (r *PersonRepository) ExistsByNationalID(ctx context.Context, nationalID, excludeID string) (bool, error) {
	query := `SELECT 1 FROM people WHERE national_id = $1`
	args := []interface{}{nationalID}
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
		return false, fmt.Errorf("check national id: %w", err)
	}
	return true, nil
}

// Create persists a new person.
func (r *PersonRepository) Create(ctx context.Context, person *models.Person) error {
	if person.ID == "" {
		person.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	person.CreatedAt = now
	person.UpdatedAt = now
	const query = `INSERT INTO people (id, full_name, national_id, birth_date, phone, email, address, active, created_at, updated_at)
        VALUES (:id, :full_name, :national_id, :birth_date, :phone, :email, :address, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, person); err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

// Update overwrites a person's editable fields.
func (r *PersonRepository) Update(ctx context.Context, person *models.Person) error {
	person.UpdatedAt = time.Now().UTC()
	const query = `UPDATE people SET full_name = :full_name, national_id = :national_id, birth_date = :birth_date,
        phone = :phone, email = :email, address = :address, active = :active, updated_at = :updated_at
        WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.db, query, person)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListStudents returns student profiles with person data.
func (r *PersonRepository) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM student_profiles st JOIN people p ON p.id = st.person_id`
	var conditions []string
	var args []interface{}

	if filter.Situation != "" {
		conditions = append(conditions, fmt.Sprintf("st.situation = $%d", len(args)+1))
		args = append(args, filter.Situation)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(p.full_name ILIKE $%d OR st.registration ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"full_name":    "p.full_name",
		"registration": "st.registration",
		"admitted_at":  "st.admitted_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "p.full_name"
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

	query := fmt.Sprintf(`SELECT st.id, st.person_id, st.registration, st.admitted_at, st.situation, st.created_at, st.updated_at,
        p.full_name, p.national_id
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var students []models.StudentDetail
	if err := sqlx.SelectContext(ctx, r.db, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindStudentByID returns a student profile with person data.
func (r *PersonRepository) FindStudentByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT st.id, st.person_id, st.registration, st.admitted_at, st.situation, st.created_at, st.updated_at,
        p.full_name, p.national_id
        FROM student_profiles st JOIN people p ON p.id = st.person_id
        WHERE st.id = $1`
	var student models.StudentDetail
	if err := sqlx.GetContext(ctx, r.db, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsStudentByRegistration reports whether a student profile with the
// registration exists, excluding the given ID when non-empty.
func (r *PersonRepository) ExistsStudentByRegistration(ctx context.Context, registration, excludeID string) (bool, error) {
	query := `SELECT 1 FROM student_profiles WHERE registration = $1`
	args := []interface{}{registration}
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
		return false, fmt.Errorf("check registration: %w", err)
	}
	return true, nil
}

// CreateStudent persists a new student profile.
func (r *PersonRepository) CreateStudent(ctx context.Context, student *models.StudentProfile) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	if student.Situation == "" {
		student.Situation = models.StudentSituationActive
	}
	const query = `INSERT INTO student_profiles (id, person_id, registration, admitted_at, situation, created_at, updated_at)
        VALUES (:id, :person_id, :registration, :admitted_at, :situation, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, student); err != nil {
		return fmt.Errorf("create student profile: %w", err)
	}
	return nil
}

// UpdateStudentSituation moves a student profile to a new situation.
func (r *PersonRepository) UpdateStudentSituation(ctx context.Context, id string, situation models.StudentSituation) error {
	const query = `UPDATE student_profiles SET situation = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, situation, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update student situation: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListTeachers returns active teacher profiles with person data.
func (r *PersonRepository) ListTeachers(ctx context.Context) ([]models.TeacherDetail, error) {
	const query = `SELECT t.id, t.person_id, t.background, t.max_weekly_hours, t.active, t.created_at, t.updated_at,
        p.full_name
        FROM teacher_profiles t JOIN people p ON p.id = t.person_id
        ORDER BY p.full_name`
	var teachers []models.TeacherDetail
	if err := sqlx.SelectContext(ctx, r.db, &teachers, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// FindTeacherByID returns a teacher profile with person data.
func (r *PersonRepository) FindTeacherByID(ctx context.Context, id string) (*models.TeacherDetail, error) {
	const query = `SELECT t.id, t.person_id, t.background, t.max_weekly_hours, t.active, t.created_at, t.updated_at,
        p.full_name
        FROM teacher_profiles t JOIN people p ON p.id = t.person_id
        WHERE t.id = $1`
	var teacher models.TeacherDetail
	if err := sqlx.GetContext(ctx, r.db, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// CreateTeacher persists a new teacher profile.
func (r *PersonRepository) CreateTeacher(ctx context.Context, teacher *models.TeacherProfile) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	teacher.CreatedAt = now
	teacher.UpdatedAt = now
	const query = `INSERT INTO teacher_profiles (id, person_id, background, max_weekly_hours, active, created_at, updated_at)
        VALUES (:id, :person_id, :background, :max_weekly_hours, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, teacher); err != nil {
		return fmt.Errorf("create teacher profile: %w", err)
	}
	return nil
}

// CreateStaff persists a new staff profile.
func (r *PersonRepository) CreateStaff(ctx context.Context, staff *models.StaffProfile) error {
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	staff.CreatedAt = now
	staff.UpdatedAt = now
	const query = `INSERT INTO staff_profiles (id, person_id, role_title, active, created_at, updated_at)
        VALUES (:id, :person_id, :role_title, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, staff); err != nil {
		return fmt.Errorf("create staff profile: %w", err)
	}
	return nil
}

// CreateGuardian persists a new guardian profile.
func (r *PersonRepository) CreateGuardian(ctx context.Context, guardian *models.GuardianProfile) error {
	if guardian.ID == "" {
		guardian.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	guardian.CreatedAt = now
	guardian.UpdatedAt = now
	const query = `INSERT INTO guardian_profiles (id, person_id, kind, active, created_at, updated_at)
        VALUES (:id, :person_id, :kind, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, guardian); err != nil {
		return fmt.Errorf("create guardian profile: %w", err)
	}
	return nil
}

// LinkGuardian attaches a guardian to a student. Re-linking the same pair is
// a no-op via the unique (student_id, guardian_id) constraint.
func (r *PersonRepository) LinkGuardian(ctx context.Context, link *models.StudentGuardian) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	link.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO student_guardians (id, student_id, guardian_id, created_at)
        VALUES (:id, :student_id, :guardian_id, :created_at)
        ON CONFLICT (student_id, guardian_id) DO NOTHING`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, link); err != nil {
		return fmt.Errorf("link guardian: %w", err)
	}
	return nil
}

// ListGuardiansByStudent returns the guardians linked to a student.
func (r *PersonRepository) ListGuardiansByStudent(ctx context.Context, studentID string) ([]models.GuardianProfile, error) {
	const query = `SELECT g.id, g.person_id, g.kind, g.active, g.created_at, g.updated_at
        FROM guardian_profiles g
        JOIN student_guardians sg ON sg.guardian_id = g.id
        WHERE sg.student_id = $1
        ORDER BY g.created_at`
	var guardians []models.GuardianProfile
	if err := sqlx.SelectContext(ctx, r.db, &guardians, query, studentID); err != nil {
		return nil, fmt.Errorf("list guardians: %w", err)
	}
	return guardians, nil
}
