package models

import "time"

// Person centralises personal data. Role profiles (student, teacher, staff,
// guardian) attach to a person by composition; the same person can hold
// several roles at once.
type Person struct {
	ID         string     `db:"id" json:"id"`
	FullName   string     `db:"full_name" json:"full_name"`
	NationalID string     `db:"national_id" json:"national_id"`
	BirthDate  *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Phone      string     `db:"phone" json:"phone"`
	Email      string     `db:"email" json:"email"`
	Address    string     `db:"address" json:"address"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentSituation tracks the academic standing of a student profile.
type StudentSituation string

// Possible student situations.
const (
	StudentSituationActive      StudentSituation = "ACTIVE"
	StudentSituationInactive    StudentSituation = "INACTIVE"
	StudentSituationTransferred StudentSituation = "TRANSFERRED"
	StudentSituationGraduated   StudentSituation = "GRADUATED"
	StudentSituationWithdrawn   StudentSituation = "WITHDRAWN"
)

// StudentProfile holds the academic role data of a person.
type StudentProfile struct {
	ID           string           `db:"id" json:"id"`
	PersonID     string           `db:"person_id" json:"person_id"`
	Registration string           `db:"registration" json:"registration"`
	AdmittedAt   time.Time        `db:"admitted_at" json:"admitted_at"`
	Situation    StudentSituation `db:"situation" json:"situation"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// StudentDetail enriches a student profile with person data.
type StudentDetail struct {
	StudentProfile
	FullName   string `db:"full_name" json:"full_name"`
	NationalID string `db:"national_id" json:"national_id"`
}

// TeacherProfile holds the teaching role data of a person.
type TeacherProfile struct {
	ID             string    `db:"id" json:"id"`
	PersonID       string    `db:"person_id" json:"person_id"`
	Background     string    `db:"background" json:"background"`
	MaxWeeklyHours int       `db:"max_weekly_hours" json:"max_weekly_hours"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherDetail enriches a teacher profile with person data.
type TeacherDetail struct {
	TeacherProfile
	FullName string `db:"full_name" json:"full_name"`
}

// StaffProfile holds the administrative role data of a person.
type StaffProfile struct {
	ID        string    `db:"id" json:"id"`
	PersonID  string    `db:"person_id" json:"person_id"`
	RoleTitle string    `db:"role_title" json:"role_title"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GuardianKind distinguishes guardianship relations.
type GuardianKind string

// Possible guardian kinds.
const (
	GuardianKindFather GuardianKind = "FATHER"
	GuardianKindMother GuardianKind = "MOTHER"
	GuardianKindLegal  GuardianKind = "LEGAL_GUARDIAN"
)

// GuardianProfile holds the guardian role data of a person.
type GuardianProfile struct {
	ID        string       `db:"id" json:"id"`
	PersonID  string       `db:"person_id" json:"person_id"`
	Kind      GuardianKind `db:"kind" json:"kind"`
	Active    bool         `db:"active" json:"active"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// StudentGuardian links a student to a guardian. Siblings may share guardians
// without duplicating personal data.
type StudentGuardian struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	GuardianID string    `db:"guardian_id" json:"guardian_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// PersonFilter captures supported filters for listing people.
type PersonFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentFilter captures supported filters for listing student profiles.
type StudentFilter struct {
	Situation StudentSituation
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
