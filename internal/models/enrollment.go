package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment record.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusClosed    EnrollmentStatus = "CLOSED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// EnrollmentType distinguishes how a student entered a class.
type EnrollmentType string

// Possible enrollment types.
const (
	EnrollmentTypeInitial      EnrollmentType = "INITIAL"
	EnrollmentTypeTransfer     EnrollmentType = "TRANSFER"
	EnrollmentTypeReassignment EnrollmentType = "REASSIGNMENT"
)

// Enrollment is the historical record of a student's admission to a class
// within a school year. It is a ledger entry: rows are closed or cancelled,
// never deleted. At most one ACTIVE enrollment exists per (student, school
// year), backed by a partial unique index.
type Enrollment struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	ClassID      string           `db:"class_id" json:"class_id"`
	SchoolYearID string           `db:"school_year_id" json:"school_year_id"`
	EnrolledAt   time.Time        `db:"enrolled_at" json:"enrolled_at"`
	Type         EnrollmentType   `db:"type" json:"type"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	Note         string           `db:"note" json:"note"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName    string `db:"student_name" json:"student_name"`
	ClassName      string `db:"class_name" json:"class_name"`
	SchoolYearName string `db:"school_year_name" json:"school_year_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID    string
	ClassID      string
	SchoolYearID string
	Status       EnrollmentStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// StudentClass is the current-state link between a student and a class,
// distinct from the enrollment ledger. Unique on (student, class).
type StudentClass struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	ClassID    string    `db:"class_id" json:"class_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// MovementEvent classifies entries of the student movement ledger.
type MovementEvent string

// Possible movement events.
const (
	MovementInitialEnrollment MovementEvent = "INITIAL_ENROLLMENT"
	MovementTransferIn        MovementEvent = "TRANSFER_IN"
	MovementTransferOut       MovementEvent = "TRANSFER_OUT"
	MovementReassignment      MovementEvent = "REASSIGNMENT"
	MovementClosure           MovementEvent = "CLOSURE"
	MovementCancellation      MovementEvent = "CANCELLATION"
)

// StudentMovement is an append-only log entry recording one lifecycle event
// of a student. Rows are never mutated or deleted.
type StudentMovement struct {
	ID           string        `db:"id" json:"id"`
	StudentID    string        `db:"student_id" json:"student_id"`
	Event        MovementEvent `db:"event" json:"event"`
	OccurredAt   time.Time     `db:"occurred_at" json:"occurred_at"`
	Description  string        `db:"description" json:"description"`
	EnrollmentID *string       `db:"enrollment_id" json:"enrollment_id,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}
