package models

import "time"

// Author of a work in the library catalog.
type Author struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Publisher of works in the library catalog.
type Publisher struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LibrarySubject is a thematic tag for works. Unique name.
type LibrarySubject struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Work is the title-level bibliographic record. Copies, not works, are
// loaned. ISBN is unique when present.
type Work struct {
	ID               string    `db:"id" json:"id"`
	Title            string    `db:"title" json:"title"`
	PublisherID      *string   `db:"publisher_id" json:"publisher_id,omitempty"`
	LibrarySubjectID *string   `db:"library_subject_id" json:"library_subject_id,omitempty"`
	ISBN             string    `db:"isbn" json:"isbn"`
	PublishedYear    *int      `db:"published_year" json:"published_year,omitempty"`
	Note             string    `db:"note" json:"note"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// WorkDetail enriches a work with its authors and descriptive names.
type WorkDetail struct {
	Work
	PublisherName      *string  `db:"publisher_name" json:"publisher_name,omitempty"`
	LibrarySubjectName *string  `db:"library_subject_name" json:"library_subject_name,omitempty"`
	Authors            []Author `json:"authors"`
}

// WorkFilter captures supported filters for listing works.
type WorkFilter struct {
	Search           string
	PublisherID      string
	LibrarySubjectID string
	Active           *bool
	Page             int
	PageSize         int
	SortBy           string
	SortOrder        string
}

// CopyCondition records the physical state of a copy.
type CopyCondition string

// Possible copy conditions.
const (
	CopyConditionGood    CopyCondition = "GOOD"
	CopyConditionFair    CopyCondition = "FAIR"
	CopyConditionPoor    CopyCondition = "POOR"
	CopyConditionDamaged CopyCondition = "DAMAGED"
)

// CopyAvailability is the derived circulation state of a copy. It is written
// only by the library service, never directly by callers.
type CopyAvailability string

// Possible copy availabilities.
const (
	CopyAvailable   CopyAvailability = "AVAILABLE"
	CopyLoaned      CopyAvailability = "LOANED"
	CopyUnavailable CopyAvailability = "UNAVAILABLE"
	CopyRetired     CopyAvailability = "RETIRED"
)

// Copy is a physical instance of a work, identified by a unique inventory
// code.
type Copy struct {
	ID            string           `db:"id" json:"id"`
	WorkID        string           `db:"work_id" json:"work_id"`
	InventoryCode string           `db:"inventory_code" json:"inventory_code"`
	Condition     CopyCondition    `db:"condition" json:"condition"`
	Availability  CopyAvailability `db:"availability" json:"availability"`
	Active        bool             `db:"active" json:"active"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// CopyDetail enriches a copy with its work title.
type CopyDetail struct {
	Copy
	WorkTitle string `db:"work_title" json:"work_title"`
}

// CopyFilter captures supported filters for listing copies.
type CopyFilter struct {
	WorkID       string
	Availability CopyAvailability
	Active       *bool
	Page         int
	PageSize     int
}

// LoanStatus represents the lifecycle of a loan.
type LoanStatus string

// Possible loan statuses.
const (
	LoanStatusActive   LoanStatus = "ACTIVE"
	LoanStatusReturned LoanStatus = "RETURNED"
	LoanStatusOverdue  LoanStatus = "OVERDUE"
)

// Loan is the event of a copy being lent. At most one open loan (active or
// overdue) exists per copy, backed by a partial unique index. Student and
// class are optional: staff loans carry neither.
type Loan struct {
	ID         string     `db:"id" json:"id"`
	CopyID     string     `db:"copy_id" json:"copy_id"`
	StudentID  *string    `db:"student_id" json:"student_id,omitempty"`
	ClassID    *string    `db:"class_id" json:"class_id,omitempty"`
	LoanedAt   time.Time  `db:"loaned_at" json:"loaned_at"`
	DueAt      time.Time  `db:"due_at" json:"due_at"`
	ReturnedAt *time.Time `db:"returned_at" json:"returned_at,omitempty"`
	Status     LoanStatus `db:"status" json:"status"`
	Note       string     `db:"note" json:"note"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// LoanDetail enriches a loan with copy and student info.
type LoanDetail struct {
	Loan
	InventoryCode string  `db:"inventory_code" json:"inventory_code"`
	WorkTitle     string  `db:"work_title" json:"work_title"`
	StudentName   *string `db:"student_name" json:"student_name,omitempty"`
}

// LoanFilter captures supported filters for listing loans.
type LoanFilter struct {
	CopyID    string
	StudentID string
	ClassID   string
	Status    LoanStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
