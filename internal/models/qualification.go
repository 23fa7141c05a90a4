package models

import "time"

// Qualification authorises a teacher to teach a subject within a school year.
// Unique on (teacher, subject, school year). The timetable service consults
// this table and nothing else when checking whether a placement is allowed.
type Qualification struct {
	ID           string    `db:"id" json:"id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	SchoolYearID string    `db:"school_year_id" json:"school_year_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// QualificationDetail enriches a qualification with descriptive names.
type QualificationDetail struct {
	Qualification
	TeacherName    string `db:"teacher_name" json:"teacher_name"`
	SubjectName    string `db:"subject_name" json:"subject_name"`
	SchoolYearName string `db:"school_year_name" json:"school_year_name"`
}

// QualificationFilter captures filters for listing qualifications.
type QualificationFilter struct {
	TeacherID    string
	SubjectID    string
	SchoolYearID string
	Page         int
	PageSize     int
}
