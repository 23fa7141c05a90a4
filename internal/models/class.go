package models

import "time"

// Class represents a named group of students within a school year and school.
// Unique on (name, school year, school).
type Class struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	SchoolYearID string    `db:"school_year_id" json:"school_year_id"`
	SchoolID     string    `db:"school_id" json:"school_id"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with descriptive names.
type ClassDetail struct {
	Class
	SchoolYearName string `db:"school_year_name" json:"school_year_name"`
	SchoolName     string `db:"school_name" json:"school_name"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	SchoolYearID string
	SchoolID     string
	Search       string
	Active       *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
