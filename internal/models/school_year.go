package models

import "time"

// SchoolYear bounds enrollments, qualifications and timetables. At most one
// year is active in normal operation; this is a convention, not a constraint,
// and every service takes the school year explicitly.
type SchoolYear struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time `db:"ends_at" json:"ends_at"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
