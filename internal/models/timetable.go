package models

import "time"

// Timetable is the weekly lesson grid of a class within a school year.
// It represents the current state, edited in place rather than versioned.
// At most one ACTIVE timetable exists per (class, school year), backed by a
// partial unique index.
type Timetable struct {
	ID           string    `db:"id" json:"id"`
	ClassID      string    `db:"class_id" json:"class_id"`
	SchoolYearID string    `db:"school_year_id" json:"school_year_id"`
	Active       bool      `db:"active" json:"active"`
	Note         string    `db:"note" json:"note"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// TimetableItem places one lesson (subject + teacher) at a weekday/slot of a
// timetable. Unique on (timetable, weekday, time slot).
type TimetableItem struct {
	ID          string    `db:"id" json:"id"`
	TimetableID string    `db:"timetable_id" json:"timetable_id"`
	Weekday     Weekday   `db:"weekday" json:"weekday"`
	TimeSlotID  string    `db:"time_slot_id" json:"time_slot_id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// TimetableItemDetail enriches an item with slot, subject and teacher names.
type TimetableItemDetail struct {
	TimetableItem
	SlotOrdinal int    `db:"slot_ordinal" json:"slot_ordinal"`
	SlotStart   string `db:"slot_start" json:"slot_start"`
	SlotEnd     string `db:"slot_end" json:"slot_end"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// TimetableDetail is a timetable with its items eagerly loaded.
type TimetableDetail struct {
	Timetable
	Items []TimetableItemDetail `json:"items"`
}

// TimetableConflict describes the existing placement that blocks a write.
type TimetableConflict struct {
	ItemID      string  `json:"item_id"`
	TimetableID string  `json:"timetable_id"`
	ClassName   string  `json:"class_name,omitempty"`
	SubjectName string  `json:"subject_name,omitempty"`
	TeacherName string  `json:"teacher_name,omitempty"`
	Weekday     Weekday `json:"weekday"`
	TimeSlotID  string  `json:"time_slot_id"`
	Dimension   string  `json:"dimension"`
}

// TimetableConflictError is returned when a lesson placement collides with an
// existing one or the teacher lacks a qualification.
type TimetableConflictError struct {
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Conflict TimetableConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *TimetableConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
