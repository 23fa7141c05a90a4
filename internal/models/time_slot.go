package models

import "time"

// Shift groups time slots by period of the day.
type Shift string

// Possible shifts.
const (
	ShiftMorning   Shift = "MORNING"
	ShiftAfternoon Shift = "AFTERNOON"
	ShiftEvening   Shift = "EVENING"
	ShiftFull      Shift = "FULL"
)

// TimeSlot is a lesson period (e.g. 1st period, 07:30-08:20).
// Unique on (shift, ordinal).
type TimeSlot struct {
	ID        string    `db:"id" json:"id"`
	Ordinal   int       `db:"ordinal" json:"ordinal"`
	StartsAt  string    `db:"starts_at" json:"starts_at"`
	EndsAt    string    `db:"ends_at" json:"ends_at"`
	Shift     Shift     `db:"shift" json:"shift"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Weekday identifies the day a lesson is placed on.
type Weekday string

// Schedulable weekdays.
const (
	WeekdayMonday    Weekday = "MON"
	WeekdayTuesday   Weekday = "TUE"
	WeekdayWednesday Weekday = "WED"
	WeekdayThursday  Weekday = "THU"
	WeekdayFriday    Weekday = "FRI"
	WeekdaySaturday  Weekday = "SAT"
)

// ValidWeekday reports whether d is one of the schedulable weekdays.
func ValidWeekday(d Weekday) bool {
	switch d {
	case WeekdayMonday, WeekdayTuesday, WeekdayWednesday,
		WeekdayThursday, WeekdayFriday, WeekdaySaturday:
		return true
	}
	return false
}
