package appointment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid appointment status")

// Statuses lists the closed status vocabulary in display order.
var Statuses = []Status{StatusWaiting, StatusCompleted, StatusCancelled}

// ParseStatus accepts any casing of a known status. An empty string yields
// StatusWaiting.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return StatusWaiting, nil
	}
	for _, known := range Statuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04:05"
)

var timeSlotLayouts = []string{
	time.RFC3339Nano,
	DateTimeLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// ParseTimeSlot parses an ISO-8601 date-time. Offsets are dropped so the wall
// clock the client sent is what gets stored and grouped by day.
func ParseTimeSlot(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeSlotLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return WallClock(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time slot %q", raw)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return d, nil
}

// WallClock keeps the date and clock reading of t and pins it to UTC.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// DayStart is 00:00:00 of t's calendar day.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayEnd is the last representable instant of t's calendar day.
func DayEnd(t time.Time) time.Time {
	return DayStart(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

type Appointment struct {
	ID          uuid.UUID
	PatientName string
	DoctorName  string
	TimeSlot    time.Time
	QueueNumber int
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Date is the calendar day the appointment is queued under.
func (a Appointment) Date() string {
	return a.TimeSlot.Format(DateLayout)
}

type NewAppointment struct {
	PatientName string
	DoctorName  string
	TimeSlot    time.Time
	Status      Status
}

// Changes carries the fields of an update; nil fields are left alone.
type Changes struct {
	PatientName *string
	DoctorName  *string
	TimeSlot    *time.Time
	Status      *Status
}

type Tab string

const (
	TabToday    Tab = "today"
	TabUpcoming Tab = "upcoming"
	TabPast     Tab = "past"
)

// Filter narrows ListAppointments. Zero values match everything.
type Filter struct {
	Date    *time.Time
	Status  Status
	Doctor  string
	Tab     Tab
	RefDate time.Time
}

type PatientSummary struct {
	Name      string
	Visits    int
	LastVisit time.Time
}

type PatientDetail struct {
	PatientName  string
	TotalVisits  int
	Appointments []Appointment
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Matches reports whether a passes every set field of the filter.
func (f Filter) Matches(a Appointment) bool {
	day := a.Date()
	if f.Date != nil && day != f.Date.Format(DateLayout) {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Doctor != "" && a.DoctorName != f.Doctor {
		return false
	}
	if f.Tab != "" {
		ref := f.RefDate.Format(DateLayout)
		switch f.Tab {
		case TabToday:
			return day == ref
		case TabUpcoming:
			return day > ref
		case TabPast:
			return day < ref
		}
	}
	return true
}

// ParseTab validates a tab name. An empty string means no tab filter.
func ParseTab(raw string) (Tab, error) {
	t := Tab(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case "", TabToday, TabUpcoming, TabPast:
		return t, nil
	}
	return "", fmt.Errorf("invalid tab %q, expected today, upcoming or past", raw)
}
