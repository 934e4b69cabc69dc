package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrQueueNumberTaken is returned by CreateAppointment when another row
	// already holds the queue number for the same doctor and day.
	ErrQueueNumberTaken = errors.New("queue number already taken")
)

type DoctorCount struct {
	Doctor string
	Count  int
}

// Repository contains all storage interactions needed by the service and
// the report aggregator.
type Repository interface {
	// Queue numbering. The queue key is the doctor and calendar day an
	// appointment was created under; it does not follow later updates.
	MaxQueueNumber(ctx context.Context, doctor string, day time.Time) (int, error)
	CreateAppointment(ctx context.Context, in NewAppointment, queueNumber int) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, changes Changes) (*Appointment, error)
	// UpdateAppointmentStatus also returns the status the row held right
	// before this write.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to Status) (updated *Appointment, from Status, err error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// Queries
	ListAppointments(ctx context.Context, f Filter) ([]Appointment, error)
	ListByDoctorAndDate(ctx context.Context, doctor string, day time.Time) ([]Appointment, error)
	ListByDateRange(ctx context.Context, from, to time.Time) ([]Appointment, error)
	ListByPatient(ctx context.Context, patient string) ([]Appointment, error)
	DistinctDates(ctx context.Context, doctor string) ([]string, error)
	Doctors(ctx context.Context) ([]string, error)
	PatientsSummary(ctx context.Context) ([]PatientSummary, error)
	CountByDoctor(ctx context.Context, status Status) ([]DoctorCount, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
	ListEvents(ctx context.Context, appointmentID uuid.UUID) ([]EventLog, error)
}
