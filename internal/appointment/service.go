package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-queue-backend/internal/lock"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentUpdated       = "APPOINTMENT_UPDATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentDeleted       = "APPOINTMENT_DELETED"
)

// maxQueueAttempts bounds how often a create is retried after losing a
// queue number to a writer that bypassed the lock.
const maxQueueAttempts = 3

var (
	ErrPatientNameRequired = errors.New("patient_name is required")
	ErrDoctorNameRequired  = errors.New("doctor_name is required")
	ErrTimeSlotRequired    = errors.New("time_slot is required")
	ErrQueueBusy           = errors.New("queue is busy for this doctor and day, please retry")
	ErrQueueConflict       = errors.New("could not assign a unique queue number")
)

type Service struct {
	repo   Repository
	locker lock.Locker
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker lock.Locker, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		logger: logger.With().Str("component", "appointment").Logger(),
		now:    time.Now,
	}
}

// QueueKey names the critical section shared by every appointment of one
// doctor on one calendar day.
func QueueKey(doctor string, day time.Time) string {
	return "queue:" + doctor + ":" + day.Format(DateLayout)
}

// CreateAppointment stores a new appointment and gives it the next queue
// number for its doctor and day. Counting and inserting happen under the
// queue lock so concurrent requests cannot hand out the same number.
func (s *Service) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	in, err := normalizeNew(in)
	if err != nil {
		return nil, err
	}

	key := QueueKey(in.DoctorName, in.TimeSlot)

	var created *Appointment
	for attempt := 1; ; attempt++ {
		err = s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
			highest, err := s.repo.MaxQueueNumber(lockCtx, in.DoctorName, in.TimeSlot)
			if err != nil {
				return fmt.Errorf("read queue position: %w", err)
			}

			appt, err := s.repo.CreateAppointment(lockCtx, in, highest+1)
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			created = appt
			return nil
		})

		if err == nil {
			break
		}
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, ErrQueueBusy
		}
		if errors.Is(err, ErrQueueNumberTaken) {
			if attempt < maxQueueAttempts {
				s.logger.Warn().Str("queue", key).Int("attempt", attempt).Msg("queue number taken, retrying")
				continue
			}
			return nil, ErrQueueConflict
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_name":  created.DoctorName,
		"time_slot":    created.TimeSlot.Format(DateTimeLayout),
		"queue_number": created.QueueNumber,
	})

	return created, nil
}

// SetStatus overwrites the status of an appointment and nothing else. The
// recorded transition uses the status the store replaced, not an earlier
// read, so concurrent changes each log their true predecessor.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	to, err := parseRequiredStatus(to)
	if err != nil {
		return nil, err
	}

	updated, from, err := s.repo.UpdateAppointmentStatus(ctx, id, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentStatusChanged, map[string]any{
		"from": from,
		"to":   updated.Status,
	})

	return updated, nil
}

// UpdateAppointment edits an appointment. The queue number is kept as
// issued even when the doctor or day changes.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, changes Changes) (*Appointment, error) {
	changes, err := normalizeChanges(changes)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointment(ctx, id, changes)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentUpdated, changesPayload(changes))

	return updated, nil
}

// DeleteAppointment removes an appointment. Other queue numbers are not
// renumbered.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("load appointment: %w", err)
	}

	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("delete appointment: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{
		"doctor_name":  appt.DoctorName,
		"time_slot":    appt.TimeSlot.Format(DateTimeLayout),
		"queue_number": appt.QueueNumber,
	})

	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointments returns appointments ordered by time slot. A tab filter
// without a reference date is evaluated against today.
func (s *Service) ListAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	if f.Tab != "" && f.RefDate.IsZero() {
		f.RefDate = DayStart(s.now())
	}
	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// ListQueue returns one doctor's appointments for a day in queue order.
func (s *Service) ListQueue(ctx context.Context, doctor string, day time.Time) ([]Appointment, error) {
	appts, err := s.repo.ListByDoctorAndDate(ctx, doctor, day)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return appts, nil
}

// AppointmentDates lists the distinct ISO dates with appointments, for one
// doctor or for everyone when doctor is empty.
func (s *Service) AppointmentDates(ctx context.Context, doctor string) ([]string, error) {
	dates, err := s.repo.DistinctDates(ctx, doctor)
	if err != nil {
		return nil, fmt.Errorf("list appointment dates: %w", err)
	}
	return dates, nil
}

func (s *Service) Doctors(ctx context.Context) ([]string, error) {
	doctors, err := s.repo.Doctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (s *Service) Patients(ctx context.Context) ([]PatientSummary, error) {
	patients, err := s.repo.PatientsSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

// Patient returns a patient's history, most recent first. Unknown patients
// yield an empty history.
func (s *Service) Patient(ctx context.Context, name string) (*PatientDetail, error) {
	appts, err := s.repo.ListByPatient(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load patient history: %w", err)
	}
	return &PatientDetail{
		PatientName:  name,
		TotalVisits:  len(appts),
		Appointments: appts,
	}, nil
}

func (s *Service) Events(ctx context.Context, id uuid.UUID) ([]EventLog, error) {
	events, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

func normalizeNew(in NewAppointment) (NewAppointment, error) {
	in.PatientName = strings.TrimSpace(in.PatientName)
	in.DoctorName = strings.TrimSpace(in.DoctorName)
	if in.PatientName == "" {
		return in, ErrPatientNameRequired
	}
	if in.DoctorName == "" {
		return in, ErrDoctorNameRequired
	}
	if in.TimeSlot.IsZero() {
		return in, ErrTimeSlotRequired
	}
	in.TimeSlot = WallClock(in.TimeSlot)

	status, err := ParseStatus(string(in.Status))
	if err != nil {
		return in, err
	}
	in.Status = status

	return in, nil
}

func normalizeChanges(c Changes) (Changes, error) {
	if c.PatientName != nil {
		name := strings.TrimSpace(*c.PatientName)
		if name == "" {
			return c, ErrPatientNameRequired
		}
		c.PatientName = &name
	}
	if c.DoctorName != nil {
		name := strings.TrimSpace(*c.DoctorName)
		if name == "" {
			return c, ErrDoctorNameRequired
		}
		c.DoctorName = &name
	}
	if c.TimeSlot != nil {
		if c.TimeSlot.IsZero() {
			return c, ErrTimeSlotRequired
		}
		ts := WallClock(*c.TimeSlot)
		c.TimeSlot = &ts
	}
	if c.Status != nil {
		status, err := parseRequiredStatus(*c.Status)
		if err != nil {
			return c, err
		}
		c.Status = &status
	}
	return c, nil
}

func parseRequiredStatus(s Status) (Status, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", fmt.Errorf("%w: status is required", ErrInvalidStatus)
	}
	return ParseStatus(string(s))
}

func changesPayload(c Changes) map[string]any {
	payload := map[string]any{}
	if c.PatientName != nil {
		payload["patient_name"] = *c.PatientName
	}
	if c.DoctorName != nil {
		payload["doctor_name"] = *c.DoctorName
	}
	if c.TimeSlot != nil {
		payload["time_slot"] = c.TimeSlot.Format(DateTimeLayout)
	}
	if c.Status != nil {
		payload["status"] = *c.Status
	}
	return payload
}
