package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation    = "23505"
	queueKeyConstraint = "appointments_queue_key_idx"
)

const appointmentColumns = `id, patient_name, doctor_name, time_slot, queue_number, status, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row, extra ...any) (*Appointment, error) {
	var a Appointment

	dest := append([]any{
		&a.ID,
		&a.PatientName,
		&a.DoctorName,
		&a.TimeSlot,
		&a.QueueNumber,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	}, extra...)

	err := row.Scan(dest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.TimeSlot = WallClock(a.TimeSlot)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func isQueueKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == queueKeyConstraint
}

// Interface methods

func (r *PgRepository) MaxQueueNumber(ctx context.Context, doctor string, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_number), 0)
		FROM appointments
		WHERE queue_doctor = $1 AND queue_date = $2
	`, doctor, DayStart(day)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max queue number: %w", err)
	}
	return n, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, in NewAppointment, queueNumber int) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_name, doctor_name, time_slot, queue_number, status,
		                          queue_doctor, queue_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $3, $7, now(), now())
		RETURNING `+appointmentColumns,
		id, in.PatientName, in.DoctorName, in.TimeSlot, queueNumber, in.Status, DayStart(in.TimeSlot))

	a, err := scanAppointment(row)
	if err != nil {
		if isQueueKeyViolation(err) {
			return nil, ErrQueueNumberTaken
		}
		return nil, err
	}
	return a, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, id uuid.UUID, changes Changes) (*Appointment, error) {
	var status *string
	if changes.Status != nil {
		s := string(*changes.Status)
		status = &s
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET patient_name = COALESCE($2, patient_name),
		    doctor_name  = COALESCE($3, doctor_name),
		    time_slot    = COALESCE($4, time_slot),
		    status       = COALESCE($5, status),
		    updated_at   = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, changes.PatientName, changes.DoctorName, changes.TimeSlot, status)

	return scanAppointment(row)
}

// UpdateAppointmentStatus locks the row while reading the old status so the
// returned value is the one this update replaced.
func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, Status, error) {
	row := r.pool.QueryRow(ctx, `
		WITH prev AS (
			SELECT status AS prev_status
			FROM appointments
			WHERE id = $1
			FOR UPDATE
		)
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		FROM prev
		WHERE id = $1
		RETURNING `+appointmentColumns+`, prev.prev_status`,
		id, to)

	var from Status
	a, err := scanAppointment(row, &from)
	if err != nil {
		return nil, "", err
	}
	return a, from, nil
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Date != nil {
		where = append(where, "time_slot::date = "+arg(DayStart(*f.Date))+"::date")
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.Doctor != "" {
		where = append(where, "doctor_name = "+arg(f.Doctor))
	}
	switch f.Tab {
	case TabToday:
		where = append(where, "time_slot::date = "+arg(DayStart(f.RefDate))+"::date")
	case TabUpcoming:
		where = append(where, "time_slot::date > "+arg(DayStart(f.RefDate))+"::date")
	case TabPast:
		where = append(where, "time_slot::date < "+arg(DayStart(f.RefDate))+"::date")
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY time_slot, queue_number, created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByDoctorAndDate(ctx context.Context, doctor string, day time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_name = $1
		  AND time_slot BETWEEN $2 AND $3
		ORDER BY queue_number
	`, doctor, DayStart(day), DayEnd(day))
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByDateRange(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE time_slot BETWEEN $1 AND $2
		ORDER BY time_slot, queue_number
	`, DayStart(from), DayEnd(to))
	if err != nil {
		return nil, fmt.Errorf("list appointments by date range: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patient string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_name = $1
		ORDER BY time_slot DESC
	`, patient)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) DistinctDates(ctx context.Context, doctor string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT to_char(time_slot::date, 'YYYY-MM-DD') AS day
		FROM appointments
		WHERE $1 = '' OR doctor_name = $1
		ORDER BY day
	`, doctor)
	if err != nil {
		return nil, fmt.Errorf("list appointment dates: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PgRepository) Doctors(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT doctor_name
		FROM appointments
		ORDER BY doctor_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PgRepository) PatientsSummary(ctx context.Context) ([]PatientSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT patient_name, COUNT(id), MAX(time_slot)
		FROM appointments
		GROUP BY patient_name
		ORDER BY patient_name
	`)
	if err != nil {
		return nil, fmt.Errorf("patients summary: %w", err)
	}
	defer rows.Close()

	result := []PatientSummary{}
	for rows.Next() {
		var ps PatientSummary
		if err := rows.Scan(&ps.Name, &ps.Visits, &ps.LastVisit); err != nil {
			return nil, err
		}
		ps.LastVisit = WallClock(ps.LastVisit)
		result = append(result, ps)
	}
	return result, rows.Err()
}

func (r *PgRepository) CountByDoctor(ctx context.Context, status Status) ([]DoctorCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT doctor_name, COUNT(id)
		FROM appointments
		WHERE $1 = '' OR status = $1
		GROUP BY doctor_name
		ORDER BY doctor_name
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("count by doctor: %w", err)
	}
	defer rows.Close()

	result := []DoctorCount{}
	for rows.Next() {
		var dc DoctorCount
		if err := rows.Scan(&dc.Doctor, &dc.Count); err != nil {
			return nil, err
		}
		result = append(result, dc)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func (r *PgRepository) ListEvents(ctx context.Context, appointmentID uuid.UUID) ([]EventLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, appointment_id, payload, created_at
		FROM event_logs
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list event logs: %w", err)
	}
	defer rows.Close()

	result := []EventLog{}
	for rows.Next() {
		var ev EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
