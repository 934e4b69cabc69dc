package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type queueKey struct {
	doctor string
	day    string
}

type memoryRecord struct {
	appt Appointment
	key  queueKey
}

// MemoryRepository keeps appointments in process memory. It backs the
// api-server when no Postgres DSN is configured and is used in tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*memoryRecord
	taken   map[queueKey]map[int]uuid.UUID
	events  []EventLog
	nextEv  int64
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[uuid.UUID]*memoryRecord),
		taken:   make(map[queueKey]map[int]uuid.UUID),
		now:     time.Now,
	}
}

func (r *MemoryRepository) MaxQueueNumber(_ context.Context, doctor string, day time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	highest := 0
	for n := range r.taken[queueKey{doctor: doctor, day: day.Format(DateLayout)}] {
		if n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, in NewAppointment, queueNumber int) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := queueKey{doctor: in.DoctorName, day: in.TimeSlot.Format(DateLayout)}
	if _, ok := r.taken[key][queueNumber]; ok {
		return nil, ErrQueueNumberTaken
	}

	now := r.now().UTC()
	a := Appointment{
		ID:          uuid.New(),
		PatientName: in.PatientName,
		DoctorName:  in.DoctorName,
		TimeSlot:    in.TimeSlot,
		QueueNumber: queueNumber,
		Status:      in.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if r.taken[key] == nil {
		r.taken[key] = make(map[int]uuid.UUID)
	}
	r.taken[key][queueNumber] = a.ID
	r.records[a.ID] = &memoryRecord{appt: a, key: key}

	return &a, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a := rec.appt
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointment(_ context.Context, id uuid.UUID, changes Changes) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if changes.PatientName != nil {
		rec.appt.PatientName = *changes.PatientName
	}
	if changes.DoctorName != nil {
		rec.appt.DoctorName = *changes.DoctorName
	}
	if changes.TimeSlot != nil {
		rec.appt.TimeSlot = *changes.TimeSlot
	}
	if changes.Status != nil {
		rec.appt.Status = *changes.Status
	}
	rec.appt.UpdatedAt = r.now().UTC()

	a := rec.appt
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, to Status) (*Appointment, Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, "", ErrAppointmentNotFound
	}
	from := rec.appt.Status
	rec.appt.Status = to
	rec.appt.UpdatedAt = r.now().UTC()

	a := rec.appt
	return &a, from, nil
}

func (r *MemoryRepository) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	delete(r.taken[rec.key], rec.appt.QueueNumber)
	delete(r.records, id)
	return nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f Filter) ([]Appointment, error) {
	return r.collect(func(a Appointment) bool { return f.Matches(a) }, byTimeSlot), nil
}

func (r *MemoryRepository) ListByDoctorAndDate(_ context.Context, doctor string, day time.Time) ([]Appointment, error) {
	from, to := DayStart(day), DayEnd(day)
	return r.collect(func(a Appointment) bool {
		return a.DoctorName == doctor && inRange(a.TimeSlot, from, to)
	}, byQueueNumber), nil
}

func (r *MemoryRepository) ListByDateRange(_ context.Context, from, to time.Time) ([]Appointment, error) {
	from, to = DayStart(from), DayEnd(to)
	return r.collect(func(a Appointment) bool { return inRange(a.TimeSlot, from, to) }, byTimeSlot), nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patient string) ([]Appointment, error) {
	out := r.collect(func(a Appointment) bool { return a.PatientName == patient }, byTimeSlot)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MemoryRepository) DistinctDates(_ context.Context, doctor string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, rec := range r.records {
		if doctor != "" && rec.appt.DoctorName != doctor {
			continue
		}
		seen[rec.appt.Date()] = struct{}{}
	}
	return sortedKeys(seen), nil
}

func (r *MemoryRepository) Doctors(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, rec := range r.records {
		seen[rec.appt.DoctorName] = struct{}{}
	}
	return sortedKeys(seen), nil
}

func (r *MemoryRepository) PatientsSummary(_ context.Context) ([]PatientSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := make(map[string]*PatientSummary)
	for _, rec := range r.records {
		a := rec.appt
		ps, ok := byName[a.PatientName]
		if !ok {
			ps = &PatientSummary{Name: a.PatientName}
			byName[a.PatientName] = ps
		}
		ps.Visits++
		if a.TimeSlot.After(ps.LastVisit) {
			ps.LastVisit = a.TimeSlot
		}
	}

	out := make([]PatientSummary, 0, len(byName))
	for _, ps := range byName {
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) CountByDoctor(_ context.Context, status Status) ([]DoctorCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, rec := range r.records {
		if status != "" && rec.appt.Status != status {
			continue
		}
		counts[rec.appt.DoctorName]++
	}

	out := make([]DoctorCount, 0, len(counts))
	for doctor, n := range counts {
		out = append(out, DoctorCount{Doctor: doctor, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Doctor < out[j].Doctor })
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEv++
	ev.ID = r.nextEv
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now().UTC()
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *MemoryRepository) ListEvents(_ context.Context, appointmentID uuid.UUID) ([]EventLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []EventLog
	for _, ev := range r.events {
		if ev.AppointmentID != nil && *ev.AppointmentID == appointmentID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *MemoryRepository) collect(keep func(Appointment) bool, less func(a, b Appointment) bool) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Appointment, 0, len(r.records))
	for _, rec := range r.records {
		if keep(rec.appt) {
			out = append(out, rec.appt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byTimeSlot(a, b Appointment) bool {
	if !a.TimeSlot.Equal(b.TimeSlot) {
		return a.TimeSlot.Before(b.TimeSlot)
	}
	if a.QueueNumber != b.QueueNumber {
		return a.QueueNumber < b.QueueNumber
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func byQueueNumber(a, b Appointment) bool {
	return a.QueueNumber < b.QueueNumber
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
