package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-queue-backend/internal/lock"
)

func newTestService() (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	svc := NewService(repo, lock.NewLocal(time.Second), zerolog.Nop())
	return svc, repo
}

func mustSlot(t *testing.T, raw string) time.Time {
	t.Helper()
	ts, err := ParseTimeSlot(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return ts
}

func create(t *testing.T, svc *Service, patient, doctor, slot string) *Appointment {
	t.Helper()
	a, err := svc.CreateAppointment(context.Background(), NewAppointment{
		PatientName: patient,
		DoctorName:  doctor,
		TimeSlot:    mustSlot(t, slot),
	})
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	return a
}

func TestCreateAppointment_QueuePerDoctorAndDay(t *testing.T) {
	svc, _ := newTestService()

	a1 := create(t, svc, "Sarah Johnson", "Dr. Chen", "2024-12-13T09:00")
	a2 := create(t, svc, "Emma Davis", "Dr. Chen", "2024-12-13T10:30")
	a3 := create(t, svc, "Amanda Garcia", "Dr. Chen", "2024-12-14T09:00")

	if a1.QueueNumber != 1 || a2.QueueNumber != 2 {
		t.Errorf("expected queue numbers 1 and 2, got %d and %d", a1.QueueNumber, a2.QueueNumber)
	}
	if a3.QueueNumber != 1 {
		t.Errorf("expected next day to restart at 1, got %d", a3.QueueNumber)
	}
	if a1.Status != StatusWaiting {
		t.Errorf("expected default status waiting, got %s", a1.Status)
	}
}

func TestCreateAppointment_OtherDoctorUnaffected(t *testing.T) {
	svc, _ := newTestService()

	create(t, svc, "A", "Dr. Chen", "2024-12-13T09:00")
	create(t, svc, "B", "Dr. Chen", "2024-12-13T09:30")
	w := create(t, svc, "C", "Dr. Wilson", "2024-12-13T09:00")
	c := create(t, svc, "D", "Dr. Chen", "2024-12-13T11:00")

	if w.QueueNumber != 1 {
		t.Errorf("expected Dr. Wilson to start at 1, got %d", w.QueueNumber)
	}
	if c.QueueNumber != 3 {
		t.Errorf("expected Dr. Chen third appointment to be 3, got %d", c.QueueNumber)
	}
}

func TestCreateAppointment_DayBoundaries(t *testing.T) {
	svc, _ := newTestService()

	first := create(t, svc, "A", "Dr. Kim", "2024-12-13T00:00:00")
	last := create(t, svc, "B", "Dr. Kim", "2024-12-13T23:59:59")
	next := create(t, svc, "C", "Dr. Kim", "2024-12-14T00:00:00")

	if first.QueueNumber != 1 || last.QueueNumber != 2 {
		t.Errorf("expected 1 and 2 within the day, got %d and %d", first.QueueNumber, last.QueueNumber)
	}
	if next.QueueNumber != 1 {
		t.Errorf("expected midnight of next day to start at 1, got %d", next.QueueNumber)
	}
}

func TestCreateAppointment_OffsetKeepsWallClockDay(t *testing.T) {
	svc, _ := newTestService()

	a := create(t, svc, "A", "Dr. Kim", "2024-12-13T23:30:00-05:00")
	if a.Date() != "2024-12-13" {
		t.Errorf("expected wall clock date 2024-12-13, got %s", a.Date())
	}
}

func TestCreateAppointment_SequentialIsExactRange(t *testing.T) {
	svc, _ := newTestService()

	const n = 25
	for i := 0; i < n; i++ {
		a := create(t, svc, gofakeit.Name(), "Dr. Sharma", fmt.Sprintf("2025-12-20T%02d:%02d", 8+i/4, (i%4)*15))
		if a.QueueNumber != i+1 {
			t.Fatalf("appointment %d got queue number %d", i, a.QueueNumber)
		}
	}
}

func TestCreateAppointment_ConcurrentIsExactRange(t *testing.T) {
	svc, repo := newTestService()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateAppointment(context.Background(), NewAppointment{
				PatientName: fmt.Sprintf("patient-%d", i),
				DoctorName:  "Dr. Verma",
				TimeSlot:    time.Date(2025, 12, 20, 9, i%60, 0, 0, time.UTC),
			})
			if err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	appts, _ := repo.ListByDoctorAndDate(context.Background(), "Dr. Verma", time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC))
	if len(appts) != n {
		t.Fatalf("expected %d appointments, got %d", n, len(appts))
	}
	for i, a := range appts {
		if a.QueueNumber != i+1 {
			t.Fatalf("expected queue number %d at position %d, got %d", i+1, i, a.QueueNumber)
		}
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	svc, _ := newTestService()
	slot := time.Date(2024, 12, 13, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   NewAppointment
		want error
	}{
		{"missing patient", NewAppointment{PatientName: "  ", DoctorName: "Dr. Chen", TimeSlot: slot}, ErrPatientNameRequired},
		{"missing doctor", NewAppointment{PatientName: "A", TimeSlot: slot}, ErrDoctorNameRequired},
		{"missing slot", NewAppointment{PatientName: "A", DoctorName: "Dr. Chen"}, ErrTimeSlotRequired},
		{"bad status", NewAppointment{PatientName: "A", DoctorName: "Dr. Chen", TimeSlot: slot, Status: "Upcoming"}, ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAppointment(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateAppointment_DeleteLeavesGapWithoutReuse(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	create(t, svc, "A", "Dr. Kim", "2024-12-13T09:00")
	b := create(t, svc, "B", "Dr. Kim", "2024-12-13T09:30")
	create(t, svc, "C", "Dr. Kim", "2024-12-13T10:00")

	if err := svc.DeleteAppointment(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	d := create(t, svc, "D", "Dr. Kim", "2024-12-13T10:30")
	if d.QueueNumber != 4 {
		t.Errorf("expected queue number 4 after a deletion, got %d", d.QueueNumber)
	}

	queue, _ := svc.ListQueue(ctx, "Dr. Kim", mustSlot(t, "2024-12-13"))
	var got []int
	for _, a := range queue {
		got = append(got, a.QueueNumber)
	}
	want := []int{1, 3, 4}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected queue %v, got %v", want, got)
	}
}

func TestSetStatus_UnknownID(t *testing.T) {
	svc, repo := newTestService()
	a := create(t, svc, "A", "Dr. Kim", "2024-12-13T09:00")

	_, err := svc.SetStatus(context.Background(), uuid.New(), StatusCancelled)
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}

	stored, _ := repo.GetAppointmentByID(context.Background(), a.ID)
	if stored.Status != StatusWaiting {
		t.Errorf("expected store to be unchanged, got status %s", stored.Status)
	}
}

func TestSetStatus_OnlyStatusChanges(t *testing.T) {
	svc, _ := newTestService()
	a := create(t, svc, "Rahul Mehta", "Dr. Sharma", "2025-12-20T10:30")

	updated, err := svc.SetStatus(context.Background(), a.ID, "Completed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.Status != StatusCompleted {
		t.Errorf("expected status completed, got %s", updated.Status)
	}
	if updated.QueueNumber != a.QueueNumber || updated.PatientName != a.PatientName ||
		updated.DoctorName != a.DoctorName || !updated.TimeSlot.Equal(a.TimeSlot) ||
		!updated.CreatedAt.Equal(a.CreatedAt) {
		t.Errorf("expected only status to change, before=%+v after=%+v", a, updated)
	}
}

func TestSetStatus_RejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestService()
	a := create(t, svc, "A", "Dr. Kim", "2024-12-13T09:00")

	for _, raw := range []string{"", "scheduled", "Upcoming"} {
		if _, err := svc.SetStatus(context.Background(), a.ID, Status(raw)); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("status %q: expected ErrInvalidStatus, got %v", raw, err)
		}
	}
}

func TestSetStatus_RecordsEvent(t *testing.T) {
	svc, _ := newTestService()
	a := create(t, svc, "A", "Dr. Kim", "2024-12-13T09:00")

	if _, err := svc.SetStatus(context.Background(), a.ID, StatusCancelled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, err := svc.Events(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected created + status events, got %d", len(events))
	}
	if events[0].EventType != EventAppointmentCreated || events[1].EventType != EventAppointmentStatusChanged {
		t.Errorf("unexpected event types %s, %s", events[0].EventType, events[1].EventType)
	}
	if string(events[1].Payload) != `{"from":"waiting","to":"cancelled"}` {
		t.Errorf("unexpected payload %s", events[1].Payload)
	}
}

// Concurrent status changes must each record the status they replaced. The
// transitions then chain from the initial status to the final one, which
// shows up as balanced in/out counts per status whatever order the events
// were written in.
func TestSetStatus_ConcurrentTransitionsChain(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	a := create(t, svc, "A", "Dr. Kim", "2024-12-13T09:00")

	const n = 60
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.SetStatus(ctx, a.ID, Statuses[i%len(Statuses)]); err != nil {
				t.Errorf("set status: %v", err)
			}
		}(i)
	}
	wg.Wait()

	final, err := svc.GetAppointment(ctx, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events, err := svc.Events(ctx, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	balance := map[Status]int{}
	transitions := 0
	for _, ev := range events {
		if ev.EventType != EventAppointmentStatusChanged {
			continue
		}
		var p struct {
			From Status `json:"from"`
			To   Status `json:"to"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		balance[p.From]--
		balance[p.To]++
		transitions++
	}

	if transitions != n {
		t.Fatalf("expected %d transitions, got %d", n, transitions)
	}
	for _, s := range Statuses {
		want := 0
		if s == StatusWaiting {
			want--
		}
		if s == final.Status {
			want++
		}
		if balance[s] != want {
			t.Errorf("status %s: in-out balance %d, want %d (balances %v)", s, balance[s], want, balance)
		}
	}
}

func TestUpdateAppointment_KeepsQueueNumber(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	create(t, svc, "A", "Dr. Chen", "2024-12-13T09:00")
	b := create(t, svc, "B", "Dr. Chen", "2024-12-13T10:00")

	newSlot := mustSlot(t, "2024-12-14T09:00")
	newDoctor := "Dr. Wilson"
	updated, err := svc.UpdateAppointment(ctx, b.ID, Changes{TimeSlot: &newSlot, DoctorName: &newDoctor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.QueueNumber != 2 {
		t.Errorf("expected queue number to stay 2, got %d", updated.QueueNumber)
	}
	if updated.DoctorName != "Dr. Wilson" || updated.Date() != "2024-12-14" {
		t.Errorf("expected doctor and day to change, got %s %s", updated.DoctorName, updated.Date())
	}

	// the original queue still hands out numbers after 2
	c := create(t, svc, "C", "Dr. Chen", "2024-12-13T11:00")
	if c.QueueNumber != 3 {
		t.Errorf("expected 3, got %d", c.QueueNumber)
	}
}

func TestUpdateAppointment_NotFound(t *testing.T) {
	svc, _ := newTestService()
	name := "X"
	_, err := svc.UpdateAppointment(context.Background(), uuid.New(), Changes{PatientName: &name})
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestDeleteAppointment_NotFound(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.DeleteAppointment(context.Background(), uuid.New()); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestListAppointments_Filters(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	create(t, svc, "A", "Dr. Chen", "2024-12-12T09:00")
	b := create(t, svc, "B", "Dr. Chen", "2024-12-13T09:00")
	create(t, svc, "C", "Dr. Kim", "2024-12-13T08:00")
	create(t, svc, "D", "Dr. Kim", "2024-12-15T08:00")
	if _, err := svc.SetStatus(ctx, b.ID, StatusCancelled); err != nil {
		t.Fatalf("set status: %v", err)
	}

	day := mustSlot(t, "2024-12-13")
	ref := day

	tests := []struct {
		name string
		f    Filter
		want []string
	}{
		{"all sorted by slot", Filter{}, []string{"A", "C", "B", "D"}},
		{"date", Filter{Date: &day}, []string{"C", "B"}},
		{"status", Filter{Status: StatusCancelled}, []string{"B"}},
		{"doctor", Filter{Doctor: "Dr. Kim"}, []string{"C", "D"}},
		{"today", Filter{Tab: TabToday, RefDate: ref}, []string{"C", "B"}},
		{"upcoming", Filter{Tab: TabUpcoming, RefDate: ref}, []string{"D"}},
		{"past", Filter{Tab: TabPast, RefDate: ref}, []string{"A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appts, err := svc.ListAppointments(ctx, tt.f)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got []string
			for _, a := range appts {
				got = append(got, a.PatientName)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAppointmentDatesAndDoctors(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	create(t, svc, "A", "Dr. Chen", "2024-12-13T09:00")
	create(t, svc, "B", "Dr. Chen", "2024-12-13T10:00")
	create(t, svc, "C", "Dr. Chen", "2024-12-11T10:00")
	create(t, svc, "D", "Dr. Kim", "2024-12-20T10:00")

	dates, _ := svc.AppointmentDates(ctx, "Dr. Chen")
	if fmt.Sprint(dates) != "[2024-12-11 2024-12-13]" {
		t.Errorf("unexpected dates for Dr. Chen: %v", dates)
	}

	all, _ := svc.AppointmentDates(ctx, "")
	if len(all) != 3 {
		t.Errorf("expected 3 distinct dates overall, got %v", all)
	}

	doctors, _ := svc.Doctors(ctx)
	if fmt.Sprint(doctors) != "[Dr. Chen Dr. Kim]" {
		t.Errorf("unexpected doctors: %v", doctors)
	}
}

func TestPatients(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	create(t, svc, "Sarah Johnson", "Dr. Chen", "2024-12-10T09:00")
	create(t, svc, "Sarah Johnson", "Dr. Kim", "2024-12-13T09:00")
	create(t, svc, "Michael Brown", "Dr. Chen", "2024-12-11T09:00")

	patients, err := svc.Patients(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sort.Slice(patients, func(i, j int) bool { return patients[i].Name < patients[j].Name })
	if len(patients) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(patients))
	}
	sarah := patients[1]
	if sarah.Visits != 2 || sarah.LastVisit.Format(DateLayout) != "2024-12-13" {
		t.Errorf("unexpected summary for Sarah: %+v", sarah)
	}

	detail, err := svc.Patient(ctx, "Sarah Johnson")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.TotalVisits != 2 || detail.Appointments[0].Date() != "2024-12-13" {
		t.Errorf("expected most recent visit first, got %+v", detail)
	}

	unknown, _ := svc.Patient(ctx, "Nobody")
	if unknown.TotalVisits != 0 {
		t.Errorf("expected no visits for unknown patient, got %d", unknown.TotalVisits)
	}
}

// racingRepo loses the first few inserts as if another writer had claimed
// the queue number without holding the lock.
type racingRepo struct {
	*MemoryRepository
	losses int
}

func (r *racingRepo) CreateAppointment(ctx context.Context, in NewAppointment, queueNumber int) (*Appointment, error) {
	if r.losses > 0 {
		r.losses--
		return nil, ErrQueueNumberTaken
	}
	return r.MemoryRepository.CreateAppointment(ctx, in, queueNumber)
}

func TestCreateAppointment_RetriesTakenQueueNumber(t *testing.T) {
	repo := &racingRepo{MemoryRepository: NewMemoryRepository(), losses: maxQueueAttempts - 1}
	svc := NewService(repo, lock.NewLocal(time.Second), zerolog.Nop())

	a, err := svc.CreateAppointment(context.Background(), NewAppointment{
		PatientName: "A", DoctorName: "Dr. Kim", TimeSlot: time.Date(2024, 12, 13, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if a.QueueNumber != 1 {
		t.Errorf("expected queue number 1, got %d", a.QueueNumber)
	}
}

func TestCreateAppointment_GivesUpAfterRepeatedConflicts(t *testing.T) {
	repo := &racingRepo{MemoryRepository: NewMemoryRepository(), losses: maxQueueAttempts}
	svc := NewService(repo, lock.NewLocal(time.Second), zerolog.Nop())

	_, err := svc.CreateAppointment(context.Background(), NewAppointment{
		PatientName: "A", DoctorName: "Dr. Kim", TimeSlot: time.Date(2024, 12, 13, 9, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrQueueConflict) {
		t.Errorf("expected ErrQueueConflict, got %v", err)
	}
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return fmt.Errorf("%w: held elsewhere", lock.ErrNotAcquired)
}

func TestCreateAppointment_LockBusy(t *testing.T) {
	svc := NewService(NewMemoryRepository(), busyLocker{}, zerolog.Nop())

	_, err := svc.CreateAppointment(context.Background(), NewAppointment{
		PatientName: "A", DoctorName: "Dr. Kim", TimeSlot: time.Date(2024, 12, 13, 9, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrQueueBusy) {
		t.Errorf("expected ErrQueueBusy, got %v", err)
	}
}

func TestQueueKey(t *testing.T) {
	got := QueueKey("Dr. Chen", time.Date(2024, 12, 13, 15, 4, 0, 0, time.UTC))
	if got != "queue:Dr. Chen:2024-12-13" {
		t.Errorf("unexpected key %q", got)
	}
}
