// Package report derives daily, weekly and per-doctor summaries from the
// appointment store. It only reads.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/clinic-queue-backend/internal/appointment"
)

// Source is the read side of the appointment store the reports need.
type Source interface {
	ListByDateRange(ctx context.Context, from, to time.Time) ([]appointment.Appointment, error)
	CountByDoctor(ctx context.Context, status appointment.Status) ([]appointment.DoctorCount, error)
}

const (
	BucketScheduled = "scheduled"
	BucketConfirmed = "confirmed"
	BucketCancelled = "cancelled"
)

// dailyBuckets maps the daily report's bucket labels, which the front-end
// reads, onto the stored status vocabulary.
var dailyBuckets = []struct {
	label  string
	status appointment.Status
}{
	{BucketScheduled, appointment.StatusWaiting},
	{BucketConfirmed, appointment.StatusCompleted},
	{BucketCancelled, appointment.StatusCancelled},
}

type Daily struct {
	Date         time.Time
	Total        int
	ByBucket     map[string]int
	ByStatus     map[appointment.Status]int
	Appointments []appointment.Appointment
}

type Weekly struct {
	StartDate time.Time
	EndDate   time.Time
	Summary   map[appointment.Status]int
}

type DoctorCount = appointment.DoctorCount

type Aggregator struct {
	src Source
}

func NewAggregator(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// Daily counts the appointments whose time slot falls on day.
func (a *Aggregator) Daily(ctx context.Context, day time.Time) (*Daily, error) {
	day = appointment.DayStart(day)
	appts, err := a.src.ListByDateRange(ctx, day, day)
	if err != nil {
		return nil, fmt.Errorf("daily report: %w", err)
	}

	byStatus := countStatuses(appts)
	byBucket := make(map[string]int, len(dailyBuckets))
	for _, b := range dailyBuckets {
		byBucket[b.label] = byStatus[b.status]
	}

	return &Daily{
		Date:         day,
		Total:        len(appts),
		ByBucket:     byBucket,
		ByStatus:     byStatus,
		Appointments: appts,
	}, nil
}

// Weekly counts statuses over the seven days starting at start. Only
// statuses that occur in the window appear in the summary.
func (a *Aggregator) Weekly(ctx context.Context, start time.Time) (*Weekly, error) {
	start = appointment.DayStart(start)
	end := start.AddDate(0, 0, 6)

	appts, err := a.src.ListByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("weekly report: %w", err)
	}

	return &Weekly{
		StartDate: start,
		EndDate:   end,
		Summary:   countStatuses(appts),
	}, nil
}

// DoctorWorkload counts every appointment per doctor.
func (a *Aggregator) DoctorWorkload(ctx context.Context) ([]DoctorCount, error) {
	counts, err := a.src.CountByDoctor(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("doctor workload report: %w", err)
	}
	return counts, nil
}

// Cancellations counts cancelled appointments per doctor. Doctors without
// cancellations are omitted.
func (a *Aggregator) Cancellations(ctx context.Context) ([]DoctorCount, error) {
	counts, err := a.src.CountByDoctor(ctx, appointment.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancellation report: %w", err)
	}

	out := counts[:0]
	for _, c := range counts {
		if c.Count > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

func countStatuses(appts []appointment.Appointment) map[appointment.Status]int {
	counts := make(map[appointment.Status]int)
	for _, a := range appts {
		counts[a.Status]++
	}
	return counts
}
