package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-queue-backend/internal/appointment"
	"github.com/hackgods/clinic-queue-backend/internal/report"
	"github.com/hackgods/clinic-queue-backend/internal/settings"
)

type CreateAppointmentRequest struct {
	PatientName string `json:"patient_name"`
	DoctorName  string `json:"doctor_name"`
	TimeSlot    string `json:"time_slot"`
	Status      string `json:"status,omitempty"`
}

type UpdateAppointmentRequest struct {
	PatientName *string `json:"patient_name"`
	DoctorName  *string `json:"doctor_name"`
	TimeSlot    *string `json:"time_slot"`
	Status      *string `json:"status"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	PatientName string    `json:"patient_name"`
	DoctorName  string    `json:"doctor_name"`
	TimeSlot    string    `json:"time_slot"`
	QueueNumber int       `json:"queue_number"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type EventResponse struct {
	ID            int64           `json:"id"`
	EventType     string          `json:"event_type"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type PatientSummaryResponse struct {
	Name      string `json:"name"`
	Visits    int    `json:"visits"`
	LastVisit string `json:"last_visit"`
}

type PatientDetailResponse struct {
	PatientName  string                `json:"patient_name"`
	TotalVisits  int                   `json:"total_visits"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type DailyReportResponse struct {
	Date              string                `json:"date"`
	TotalAppointments int                   `json:"total_appointments"`
	ByStatus          map[string]int        `json:"by_status"`
	StatusCounts      map[string]int        `json:"status_counts"`
	Appointments      []AppointmentResponse `json:"appointments"`
}

type WeeklyReportResponse struct {
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Summary   map[string]int `json:"summary"`
}

type WorkloadResponse struct {
	Doctor       string `json:"doctor"`
	Appointments int    `json:"appointments"`
}

type CancellationResponse struct {
	Doctor    string `json:"doctor"`
	Cancelled int    `json:"cancelled"`
}

type SettingsPayload struct {
	ClinicName          string     `json:"clinic_name"`
	Timezone            string     `json:"timezone"`
	EmailNotifications  bool       `json:"email_notifications"`
	SMSReminders        bool       `json:"sms_reminders"`
	PushNotifications   bool       `json:"push_notifications"`
	BusinessStart       string     `json:"business_start"`
	BusinessEnd         string     `json:"business_end"`
	AppointmentDuration int        `json:"appointment_duration"`
	TwoFactorAuth       bool       `json:"two_factor_auth"`
	SessionTimeout      bool       `json:"session_timeout"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		PatientName: a.PatientName,
		DoctorName:  a.DoctorName,
		TimeSlot:    a.TimeSlot.Format(appointment.DateTimeLayout),
		QueueNumber: a.QueueNumber,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func toEventResponses(events []appointment.EventLog) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, EventResponse{
			ID:            ev.ID,
			EventType:     ev.EventType,
			AppointmentID: ev.AppointmentID,
			Payload:       json.RawMessage(ev.Payload),
			CreatedAt:     ev.CreatedAt,
		})
	}
	return out
}

func toDailyReportResponse(d *report.Daily) DailyReportResponse {
	counts := make(map[string]int, len(d.ByStatus))
	for status, n := range d.ByStatus {
		counts[string(status)] = n
	}
	return DailyReportResponse{
		Date:              d.Date.Format(appointment.DateLayout),
		TotalAppointments: d.Total,
		ByStatus:          d.ByBucket,
		StatusCounts:      counts,
		Appointments:      toAppointmentResponses(d.Appointments),
	}
}

func toWeeklyReportResponse(wk *report.Weekly) WeeklyReportResponse {
	summary := make(map[string]int, len(wk.Summary))
	for status, n := range wk.Summary {
		summary[string(status)] = n
	}
	return WeeklyReportResponse{
		StartDate: wk.StartDate.Format(appointment.DateLayout),
		EndDate:   wk.EndDate.Format(appointment.DateLayout),
		Summary:   summary,
	}
}

func toSettingsPayload(s *settings.AppSettings) SettingsPayload {
	p := SettingsPayload{
		ClinicName:          s.ClinicName,
		Timezone:            s.Timezone,
		EmailNotifications:  s.EmailNotifications,
		SMSReminders:        s.SMSReminders,
		PushNotifications:   s.PushNotifications,
		BusinessStart:       s.BusinessStart,
		BusinessEnd:         s.BusinessEnd,
		AppointmentDuration: s.AppointmentDuration,
		TwoFactorAuth:       s.TwoFactorAuth,
		SessionTimeout:      s.SessionTimeout,
	}
	if !s.UpdatedAt.IsZero() {
		updated := s.UpdatedAt
		p.UpdatedAt = &updated
	}
	return p
}

func (p SettingsPayload) toSettings() settings.AppSettings {
	return settings.AppSettings{
		ClinicName:          p.ClinicName,
		Timezone:            p.Timezone,
		EmailNotifications:  p.EmailNotifications,
		SMSReminders:        p.SMSReminders,
		PushNotifications:   p.PushNotifications,
		BusinessStart:       p.BusinessStart,
		BusinessEnd:         p.BusinessEnd,
		AppointmentDuration: p.AppointmentDuration,
		TwoFactorAuth:       p.TwoFactorAuth,
		SessionTimeout:      p.SessionTimeout,
	}
}
