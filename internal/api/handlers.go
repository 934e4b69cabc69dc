package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-queue-backend/internal/appointment"
)

func rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "Backend running"})
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if strings.TrimSpace(req.TimeSlot) == "" {
			writeError(w, http.StatusBadRequest, "time_slot_required", appointment.ErrTimeSlotRequired.Error())
			return
		}
		slot, err := appointment.ParseTimeSlot(req.TimeSlot)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_slot", err.Error())
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), appointment.NewAppointment{
			PatientName: req.PatientName,
			DoctorName:  req.DoctorName,
			TimeSlot:    slot,
			Status:      appointment.Status(req.Status),
		})
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var f appointment.Filter

		if raw := q.Get("date"); raw != "" {
			d, err := appointment.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
				return
			}
			f.Date = &d
		}
		if raw := q.Get("status"); raw != "" {
			s, err := appointment.ParseStatus(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
				return
			}
			f.Status = s
		}
		f.Doctor = strings.TrimSpace(q.Get("doctor"))

		tab, err := appointment.ParseTab(q.Get("tab"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_tab", err.Error())
			return
		}
		f.Tab = tab
		if raw := q.Get("ref_date"); raw != "" {
			d, err := appointment.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_ref_date", err.Error())
				return
			}
			f.RefDate = d
		}

		appts, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func listAllAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appts, err := svc.ListAppointments(r.Context(), appointment.Filter{})
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func appointmentDatesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctor, ok := nameParam(w, r, "doctor_name")
		if !ok {
			return
		}

		dates, err := svc.AppointmentDates(r.Context(), doctor)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dates)
	}
}

// doctorQueueHandler serves GET /appointments/{key}, where key is a doctor
// name. The same segment holds an appointment id for PUT and DELETE.
func doctorQueueHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctor, ok := nameParam(w, r, "key")
		if !ok {
			return
		}
		day, err := appointment.ParseDate(r.URL.Query().Get("date_str"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		appts, err := svc.ListQueue(r.Context(), doctor, day)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func updateAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		changes := appointment.Changes{
			PatientName: req.PatientName,
			DoctorName:  req.DoctorName,
		}
		if req.TimeSlot != nil {
			slot, err := appointment.ParseTimeSlot(*req.TimeSlot)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_time_slot", err.Error())
				return
			}
			changes.TimeSlot = &slot
		}
		if req.Status != nil {
			status := appointment.Status(*req.Status)
			changes.Status = &status
		}

		appt, err := svc.UpdateAppointment(r.Context(), id, changes)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteAppointment(r.Context(), id); err != nil {
			handleAppointmentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Appointment deleted"})
	}
}

// setStatusHandler takes the status from the query string or, failing that,
// from a JSON body. An unknown id answers 200 with an error body, which is
// what the front-end checks for.
func setStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		status := r.URL.Query().Get("status")
		if status == "" && r.Body != nil {
			var req StatusRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
			status = req.Status
		}

		_, err := svc.SetStatus(r.Context(), id, appointment.Status(status))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, MessageResponse{Message: "Status updated"})
		case errors.Is(err, appointment.ErrAppointmentNotFound):
			writeJSON(w, http.StatusOK, ErrorResponse{Error: "Appointment not found"})
		default:
			handleAppointmentError(w, r, err)
		}
	}
}

func appointmentEventsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		events, err := svc.Events(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toEventResponses(events))
	}
}

func doctorsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.Doctors(r.Context())
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doctors)
	}
}

func patientsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patients, err := svc.Patients(r.Context())
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		resp := make([]PatientSummaryResponse, 0, len(patients))
		for _, p := range patients {
			resp = append(resp, PatientSummaryResponse{
				Name:      p.Name,
				Visits:    p.Visits,
				LastVisit: p.LastVisit.Format(appointment.DateLayout),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func patientHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := nameParam(w, r, "patient_name")
		if !ok {
			return
		}

		detail, err := svc.Patient(r.Context(), name)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, PatientDetailResponse{
			PatientName:  detail.PatientName,
			TotalVisits:  detail.TotalVisits,
			Appointments: toAppointmentResponses(detail.Appointments),
		})
	}
}

// nameParam returns a free-text path segment such as a doctor or patient
// name. chi matches on the escaped path whenever the request needed one (a
// name containing "&" or "/" sent as %26 or %2F), so the segment is decoded
// here in that case.
func nameParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	raw := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return raw, true
	}
	name, err := url.PathUnescape(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_path", "malformed escape in "+key)
		return "", false
	}
	return name, true
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleAppointmentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, appointment.ErrPatientNameRequired):
		writeError(w, http.StatusBadRequest, "patient_name_required", err.Error())
	case errors.Is(err, appointment.ErrDoctorNameRequired):
		writeError(w, http.StatusBadRequest, "doctor_name_required", err.Error())
	case errors.Is(err, appointment.ErrTimeSlotRequired):
		writeError(w, http.StatusBadRequest, "time_slot_required", err.Error())
	case errors.Is(err, appointment.ErrQueueBusy):
		writeError(w, http.StatusConflict, "queue_busy", err.Error())
	case errors.Is(err, appointment.ErrQueueConflict):
		writeError(w, http.StatusConflict, "queue_conflict", err.Error())
	default:
		writeInternalError(w, r, err)
	}
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
