package api

import (
	"net/http"

	"github.com/hackgods/clinic-queue-backend/internal/appointment"
	"github.com/hackgods/clinic-queue-backend/internal/report"
)

func dailyReportHandler(agg *report.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day, err := appointment.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		daily, err := agg.Daily(r.Context(), day)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDailyReportResponse(daily))
	}
}

func weeklyReportHandler(agg *report.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, err := appointment.ParseDate(r.URL.Query().Get("start_date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", err.Error())
			return
		}

		weekly, err := agg.Weekly(r.Context(), start)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toWeeklyReportResponse(weekly))
	}
}

func doctorWorkloadHandler(agg *report.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := agg.DoctorWorkload(r.Context())
		if err != nil {
			writeInternalError(w, r, err)
			return
		}

		resp := make([]WorkloadResponse, 0, len(counts))
		for _, c := range counts {
			resp = append(resp, WorkloadResponse{Doctor: c.Doctor, Appointments: c.Count})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancellationsHandler(agg *report.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := agg.Cancellations(r.Context())
		if err != nil {
			writeInternalError(w, r, err)
			return
		}

		resp := make([]CancellationResponse, 0, len(counts))
		for _, c := range counts {
			resp = append(resp, CancellationResponse{Doctor: c.Doctor, Cancelled: c.Count})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
