package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-queue-backend/internal/appointment"
	"github.com/hackgods/clinic-queue-backend/internal/report"
	"github.com/hackgods/clinic-queue-backend/internal/settings"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Reports      *report.Aggregator
	Settings     *settings.Service
	PgPool       *pgxpool.Pool // nil when running on the in-memory store
	Redis        *redis.Client // nil when the queue lock is local
	Logger       zerolog.Logger
	CORSOrigins  []string
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// The front-end calls everything under /api; both prefixes are served.
	mountRoutes(r, cfg)
	r.Route("/api", func(r chi.Router) {
		mountRoutes(r, cfg)
	})

	return r
}

func mountRoutes(r chi.Router, cfg RouterConfig) {
	appts := cfg.Appointments

	r.Get("/", rootHandler)

	// Appointment endpoints. {key} is a doctor name on GET and an
	// appointment id everywhere else.
	r.Post("/appointments", createAppointmentHandler(appts))
	r.Get("/appointments", listAppointmentsHandler(appts))
	r.Get("/appointments/all", listAllAppointmentsHandler(appts))
	r.Get("/appointments/dates", appointmentDatesHandler(appts))
	r.Get("/appointments/dates/{doctor_name}", appointmentDatesHandler(appts))
	r.Get("/appointments/{key}", doctorQueueHandler(appts))
	r.Put("/appointments/{key}", updateAppointmentHandler(appts))
	r.Delete("/appointments/{key}", deleteAppointmentHandler(appts))
	r.Patch("/appointments/{key}/status", setStatusHandler(appts))
	r.Get("/appointments/{key}/events", appointmentEventsHandler(appts))

	r.Get("/doctors", doctorsHandler(appts))
	r.Get("/patients", patientsHandler(appts))
	r.Get("/patients/{patient_name}", patientHandler(appts))

	// Report endpoints
	r.Get("/reports/daily", dailyReportHandler(cfg.Reports))
	r.Get("/reports/weekly", weeklyReportHandler(cfg.Reports))
	r.Get("/reports/doctor-workload", doctorWorkloadHandler(cfg.Reports))
	r.Get("/reports/cancellations", cancellationsHandler(cfg.Reports))

	// Settings endpoints
	r.Get("/settings", getSettingsHandler(cfg.Settings))
	r.Put("/settings", replaceSettingsHandler(cfg.Settings))
}
