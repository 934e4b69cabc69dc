package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-queue-backend/internal/appointment"
	"github.com/hackgods/clinic-queue-backend/internal/config"
	"github.com/hackgods/clinic-queue-backend/internal/db"
	"github.com/hackgods/clinic-queue-backend/internal/lock"
	"github.com/hackgods/clinic-queue-backend/internal/logging"
	"github.com/hackgods/clinic-queue-backend/internal/settings"
)

type seedOptions struct {
	appointments int
	doctors      int
	patients     int
	days         int
	start        string
}

func main() {
	opts := seedOptions{}

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Fill the database with fake appointments",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.appointments, "appointments", 200, "Number of appointments to create")
	cmd.Flags().IntVar(&opts.doctors, "doctors", 8, "Number of distinct doctors")
	cmd.Flags().IntVar(&opts.patients, "patients", 60, "Number of distinct patients")
	cmd.Flags().IntVar(&opts.days, "days", 14, "Spread appointments over this many days")
	cmd.Flags().StringVar(&opts.start, "start", "", "First day YYYY-MM-DD (default: 7 days ago)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts seedOptions) error {
	if opts.appointments <= 0 || opts.doctors <= 0 || opts.patients <= 0 || opts.days <= 0 {
		return errors.New("appointments, doctors, patients and days must all be positive")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}
	if cfg.UseMemoryStore() {
		return errors.New("POSTGRES_DSN is required")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)

	start := appointment.DayStart(time.Now().AddDate(0, 0, -7))
	if opts.start != "" {
		if start, err = appointment.ParseDate(opts.start); err != nil {
			return err
		}
	}

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if _, err := db.Migrate(connCtx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if _, err := settings.NewService(settings.NewPgRepository(pool), logger).Get(ctx); err != nil {
		return fmt.Errorf("init settings: %w", err)
	}

	svc := appointment.NewService(appointment.NewPgRepository(pool), lock.NewLocal(0), logger)

	faker := gofakeit.New(0)
	doctors := make([]string, opts.doctors)
	for i := range doctors {
		doctors[i] = "Dr. " + faker.LastName()
	}
	patients := make([]string, opts.patients)
	for i := range patients {
		patients[i] = faker.Name()
	}

	logger.Info().Int("appointments", opts.appointments).Str("start", start.Format(appointment.DateLayout)).Msg("seeding")

	statuses := []appointment.Status{
		appointment.StatusWaiting,
		appointment.StatusWaiting,
		appointment.StatusCompleted,
		appointment.StatusCancelled,
	}

	for i := 0; i < opts.appointments; i++ {
		day := start.AddDate(0, 0, faker.Number(0, opts.days-1))
		slot := day.Add(time.Duration(faker.Number(16, 35)) * 30 * time.Minute)

		_, err := svc.CreateAppointment(ctx, appointment.NewAppointment{
			PatientName: patients[faker.Number(0, len(patients)-1)],
			DoctorName:  doctors[faker.Number(0, len(doctors)-1)],
			TimeSlot:    slot,
			Status:      statuses[faker.Number(0, len(statuses)-1)],
		})
		if err != nil {
			return fmt.Errorf("create appointment %d: %w", i+1, err)
		}

		if (i+1)%50 == 0 {
			logger.Info().Msgf("appointments seeded: %d/%d", i+1, opts.appointments)
		}
	}

	logger.Info().Msg("seed complete")
	return nil
}
