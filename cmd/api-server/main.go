package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-queue-backend/internal/api"
	"github.com/hackgods/clinic-queue-backend/internal/appointment"
	"github.com/hackgods/clinic-queue-backend/internal/config"
	"github.com/hackgods/clinic-queue-backend/internal/db"
	"github.com/hackgods/clinic-queue-backend/internal/lock"
	"github.com/hackgods/clinic-queue-backend/internal/logging"
	redisclient "github.com/hackgods/clinic-queue-backend/internal/redis"
	"github.com/hackgods/clinic-queue-backend/internal/report"
	"github.com/hackgods/clinic-queue-backend/internal/settings"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "api-server",
		Short:        "Clinic appointment queue API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load error: %w", err)
			}
			if cfg.UseMemoryStore() {
				return errors.New("POSTGRES_DSN is required to migrate")
			}
			logger := logging.New(cfg.Env, cfg.LogLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := db.Migrate(ctx, pool)
			if err != nil {
				return err
			}
			logger.Info().Int("applied", n).Msg("migrations complete")
			return nil
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}

	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("queue_lock", cfg.QueueLock).
		Bool("memory_store", cfg.UseMemoryStore()).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		pgPool       *pgxpool.Pool
		apptRepo     appointment.Repository
		settingsRepo settings.Repository
	)

	if cfg.UseMemoryStore() {
		logger.Warn().Msg("POSTGRES_DSN not set; appointments are kept in memory")
		apptRepo = appointment.NewMemoryRepository()
		settingsRepo = settings.NewMemoryRepository()
	} else {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 30*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns)
		if err != nil {
			cancelPg()
			return fmt.Errorf("postgres connection error: %w", err)
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to Postgres")

		applied, err := db.Migrate(pgCtx, pgPool)
		cancelPg()
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Int("applied", applied).Msg("schema up to date")

		apptRepo = appointment.NewPgRepository(pgPool)
		settingsRepo = settings.NewPgRepository(pgPool)
	}

	var (
		rdb    *redis.Client
		locker lock.Locker
	)

	switch cfg.QueueLock {
	case config.QueueLockRedis:
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("redis connection error: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
	default:
		locker = lock.NewLocal(cfg.LockWait)
	}

	handler := api.NewRouter(api.RouterConfig{
		Appointments: appointment.NewService(apptRepo, locker, logger),
		Reports:      report.NewAggregator(apptRepo),
		Settings:     settings.NewService(settingsRepo, logger),
		PgPool:       pgPool,
		Redis:        rdb,
		Logger:       logger,
		CORSOrigins:  cfg.CORSOrigins,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return serve(rootCtx, srv, cfg.ShutdownTimeout, logger)
}

func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
