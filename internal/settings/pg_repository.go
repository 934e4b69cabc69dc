package settings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const settingsColumns = `clinic_name, timezone, email_notifications, sms_reminders, push_notifications,
	business_start, business_end, appointment_duration, two_factor_auth, session_timeout, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanSettings(row pgx.Row) (*AppSettings, error) {
	var s AppSettings
	err := row.Scan(
		&s.ClinicName,
		&s.Timezone,
		&s.EmailNotifications,
		&s.SMSReminders,
		&s.PushNotifications,
		&s.BusinessStart,
		&s.BusinessEnd,
		&s.AppointmentDuration,
		&s.TwoFactorAuth,
		&s.SessionTimeout,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func settingsArgs(s AppSettings) []any {
	return []any{
		s.ClinicName,
		s.Timezone,
		s.EmailNotifications,
		s.SMSReminders,
		s.PushNotifications,
		s.BusinessStart,
		s.BusinessEnd,
		s.AppointmentDuration,
		s.TwoFactorAuth,
		s.SessionTimeout,
	}
}

func (r *PgRepository) GetOrInit(ctx context.Context, defaults AppSettings) (*AppSettings, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO app_settings (id, clinic_name, timezone, email_notifications, sms_reminders,
		                          push_notifications, business_start, business_end,
		                          appointment_duration, two_factor_auth, session_timeout)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, settingsArgs(defaults)...)
	if err != nil {
		return nil, fmt.Errorf("init settings: %w", err)
	}

	s, err := scanSettings(r.pool.QueryRow(ctx, `SELECT `+settingsColumns+` FROM app_settings WHERE id = 1`))
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

func (r *PgRepository) Save(ctx context.Context, in AppSettings) (*AppSettings, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO app_settings (id, clinic_name, timezone, email_notifications, sms_reminders,
		                          push_notifications, business_start, business_end,
		                          appointment_duration, two_factor_auth, session_timeout)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET clinic_name          = EXCLUDED.clinic_name,
		    timezone             = EXCLUDED.timezone,
		    email_notifications  = EXCLUDED.email_notifications,
		    sms_reminders        = EXCLUDED.sms_reminders,
		    push_notifications   = EXCLUDED.push_notifications,
		    business_start       = EXCLUDED.business_start,
		    business_end         = EXCLUDED.business_end,
		    appointment_duration = EXCLUDED.appointment_duration,
		    two_factor_auth      = EXCLUDED.two_factor_auth,
		    session_timeout      = EXCLUDED.session_timeout,
		    updated_at           = now()
		RETURNING `+settingsColumns,
		settingsArgs(in)...)

	s, err := scanSettings(row)
	if err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return s, nil
}
