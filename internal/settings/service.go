package settings

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "settings").Logger(),
	}
}

// Get returns the settings record, creating it with defaults on first use.
func (s *Service) Get(ctx context.Context) (*AppSettings, error) {
	out, err := s.repo.GetOrInit(ctx, Defaults())
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return out, nil
}

// Replace validates in and overwrites the whole record with it.
func (s *Service) Replace(ctx context.Context, in AppSettings) (*AppSettings, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	out, err := s.repo.Save(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("replace settings: %w", err)
	}

	s.logger.Info().
		Str("clinic_name", out.ClinicName).
		Str("timezone", out.Timezone).
		Msg("settings replaced")

	return out, nil
}
