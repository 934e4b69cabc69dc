// Package settings stores the clinic's single settings record.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

var ErrInvalidSettings = errors.New("invalid settings")

const clockLayout = "15:04"

type AppSettings struct {
	ClinicName          string
	Timezone            string
	EmailNotifications  bool
	SMSReminders        bool
	PushNotifications   bool
	BusinessStart       string
	BusinessEnd         string
	AppointmentDuration int
	TwoFactorAuth       bool
	SessionTimeout      bool
	UpdatedAt           time.Time
}

// Defaults is the record a fresh store starts with.
func Defaults() AppSettings {
	return AppSettings{
		ClinicName:          "Healthcare Clinic",
		Timezone:            "America/New_York",
		EmailNotifications:  true,
		SMSReminders:        true,
		PushNotifications:   false,
		BusinessStart:       "08:00",
		BusinessEnd:         "18:00",
		AppointmentDuration: 30,
		TwoFactorAuth:       false,
		SessionTimeout:      true,
	}
}

// Validate trims the text fields and checks them. Every failure wraps
// ErrInvalidSettings.
func (s *AppSettings) Validate() error {
	s.ClinicName = strings.TrimSpace(s.ClinicName)
	s.Timezone = strings.TrimSpace(s.Timezone)
	s.BusinessStart = strings.TrimSpace(s.BusinessStart)
	s.BusinessEnd = strings.TrimSpace(s.BusinessEnd)

	if s.ClinicName == "" {
		return fmt.Errorf("%w: clinic_name is required", ErrInvalidSettings)
	}
	if s.Timezone == "" {
		return fmt.Errorf("%w: timezone is required", ErrInvalidSettings)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSettings, s.Timezone)
	}

	start, err := time.Parse(clockLayout, s.BusinessStart)
	if err != nil {
		return fmt.Errorf("%w: business_start must be HH:MM", ErrInvalidSettings)
	}
	end, err := time.Parse(clockLayout, s.BusinessEnd)
	if err != nil {
		return fmt.Errorf("%w: business_end must be HH:MM", ErrInvalidSettings)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: business_start must be before business_end", ErrInvalidSettings)
	}

	if s.AppointmentDuration <= 0 {
		return fmt.Errorf("%w: appointment_duration must be positive", ErrInvalidSettings)
	}
	return nil
}
