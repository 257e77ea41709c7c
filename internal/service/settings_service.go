package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/repository"
)

// SettingsService holds per-user preferences. Its main job here is the
// timezone lookup used to validate scheduled-time boundaries.
type SettingsService interface {
	GetSettings(ctx context.Context, userID int64) (*models.Settings, error)
	UpdateTimezone(ctx context.Context, userID int64, timezone string) error
	// GetLocation resolves the user's IANA timezone, defaulting to UTC
	// when unset or invalid.
	GetLocation(ctx context.Context, userID int64) *time.Location
}

type settingsService struct {
	sr repository.SettingsRepository
}

func NewSettingsService(sr repository.SettingsRepository) SettingsService {
	return &settingsService{sr: sr}
}

func (s *settingsService) GetSettings(ctx context.Context, userID int64) (*models.Settings, error) {
	if userID == 0 {
		err := errors.New("user is not valid")
		slog.Info(err.Error())
		return nil, err
	}
	settings, err := s.sr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return &models.Settings{UserID: userID, Timezone: "UTC"}, nil
	}
	return settings, nil
}

func (s *settingsService) UpdateTimezone(ctx context.Context, userID int64, timezone string) error {
	if _, err := time.LoadLocation(timezone); err != nil {
		return validationErrorf("unknown timezone %q", timezone)
	}
	return s.sr.Upsert(ctx, &models.Settings{UserID: userID, Timezone: timezone})
}

func (s *settingsService) GetLocation(ctx context.Context, userID int64) *time.Location {
	settings, err := s.sr.GetByUserID(ctx, userID)
	if err != nil || settings == nil || settings.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		slog.Info(err.Error())
		return time.UTC
	}
	return loc
}
