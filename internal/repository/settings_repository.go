package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
)

type SettingsRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Settings, error)
	Upsert(ctx context.Context, settings *models.Settings) error
}

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetByUserID(ctx context.Context, userID int64) (*models.Settings, error) {
	query := `SELECT id, user_id, timezone, created_at, updated_at FROM settings WHERE user_id = $1`
	var s models.Settings
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&s.ID, &s.UserID, &s.Timezone, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, settings *models.Settings) error {
	query := `
		INSERT INTO settings (user_id, timezone)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET timezone = EXCLUDED.timezone,
			updated_at = $3
	`
	_, err := r.db.ExecContext(ctx, query, settings.UserID, settings.Timezone, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
