package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/platform"
)

type PlatformUsageRepository interface {
	GetDailyUsage(ctx context.Context, userID int64, p platform.Platform, day time.Time) (*models.PlatformDailyUsage, error)
	// IncrementScheduledCount upserts the day row with a floor-clamped
	// delta: scheduled_count = GREATEST(scheduled_count + delta, 0).
	// Delta may be negative to release reserved slots.
	IncrementScheduledCount(ctx context.Context, userID int64, p platform.Platform, day time.Time, delta int) error
}

type platformUsageRepository struct {
	db *sql.DB
}

func NewPlatformUsageRepository(db *sql.DB) PlatformUsageRepository {
	return &platformUsageRepository{db: db}
}

func (r *platformUsageRepository) GetDailyUsage(ctx context.Context, userID int64, p platform.Platform, day time.Time) (*models.PlatformDailyUsage, error) {
	query := `
		SELECT id, user_id, platform, day, scheduled_count, created_at, updated_at
		FROM platform_daily_usage
		WHERE user_id = $1 AND platform = $2 AND day = $3
	`
	var u models.PlatformDailyUsage
	err := r.db.QueryRowContext(ctx, query, userID, p, day).
		Scan(&u.ID, &u.UserID, &u.Platform, &u.Day, &u.ScheduledCount, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &u, nil
}

func (r *platformUsageRepository) IncrementScheduledCount(ctx context.Context, userID int64, p platform.Platform, day time.Time, delta int) error {
	query := `
		INSERT INTO platform_daily_usage (user_id, platform, day, scheduled_count)
		VALUES ($1, $2, $3, GREATEST($4, 0))
		ON CONFLICT (user_id, platform, day)
		DO UPDATE SET scheduled_count = GREATEST(platform_daily_usage.scheduled_count + $4, 0),
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, userID, p, day, delta)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
