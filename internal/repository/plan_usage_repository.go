package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
)

type PlanUsageRepository interface {
	GetUsage(ctx context.Context, userID int64, periodStart, periodEnd time.Time) ([]*models.PlanUsage, error)
	GetUsageByType(ctx context.Context, userID int64, usageType models.UsageType, periodStart, periodEnd time.Time) (*models.PlanUsage, error)
	// GetLatestByType returns the most recent ledger row of this type
	// regardless of period, used to carry non-period-scoped counters
	// across a rollover.
	GetLatestByType(ctx context.Context, userID int64, usageType models.UsageType) (*models.PlanUsage, error)
	// AdjustUsage applies a clamped read-modify-write in a single atomic
	// statement: used = LEAST(GREATEST(used + delta, 0), usage_limit).
	// Returns the row after the adjustment, or nil when no ledger row
	// exists for the period.
	AdjustUsage(ctx context.Context, userID int64, usageType models.UsageType, delta int, periodStart, periodEnd time.Time) (*models.PlanUsage, error)
	// Upsert creates or re-bases the ledger row for a period. When
	// preserveUsed is true the current used count carries over (connected
	// accounts are not period-scoped).
	Upsert(ctx context.Context, usage *models.PlanUsage, preserveUsed bool) error
}

type planUsageRepository struct {
	db *sql.DB
}

func NewPlanUsageRepository(db *sql.DB) PlanUsageRepository {
	return &planUsageRepository{db: db}
}

const planUsageColumns = `id, user_id, plan_id, usage_type, period_start, period_end, used, usage_limit, created_at, updated_at`

func scanPlanUsage(row interface{ Scan(...any) error }) (*models.PlanUsage, error) {
	var u models.PlanUsage
	err := row.Scan(&u.ID, &u.UserID, &u.PlanID, &u.UsageType, &u.PeriodStart, &u.PeriodEnd, &u.Used, &u.Limit, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *planUsageRepository) GetUsage(ctx context.Context, userID int64, periodStart, periodEnd time.Time) ([]*models.PlanUsage, error) {
	query := `
		SELECT ` + planUsageColumns + `
		FROM plan_usage
		WHERE user_id = $1 AND period_start = $2 AND period_end = $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, periodStart, periodEnd)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var usages []*models.PlanUsage
	for rows.Next() {
		u, err := scanPlanUsage(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, nil
}

func (r *planUsageRepository) GetUsageByType(ctx context.Context, userID int64, usageType models.UsageType, periodStart, periodEnd time.Time) (*models.PlanUsage, error) {
	query := `
		SELECT ` + planUsageColumns + `
		FROM plan_usage
		WHERE user_id = $1 AND usage_type = $2 AND period_start = $3 AND period_end = $4
	`
	u, err := scanPlanUsage(r.db.QueryRowContext(ctx, query, userID, usageType, periodStart, periodEnd))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return u, nil
}

func (r *planUsageRepository) GetLatestByType(ctx context.Context, userID int64, usageType models.UsageType) (*models.PlanUsage, error) {
	query := `
		SELECT ` + planUsageColumns + `
		FROM plan_usage
		WHERE user_id = $1 AND usage_type = $2
		ORDER BY period_end DESC
		LIMIT 1
	`
	u, err := scanPlanUsage(r.db.QueryRowContext(ctx, query, userID, usageType))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return u, nil
}

func (r *planUsageRepository) AdjustUsage(ctx context.Context, userID int64, usageType models.UsageType, delta int, periodStart, periodEnd time.Time) (*models.PlanUsage, error) {
	query := `
		UPDATE plan_usage
		SET used = LEAST(GREATEST(used + $1, 0), usage_limit),
			updated_at = $2
		WHERE user_id = $3 AND usage_type = $4 AND period_start = $5 AND period_end = $6
		RETURNING ` + planUsageColumns + `
	`
	u, err := scanPlanUsage(r.db.QueryRowContext(ctx, query, delta, time.Now(), userID, usageType, periodStart, periodEnd))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return u, nil
}

func (r *planUsageRepository) Upsert(ctx context.Context, usage *models.PlanUsage, preserveUsed bool) error {
	used := "0"
	if preserveUsed {
		used = "plan_usage.used"
	}
	query := `
		INSERT INTO plan_usage (user_id, plan_id, usage_type, period_start, period_end, used, usage_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, usage_type, period_start, period_end)
		DO UPDATE SET plan_id = EXCLUDED.plan_id,
			usage_limit = EXCLUDED.usage_limit,
			used = LEAST(` + used + `, EXCLUDED.usage_limit),
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, usage.UserID, usage.PlanID, usage.UsageType, usage.PeriodStart, usage.PeriodEnd, usage.Used, usage.Limit)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
