package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
)

type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Subscription, bool, error)
	Create(ctx context.Context, subscription *models.Subscription) (int64, error)
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	ListExpired(ctx context.Context, before time.Time) ([]*models.Subscription, error)
}

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByUserID(ctx context.Context, userID int64) (*models.Subscription, bool, error) {
	var s models.Subscription
	query := `
		SELECT id, user_id, subscription_id, plan_id, current_period_start, current_period_end, status
		FROM subscriptions WHERE user_id = $1
	`
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&s.ID, &s.UserID, &s.SubscriptionID, &s.PlanID, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}
	return &s, true, nil
}

func (r *subscriptionRepository) Create(ctx context.Context, subscription *models.Subscription) (int64, error) {
	query := `
		INSERT INTO subscriptions (user_id, subscription_id, plan_id, current_period_start, current_period_end, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, subscription.UserID, subscription.SubscriptionID, subscription.PlanID,
		subscription.CurrentPeriodStart, subscription.CurrentPeriodEnd, subscription.Status).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *subscriptionRepository) ListExpired(ctx context.Context, before time.Time) ([]*models.Subscription, error) {
	query := `
		SELECT id, user_id, subscription_id, plan_id, current_period_start, current_period_end, status
		FROM subscriptions WHERE current_period_end < $1 AND status = 'active'
	`
	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		var s models.Subscription
		err := rows.Scan(&s.ID, &s.UserID, &s.SubscriptionID, &s.PlanID, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.Status)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		subs = append(subs, &s)
	}
	return subs, nil
}

func (r *subscriptionRepository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET subscription_id = $1,
			plan_id = $2,
			current_period_start = $3,
			current_period_end = $4,
			status = $5,
			updated_at = $6
		WHERE user_id = $7
	`
	_, err := r.db.ExecContext(ctx, query, subscription.SubscriptionID, subscription.PlanID,
		subscription.CurrentPeriodStart, subscription.CurrentPeriodEnd, subscription.Status, time.Now(), subscription.UserID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}
