package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	config "github.com/postpilot-app/postpilot/configs"
	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/repository"
	"github.com/postpilot-app/postpilot/internal/transfer"
)

// SubscriptionService consumes billing webhook events. A plan change or
// renewal re-bases the plan usage ledger on the new period with the new
// limits; connected-account usage carries over since it is not
// period-scoped.
type SubscriptionService interface {
	HandleSubscription(ctx context.Context, payload *transfer.SubscriptionEvent) error
}

type subscriptionService struct {
	cfg   config.Config
	u     repository.UserRepository
	s     repository.SubscriptionRepository
	usage UsageService
}

func NewSubscriptionService(cfg config.Config, u repository.UserRepository, s repository.SubscriptionRepository, usage UsageService) SubscriptionService {
	return &subscriptionService{
		cfg:   cfg,
		u:     u,
		s:     s,
		usage: usage,
	}
}

// planIDFromProduct maps billing product names onto the static catalog.
func planIDFromProduct(name string) string {
	switch strings.ToLower(name) {
	case "starter":
		return models.PlanStarter
	case "pro":
		return models.PlanPro
	}
	return models.PlanFree
}

func (s *subscriptionService) HandleSubscription(ctx context.Context, payload *transfer.SubscriptionEvent) error {
	switch payload.EventType {
	case "subscription.paid", "subscription.updated":
		customerEmail := payload.Object.Customer.Email

		user, isExist, err := s.u.GetByEmail(ctx, customerEmail)
		if err != nil {
			return fmt.Errorf("fetching user by email failed: %w", err)
		}

		var userID int64
		if !isExist {
			newUser := &models.User{
				Email: customerEmail,
			}
			userID, err = s.u.Create(ctx, nil, newUser)
			if err != nil {
				return err
			}
		} else {
			userID = user.ID
		}

		planID := planIDFromProduct(payload.Object.Product.Name)
		subscriptionInfo := &models.Subscription{
			UserID:             userID,
			SubscriptionID:     payload.Object.ID,
			PlanID:             planID,
			CurrentPeriodStart: payload.Object.CurrentPeriodStartDate,
			CurrentPeriodEnd:   payload.Object.CurrentPeriodEndDate,
			Status:             payload.Object.Status,
		}

		_, exists, err := s.s.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if exists {
			if err := s.s.UpdateSubscription(ctx, subscriptionInfo); err != nil {
				return err
			}
		} else {
			if _, err := s.s.Create(ctx, subscriptionInfo); err != nil {
				return err
			}
		}

		// Re-base the ledger on the new period. Accounts carry over.
		preserve := map[models.UsageType]bool{models.UsageAccounts: true}
		if err := s.usage.ResetForPeriod(ctx, userID, planID,
			payload.Object.CurrentPeriodStartDate, payload.Object.CurrentPeriodEndDate, preserve); err != nil {
			slog.Error("failed to reset usage for new period", "user_id", userID, "error", err)
			return err
		}
	}

	return nil
}
