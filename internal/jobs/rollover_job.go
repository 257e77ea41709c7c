package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/repository"
	"github.com/postpilot-app/postpilot/internal/service"
)

// RolloverJob re-bases plan usage ledgers when a billing period lapses
// without a webhook renewal. Sent and scheduled counters start from
// zero in the new period; connected accounts carry over.
type RolloverJob struct {
	sub   repository.SubscriptionRepository
	usage service.UsageService
}

func NewRolloverJob(sub repository.SubscriptionRepository, usage service.UsageService) *RolloverJob {
	return &RolloverJob{sub: sub, usage: usage}
}

func (c *RolloverJob) RollOverPeriods() {
	ctx := context.Background()

	expired, err := c.sub.ListExpired(ctx, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return
	}

	preserve := map[models.UsageType]bool{models.UsageAccounts: true}
	for _, sub := range expired {
		length := sub.CurrentPeriodEnd.Sub(sub.CurrentPeriodStart)
		newStart := sub.CurrentPeriodEnd
		newEnd := newStart.Add(length)

		if err := c.usage.ResetForPeriod(ctx, sub.UserID, sub.PlanID, newStart, newEnd, preserve); err != nil {
			slog.Error("failed to roll over usage period", "user_id", sub.UserID, "error", err)
			continue
		}

		sub.CurrentPeriodStart = newStart
		sub.CurrentPeriodEnd = newEnd
		if err := c.sub.UpdateSubscription(ctx, sub); err != nil {
			slog.Error("failed to advance subscription period", "user_id", sub.UserID, "error", err)
		}
	}
}
