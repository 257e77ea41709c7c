package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/repository"
)

// UsageService is the plan usage ledger: monthly per-user counters
// (sent, scheduled, accounts, ai) enforced against the subscription
// plan. Validation is a non-mutating read; the mutating adjust happens
// only after every check for the operation has passed.
type UsageService interface {
	CurrentPeriod(ctx context.Context, userID int64) (*BillingPeriod, error)
	GetUsage(ctx context.Context, userID int64) (map[models.UsageType]*models.PlanUsage, error)
	// ValidateCapacity returns a *QuotaExceededError when used+requested
	// would exceed the plan limit. Nothing is reserved.
	ValidateCapacity(ctx context.Context, userID int64, usageType models.UsageType, requested int) error
	// AdjustUsage applies a clamped delta, creating the period's ledger
	// row lazily on first use.
	AdjustUsage(ctx context.Context, userID int64, usageType models.UsageType, delta int) (*models.PlanUsage, error)
	// ResetForPeriod re-bases all counters on a new billing period,
	// carrying forward the usage types in preserve (connected accounts
	// are not period-scoped).
	ResetForPeriod(ctx context.Context, userID int64, planID string, periodStart, periodEnd time.Time, preserve map[models.UsageType]bool) error
}

// BillingPeriod is the active cycle the ledger rows are keyed by.
type BillingPeriod struct {
	PlanID string
	Start  time.Time
	End    time.Time
}

type usageService struct {
	pu repository.PlanUsageRepository
	sb repository.SubscriptionRepository
}

func NewUsageService(pu repository.PlanUsageRepository, sb repository.SubscriptionRepository) UsageService {
	return &usageService{pu: pu, sb: sb}
}

func (s *usageService) CurrentPeriod(ctx context.Context, userID int64) (*BillingPeriod, error) {
	sub, ok, err := s.sb.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching subscription: %w", err)
	}
	if ok && sub.Status == "active" {
		return &BillingPeriod{PlanID: sub.PlanID, Start: sub.CurrentPeriodStart, End: sub.CurrentPeriodEnd}, nil
	}

	// Free users run on calendar months.
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return &BillingPeriod{PlanID: models.PlanFree, Start: start, End: start.AddDate(0, 1, 0)}, nil
}

// ensureRow lazily creates the ledger row for the period on first use.
func (s *usageService) ensureRow(ctx context.Context, userID int64, period *BillingPeriod, usageType models.UsageType) (*models.PlanUsage, error) {
	usage, err := s.pu.GetUsageByType(ctx, userID, usageType, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	if usage != nil {
		return usage, nil
	}

	limits := models.LimitsForPlan(period.PlanID)
	row := &models.PlanUsage{
		UserID:      userID,
		PlanID:      period.PlanID,
		UsageType:   usageType,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Used:        0,
		Limit:       limits.For(usageType),
	}
	if err := s.pu.Upsert(ctx, row, false); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *usageService) GetUsage(ctx context.Context, userID int64) (map[models.UsageType]*models.PlanUsage, error) {
	period, err := s.CurrentPeriod(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make(map[models.UsageType]*models.PlanUsage, len(models.AllUsageTypes))
	for _, ut := range models.AllUsageTypes {
		usage, err := s.ensureRow(ctx, userID, period, ut)
		if err != nil {
			return nil, err
		}
		out[ut] = usage
	}
	return out, nil
}

func (s *usageService) ValidateCapacity(ctx context.Context, userID int64, usageType models.UsageType, requested int) error {
	if requested <= 0 {
		return nil
	}

	period, err := s.CurrentPeriod(ctx, userID)
	if err != nil {
		return err
	}
	usage, err := s.ensureRow(ctx, userID, period, usageType)
	if err != nil {
		return err
	}

	if usage.Used+requested > usage.Limit {
		return &QuotaExceededError{
			Scope:          QuotaScopePlan,
			UsageType:      string(usageType),
			Current:        usage.Used,
			Requested:      requested,
			Limit:          usage.Limit,
			AvailableSlots: max(usage.Limit-usage.Used, 0),
		}
	}
	return nil
}

func (s *usageService) AdjustUsage(ctx context.Context, userID int64, usageType models.UsageType, delta int) (*models.PlanUsage, error) {
	period, err := s.CurrentPeriod(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ensureRow(ctx, userID, period, usageType); err != nil {
		return nil, err
	}

	usage, err := s.pu.AdjustUsage(ctx, userID, usageType, delta, period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("adjusting %s usage: %w", usageType, err)
	}
	return usage, nil
}

func (s *usageService) ResetForPeriod(ctx context.Context, userID int64, planID string, periodStart, periodEnd time.Time, preserve map[models.UsageType]bool) error {
	limits := models.LimitsForPlan(planID)

	for _, ut := range models.AllUsageTypes {
		used := 0
		if preserve[ut] {
			// Carry the count forward from whatever period the row
			// previously belonged to.
			prev, err := s.pu.GetLatestByType(ctx, userID, ut)
			if err == nil && prev != nil {
				used = prev.Used
			}
		}
		row := &models.PlanUsage{
			UserID:      userID,
			PlanID:      planID,
			UsageType:   ut,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			Used:        used,
			Limit:       limits.For(ut),
		}
		if err := s.pu.Upsert(ctx, row, preserve[ut]); err != nil {
			slog.Info(err.Error())
			return fmt.Errorf("resetting %s usage: %w", ut, err)
		}
	}
	return nil
}
