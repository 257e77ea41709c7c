package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/postpilot-app/postpilot/internal/platform"
	"github.com/postpilot-app/postpilot/internal/repository"
	"golang.org/x/sync/errgroup"
)

// QuotaService is the platform daily quota tracker: per-user,
// per-platform, per-day caps on scheduled post volume.
type QuotaService interface {
	GetDailyUsage(ctx context.Context, userID int64, p platform.Platform, day time.Time) (int, error)
	// ValidateBatch checks requested counts per platform for one day and
	// returns a *QuotaExceededError for the first violating platform.
	// Nothing is reserved.
	ValidateBatch(ctx context.Context, userID int64, day time.Time, requested map[platform.Platform]int) error
	// Reserve and Release adjust the day's scheduled counts; Release
	// floors at zero.
	Reserve(ctx context.Context, userID int64, day time.Time, counts map[platform.Platform]int) error
	Release(ctx context.Context, userID int64, day time.Time, counts map[platform.Platform]int)
}

type quotaService struct {
	pu repository.PlatformUsageRepository
}

func NewQuotaService(pu repository.PlatformUsageRepository) QuotaService {
	return &quotaService{pu: pu}
}

// QuotaDay truncates a timestamp to the calendar day quota rows are
// keyed by, in the given location.
func QuotaDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *quotaService) GetDailyUsage(ctx context.Context, userID int64, p platform.Platform, day time.Time) (int, error) {
	usage, err := s.pu.GetDailyUsage(ctx, userID, p, day)
	if err != nil {
		return 0, err
	}
	if usage == nil {
		return 0, nil
	}
	return usage.ScheduledCount, nil
}

func (s *quotaService) ValidateBatch(ctx context.Context, userID int64, day time.Time, requested map[platform.Platform]int) error {
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var quotaErr *QuotaExceededError

	for p, count := range requested {
		p, count := p, count
		limit := p.Limits().PostsPerDay
		if limit == 0 || count <= 0 {
			// Limit 0 means unlimited; validation short-circuits.
			continue
		}

		g.Go(func() error {
			current, err := s.GetDailyUsage(gctx, userID, p, day)
			if err != nil {
				return fmt.Errorf("reading %s daily usage: %w", p, err)
			}
			if current+count > limit {
				mu.Lock()
				if quotaErr == nil {
					quotaErr = &QuotaExceededError{
						Scope:          QuotaScopePlatform,
						Platform:       p,
						Current:        current,
						Requested:      count,
						Limit:          limit,
						AvailableSlots: max(limit-current, 0),
					}
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if quotaErr != nil {
		return quotaErr
	}
	return nil
}

func (s *quotaService) Reserve(ctx context.Context, userID int64, day time.Time, counts map[platform.Platform]int) error {
	var reserved []platform.Platform
	for p, count := range counts {
		if count <= 0 {
			continue
		}
		if err := s.pu.IncrementScheduledCount(ctx, userID, p, day, count); err != nil {
			// Roll back what this call already reserved so a mid-batch
			// failure leaves no partial reservation.
			for _, rp := range reserved {
				if rerr := s.pu.IncrementScheduledCount(ctx, userID, rp, day, -counts[rp]); rerr != nil {
					slog.Error("failed to roll back quota reservation", "platform", rp, "error", rerr)
				}
			}
			return fmt.Errorf("reserving %s daily quota: %w", p, err)
		}
		reserved = append(reserved, p)
	}
	return nil
}

func (s *quotaService) Release(ctx context.Context, userID int64, day time.Time, counts map[platform.Platform]int) {
	for p, count := range counts {
		if count <= 0 {
			continue
		}
		if err := s.pu.IncrementScheduledCount(ctx, userID, p, day, -count); err != nil {
			// Releases are best effort; log and keep going.
			slog.Error("failed to release platform daily quota", "platform", p, "count", count, "error", err)
		}
	}
}
