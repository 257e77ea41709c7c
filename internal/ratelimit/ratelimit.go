package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/postpilot-app/postpilot/internal/counter"
	"github.com/postpilot-app/postpilot/internal/platform"
)

// Result answers "is this action allowed now" and, when it is not, when
// it can be retried.
type Result struct {
	Allowed    bool          `json:"allowed"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	ResetTime  time.Time     `json:"reset_time,omitempty"`
}

// Limiter tracks short-window per-account and app-wide publish counters.
// All counters are scoped to the server-local calendar day and expire at
// end of day; decrements floor at zero so compensating rollbacks stay
// consistent.
type Limiter interface {
	CheckRateLimit(ctx context.Context, p platform.Platform, userID, accountID int64) (*Result, error)
	IncrementUsage(ctx context.Context, p platform.Platform, userID, accountID int64) error
	DecrementUsage(ctx context.Context, p platform.Platform, userID, accountID int64) error
	IncrementAppUsage(ctx context.Context, p platform.Platform, userID int64) error
	DecrementAppUsage(ctx context.Context, p platform.Platform, userID int64) error
	AccountUsage(ctx context.Context, p platform.Platform, accountID int64) (int64, error)
}

type limiter struct {
	store counter.Store
	now   func() time.Time
}

func New(store counter.Store) Limiter {
	return &limiter{store: store, now: time.Now}
}

// NewWithClock is used by tests to pin the day boundary.
func NewWithClock(store counter.Store, now func() time.Time) Limiter {
	return &limiter{store: store, now: now}
}

func (l *limiter) dayStart() time.Time {
	now := l.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (l *limiter) dayEnd() time.Time {
	return l.dayStart().Add(24 * time.Hour)
}

func (l *limiter) ttl() time.Duration {
	return time.Until(l.dayEnd())
}

func accountKey(p platform.Platform, accountID int64, dayStart time.Time) string {
	return fmt.Sprintf("rate_limit:%s:%d:daily:%d", p, accountID, dayStart.Unix())
}

func appKey(p platform.Platform, dayStart time.Time) string {
	return fmt.Sprintf("rate_limit:%s:app:daily:%d", p, dayStart.Unix())
}

func appUserSetKey(p platform.Platform, dayStart time.Time) string {
	return fmt.Sprintf("rate_limit:%s:app:users:%d", p, dayStart.Unix())
}

func (l *limiter) CheckRateLimit(ctx context.Context, p platform.Platform, userID, accountID int64) (*Result, error) {
	limits := p.Limits()
	dayStart := l.dayStart()
	reset := l.dayEnd()

	blocked := &Result{Allowed: false, RetryAfter: reset.Sub(l.now()), ResetTime: reset}

	if limits.PostsPerDay > 0 {
		used, err := l.store.Get(ctx, accountKey(p, accountID, dayStart))
		if err != nil {
			return nil, err
		}
		if used >= int64(limits.PostsPerDay) {
			return blocked, nil
		}
	}

	if limits.AppDailyLimit > 0 {
		if limits.AppLimitKind == platform.AppLimitUsers {
			// Distinct-user cap: a user already in today's set is always
			// allowed, only new users count against the cap.
			member := strconv.FormatInt(userID, 10)
			in, err := l.store.SetContains(ctx, appUserSetKey(p, dayStart), member)
			if err != nil {
				return nil, err
			}
			if !in {
				size, err := l.store.SetSize(ctx, appUserSetKey(p, dayStart))
				if err != nil {
					return nil, err
				}
				if size >= int64(limits.AppDailyLimit) {
					return blocked, nil
				}
			}
		} else {
			used, err := l.store.Get(ctx, appKey(p, dayStart))
			if err != nil {
				return nil, err
			}
			if used >= int64(limits.AppDailyLimit) {
				return blocked, nil
			}
		}
	}

	return &Result{Allowed: true, ResetTime: reset}, nil
}

func (l *limiter) IncrementUsage(ctx context.Context, p platform.Platform, userID, accountID int64) error {
	_, err := l.store.IncrBy(ctx, accountKey(p, accountID, l.dayStart()), 1, l.ttl())
	return err
}

func (l *limiter) DecrementUsage(ctx context.Context, p platform.Platform, userID, accountID int64) error {
	_, err := l.store.DecrByFloor(ctx, accountKey(p, accountID, l.dayStart()), 1)
	return err
}

func (l *limiter) IncrementAppUsage(ctx context.Context, p platform.Platform, userID int64) error {
	dayStart := l.dayStart()
	if p.Limits().AppLimitKind == platform.AppLimitUsers {
		return l.store.AddToSet(ctx, appUserSetKey(p, dayStart), strconv.FormatInt(userID, 10), l.ttl())
	}
	_, err := l.store.IncrBy(ctx, appKey(p, dayStart), 1, l.ttl())
	return err
}

func (l *limiter) DecrementAppUsage(ctx context.Context, p platform.Platform, userID int64) error {
	if p.Limits().AppLimitKind == platform.AppLimitUsers {
		// Membership is not reference counted; a user who posted once
		// today stays in the set even after a rollback.
		return nil
	}
	_, err := l.store.DecrByFloor(ctx, appKey(p, l.dayStart()), 1)
	return err
}

func (l *limiter) AccountUsage(ctx context.Context, p platform.Platform, accountID int64) (int64, error) {
	used, err := l.store.Get(ctx, accountKey(p, accountID, l.dayStart()))
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return used, nil
}
