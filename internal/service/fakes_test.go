package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/platform"
	"github.com/postpilot-app/postpilot/internal/ratelimit"
	"github.com/postpilot-app/postpilot/internal/scheduler"
)

// stubDriver backs the *sql.DB handed to the orchestrator in tests.
// Repositories are faked, so only transaction begin/commit ever reach
// the driver.
type stubDriver struct{}

func (stubDriver) Open(name string) (driver.Conn, error) { return stubConn{}, nil }

type stubConn struct{}

func (stubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("stub driver does not execute statements")
}
func (stubConn) Close() error              { return nil }
func (stubConn) Begin() (driver.Tx, error) { return stubTx{}, nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

func init() {
	sql.Register("servicestub", stubDriver{})
}

func newStubDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("servicestub", "")
	if err != nil {
		t.Fatalf("opening stub db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakePostRepo struct {
	mu     sync.Mutex
	nextID int64
	posts  map[int64]*models.Post
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: make(map[int64]*models.Post)}
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *post
	cp.ID = r.nextID
	r.posts[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakePostRepo) Update(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[post.ID]; !ok {
		return errors.New("post not found")
	}
	cp := *post
	r.posts[post.ID] = &cp
	return nil
}

func (r *fakePostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, p := range r.posts {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePostRepo) UpdatePostStatus(ctx context.Context, status string, postID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	if !ok {
		return errors.New("post not found")
	}
	p.Status = status
	return nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	return ok && p.UserID == userID, nil
}

func (r *fakePostRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.posts, id)
	return nil
}

type fakeTargetRepo struct {
	mu      sync.Mutex
	nextID  int64
	targets map[int64]*models.PostTarget
	order   []int64
}

func newFakeTargetRepo() *fakeTargetRepo {
	return &fakeTargetRepo{targets: make(map[int64]*models.PostTarget)}
}

func (r *fakeTargetRepo) Create(ctx context.Context, tx *sql.Tx, target *models.PostTarget) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *target
	cp.ID = r.nextID
	r.targets[cp.ID] = &cp
	r.order = append(r.order, cp.ID)
	return cp.ID, nil
}

func (r *fakeTargetRepo) GetByID(ctx context.Context, id int64) (*models.PostTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTargetRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PostTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PostTarget
	for _, id := range r.order {
		t, ok := r.targets[id]
		if ok && t.PostID == postID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTargetRepo) UpdateStatus(ctx context.Context, targetID int64, status, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[targetID]
	if !ok {
		return errors.New("target not found")
	}
	t.Status = status
	t.ErrorMessage = errorMessage
	return nil
}

func (r *fakeTargetRepo) RemoveByPostID(ctx context.Context, tx *sql.Tx, postID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.targets {
		if t.PostID == postID {
			delete(r.targets, id)
		}
	}
	return nil
}

func (r *fakeTargetRepo) ListFailedByUserID(ctx context.Context, userID int64) ([]*models.PostTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PostTarget
	for _, id := range r.order {
		t, ok := r.targets[id]
		if ok && t.Status == models.TargetStatusFailed {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTargetRepo) CountFailedPostsByUserID(ctx context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int64]struct{})
	for _, t := range r.targets {
		if t.Status == models.TargetStatusFailed {
			seen[t.PostID] = struct{}{}
		}
	}
	return len(seen), nil
}

type fakeAccountRepo struct {
	accounts map[int64]*models.SocialAccount
}

func newFakeAccountRepo(accounts ...*models.SocialAccount) *fakeAccountRepo {
	m := make(map[int64]*models.SocialAccount, len(accounts))
	for _, a := range accounts {
		m[a.ID] = a
	}
	return &fakeAccountRepo{accounts: m}
}

func (r *fakeAccountRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	r.accounts[sa.ID] = sa
	return sa.ID, nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return a, nil
}

func (r *fakeAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return r.ListInfoByUserID(ctx, userID)
}

func (r *fakeAccountRepo) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	var out []*models.SocialAccount
	for _, a := range r.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ListByTimeInterval(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	a, ok := r.accounts[accountID]
	return ok && a.UserID == userID, nil
}

func (r *fakeAccountRepo) SetToken(ctx context.Context, userID int64, oldAccessToken string, sa *models.SocialAccount) error {
	return nil
}

func (r *fakeAccountRepo) Remove(ctx context.Context, id int64) error {
	delete(r.accounts, id)
	return nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []*models.PostingHistory
}

func (r *fakeHistoryRepo) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ph
	cp.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, &cp)
	return cp.ID, nil
}

func (r *fakeHistoryRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.PostingHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries, nil
}

type fakeMediaService struct {
	attached int
	removed  []int64
}

func (m *fakeMediaService) AttachFiles(ctx context.Context, tx *sql.Tx, userID, postID int64, files []*multipart.FileHeader) error {
	m.attached += len(files)
	return nil
}

func (m *fakeMediaService) RemoveForPost(ctx context.Context, postID int64) error {
	m.removed = append(m.removed, postID)
	return nil
}

type scheduledJob struct {
	payload scheduler.DispatchPostPayload
	when    time.Time
}

type fakeScheduler struct {
	mu           sync.Mutex
	jobs         []scheduledJob
	cancelled    []string
	failSchedule bool
}

func (s *fakeScheduler) SchedulePost(ctx context.Context, payload scheduler.DispatchPostPayload, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSchedule {
		return errors.New("queue unavailable")
	}
	s.jobs = append(s.jobs, scheduledJob{payload: payload, when: when})
	return nil
}

func (s *fakeScheduler) CancelScheduledPost(ctx context.Context, p platform.Platform, postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, fmt.Sprintf("%s:%d", p, postID))
	return nil
}

func (s *fakeScheduler) ReschedulePost(ctx context.Context, p platform.Platform, postID int64, newWhen time.Time) error {
	return nil
}

func (s *fakeScheduler) CleanupJobsForDeletedPost(ctx context.Context, p platform.Platform, postID int64) error {
	return nil
}

// fakePublisher fails the accounts listed in failFor and records every
// delivery attempt.
type fakePublisher struct {
	mu      sync.Mutex
	failFor map[int64]error
	sent    []int64
}

func (p *fakePublisher) SendPost(ctx context.Context, post *models.Post, target *models.PostTarget, acc *models.SocialAccount) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failFor[acc.ID]; ok {
		return err
	}
	p.sent = append(p.sent, acc.ID)
	return nil
}

type fakeLimiter struct {
	mu           sync.Mutex
	blocked      map[int64]bool
	accountIncrs map[int64]int
	appIncrs     map[platform.Platform]int
	accountDecrs map[int64]int
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{
		blocked:      make(map[int64]bool),
		accountIncrs: make(map[int64]int),
		appIncrs:     make(map[platform.Platform]int),
		accountDecrs: make(map[int64]int),
	}
}

func (l *fakeLimiter) CheckRateLimit(ctx context.Context, p platform.Platform, userID, accountID int64) (*ratelimit.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.blocked[accountID] {
		reset := time.Now().Add(time.Hour)
		return &ratelimit.Result{Allowed: false, RetryAfter: time.Hour, ResetTime: reset}, nil
	}
	return &ratelimit.Result{Allowed: true, ResetTime: time.Now().Add(time.Hour)}, nil
}

func (l *fakeLimiter) IncrementUsage(ctx context.Context, p platform.Platform, userID, accountID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accountIncrs[accountID]++
	return nil
}

func (l *fakeLimiter) DecrementUsage(ctx context.Context, p platform.Platform, userID, accountID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accountDecrs[accountID]++
	return nil
}

func (l *fakeLimiter) IncrementAppUsage(ctx context.Context, p platform.Platform, userID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appIncrs[p]++
	return nil
}

func (l *fakeLimiter) DecrementAppUsage(ctx context.Context, p platform.Platform, userID int64) error {
	return nil
}

func (l *fakeLimiter) AccountUsage(ctx context.Context, p platform.Platform, accountID int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(l.accountIncrs[accountID]), nil
}

type fakeSettings struct {
	loc *time.Location
}

func (s *fakeSettings) GetSettings(ctx context.Context, userID int64) (*models.Settings, error) {
	return &models.Settings{UserID: userID, Timezone: s.loc.String()}, nil
}

func (s *fakeSettings) UpdateTimezone(ctx context.Context, userID int64, timezone string) error {
	return nil
}

func (s *fakeSettings) GetLocation(ctx context.Context, userID int64) *time.Location {
	return s.loc
}

type fakePlanUsageRepo struct {
	mu   sync.Mutex
	rows map[string]*models.PlanUsage
}

func newFakePlanUsageRepo() *fakePlanUsageRepo {
	return &fakePlanUsageRepo{rows: make(map[string]*models.PlanUsage)}
}

func planKey(userID int64, ut models.UsageType, start time.Time) string {
	return fmt.Sprintf("%d|%s|%d", userID, ut, start.Unix())
}

func (r *fakePlanUsageRepo) GetUsage(ctx context.Context, userID int64, periodStart, periodEnd time.Time) ([]*models.PlanUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PlanUsage
	for _, row := range r.rows {
		if row.UserID == userID && row.PeriodStart.Equal(periodStart) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePlanUsageRepo) GetUsageByType(ctx context.Context, userID int64, ut models.UsageType, periodStart, periodEnd time.Time) (*models.PlanUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[planKey(userID, ut, periodStart)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *fakePlanUsageRepo) GetLatestByType(ctx context.Context, userID int64, ut models.UsageType) (*models.PlanUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.PlanUsage
	for _, row := range r.rows {
		if row.UserID != userID || row.UsageType != ut {
			continue
		}
		if latest == nil || row.PeriodEnd.After(latest.PeriodEnd) {
			latest = row
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *fakePlanUsageRepo) AdjustUsage(ctx context.Context, userID int64, ut models.UsageType, delta int, periodStart, periodEnd time.Time) (*models.PlanUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[planKey(userID, ut, periodStart)]
	if !ok {
		return nil, nil
	}
	used := row.Used + delta
	if used < 0 {
		used = 0
	}
	if used > row.Limit {
		used = row.Limit
	}
	row.Used = used
	cp := *row
	return &cp, nil
}

func (r *fakePlanUsageRepo) Upsert(ctx context.Context, usage *models.PlanUsage, preserveUsed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := planKey(usage.UserID, usage.UsageType, usage.PeriodStart)
	if existing, ok := r.rows[key]; ok && preserveUsed {
		existing.Limit = usage.Limit
		existing.PlanID = usage.PlanID
		return nil
	}
	cp := *usage
	r.rows[key] = &cp
	return nil
}

// used reads the stored count directly, bypassing the service.
func (r *fakePlanUsageRepo) used(userID int64, ut models.UsageType, start time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[planKey(userID, ut, start)]
	if !ok {
		return 0
	}
	return row.Used
}

type fakeSubscriptionRepo struct {
	sub *models.Subscription
}

func (r *fakeSubscriptionRepo) GetByUserID(ctx context.Context, userID int64) (*models.Subscription, bool, error) {
	if r.sub == nil || r.sub.UserID != userID {
		return nil, false, nil
	}
	return r.sub, true, nil
}

func (r *fakeSubscriptionRepo) Create(ctx context.Context, subscription *models.Subscription) (int64, error) {
	r.sub = subscription
	return 1, nil
}

func (r *fakeSubscriptionRepo) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	r.sub = subscription
	return nil
}

func (r *fakeSubscriptionRepo) ListExpired(ctx context.Context, before time.Time) ([]*models.Subscription, error) {
	if r.sub != nil && r.sub.CurrentPeriodEnd.Before(before) && r.sub.Status == "active" {
		return []*models.Subscription{r.sub}, nil
	}
	return nil, nil
}

type fakePlatformUsageRepo struct {
	mu     sync.Mutex
	counts map[string]int
	failOn map[platform.Platform]bool
}

func newFakePlatformUsageRepo() *fakePlatformUsageRepo {
	return &fakePlatformUsageRepo{
		counts: make(map[string]int),
		failOn: make(map[platform.Platform]bool),
	}
}

func quotaKey(userID int64, p platform.Platform, day time.Time) string {
	return fmt.Sprintf("%d|%s|%s", userID, p, day.Format("2006-01-02"))
}

func (r *fakePlatformUsageRepo) GetDailyUsage(ctx context.Context, userID int64, p platform.Platform, day time.Time) (*models.PlatformDailyUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count, ok := r.counts[quotaKey(userID, p, day)]
	if !ok {
		return nil, nil
	}
	return &models.PlatformDailyUsage{UserID: userID, Platform: p, Day: day, ScheduledCount: count}, nil
}

func (r *fakePlatformUsageRepo) IncrementScheduledCount(ctx context.Context, userID int64, p platform.Platform, day time.Time, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[p] {
		return errors.New("db unavailable")
	}
	key := quotaKey(userID, p, day)
	next := r.counts[key] + delta
	if next < 0 {
		next = 0
	}
	r.counts[key] = next
	return nil
}

func (r *fakePlatformUsageRepo) count(userID int64, p platform.Platform, day time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[quotaKey(userID, p, day)]
}
