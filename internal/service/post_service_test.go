package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/platform"
	"github.com/postpilot-app/postpilot/internal/scheduler"
	"github.com/postpilot-app/postpilot/internal/transfer"
)

type postEnv struct {
	svc      PostService
	posts    *fakePostRepo
	targets  *fakeTargetRepo
	accounts *fakeAccountRepo
	history  *fakeHistoryRepo
	media    *fakeMediaService
	sched    *fakeScheduler
	pub      *fakePublisher
	rl       *fakeLimiter
	plan     *fakePlanUsageRepo
	subs     *fakeSubscriptionRepo
	quota    *fakePlatformUsageRepo
	usage    UsageService
}

func testAccounts() []*models.SocialAccount {
	return []*models.SocialAccount{
		{ID: 1, UserID: 1, Platform: platform.Instagram, AccountName: "ig-main"},
		{ID: 2, UserID: 1, Platform: platform.Instagram, AccountName: "ig-brand"},
		{ID: 3, UserID: 1, Platform: platform.Tiktok, AccountName: "tt-main"},
		{ID: 4, UserID: 1, Platform: platform.Tiktok, AccountName: "tt-brand"},
	}
}

func newPostEnv(t *testing.T, sub *models.Subscription) *postEnv {
	t.Helper()

	env := &postEnv{
		posts:    newFakePostRepo(),
		targets:  newFakeTargetRepo(),
		accounts: newFakeAccountRepo(testAccounts()...),
		history:  &fakeHistoryRepo{},
		media:    &fakeMediaService{},
		sched:    &fakeScheduler{},
		pub:      &fakePublisher{failFor: make(map[int64]error)},
		rl:       newFakeLimiter(),
		plan:     newFakePlanUsageRepo(),
		subs:     &fakeSubscriptionRepo{sub: sub},
		quota:    newFakePlatformUsageRepo(),
	}
	env.usage = NewUsageService(env.plan, env.subs)

	env.svc = NewPostService(
		newStubDB(t),
		env.posts,
		env.targets,
		env.accounts,
		env.history,
		env.media,
		env.usage,
		NewQuotaService(env.quota),
		env.rl,
		env.sched,
		env.pub,
		&fakeSettings{loc: time.UTC},
	)
	return env
}

func scheduledCreation(at time.Time, accountIDs ...int64) *transfer.PostCreation {
	pc := &transfer.PostCreation{
		Caption:       "hello world",
		ScheduledTime: at.UTC().Format("2006-01-02T15:04"),
	}
	for _, id := range accountIDs {
		pc.Targets = append(pc.Targets, transfer.TargetSpec{AccountID: id})
	}
	return pc
}

func immediateCreation(accountIDs ...int64) *transfer.PostCreation {
	pc := &transfer.PostCreation{Caption: "hello world", PostNow: true}
	for _, id := range accountIDs {
		pc.Targets = append(pc.Targets, transfer.TargetSpec{AccountID: id})
	}
	return pc
}

func draftCreation(accountIDs ...int64) *transfer.PostCreation {
	pc := &transfer.PostCreation{Caption: "hello world", Draft: true}
	for _, id := range accountIDs {
		pc.Targets = append(pc.Targets, transfer.TargetSpec{AccountID: id})
	}
	return pc
}

func TestCreateScheduledPost(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	at := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute)
	view, err := env.svc.CreatePost(ctx, 1, scheduledCreation(at, 1, 2), nil)
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	if view.Post.Status != models.PostStatusPending {
		t.Errorf("post status = %q, want pending", view.Post.Status)
	}
	if len(view.Targets) != 2 {
		t.Fatalf("targets = %d, want 2", len(view.Targets))
	}
	for _, target := range view.Targets {
		if target.Status != models.TargetStatusPending {
			t.Errorf("target %d status = %q, want pending", target.ID, target.Status)
		}
	}

	// One dispatch job per target at the scheduled time.
	if len(env.sched.jobs) != 2 {
		t.Fatalf("scheduled jobs = %d, want 2", len(env.sched.jobs))
	}
	for _, j := range env.sched.jobs {
		if !j.when.Equal(at) {
			t.Errorf("job scheduled for %s, want %s", j.when, at)
		}
		if j.payload.PostID != view.Post.ID {
			t.Errorf("job post id = %d, want %d", j.payload.PostID, view.Post.ID)
		}
	}

	// Two instagram quota slots reserved on the scheduled day.
	day := QuotaDay(at, time.UTC)
	if n := env.quota.count(1, platform.Instagram, day); n != 2 {
		t.Errorf("instagram quota = %d, want 2", n)
	}

	// One scheduled ledger slot, no sent usage yet.
	period, _ := env.usage.CurrentPeriod(ctx, 1)
	if got := env.plan.used(1, models.UsageScheduled, period.Start); got != 1 {
		t.Errorf("scheduled usage = %d, want 1", got)
	}
	if got := env.plan.used(1, models.UsageSent, period.Start); got != 0 {
		t.Errorf("sent usage = %d, want 0", got)
	}
	if len(env.pub.sent) != 0 {
		t.Errorf("nothing should be published at schedule time")
	}
}

func TestCreatePostPlanLimitExceeded(t *testing.T) {
	env := newPostEnv(t, nil) // free plan
	ctx := context.Background()

	limit := models.PlanCatalog[models.PlanFree].Scheduled
	if _, err := env.usage.AdjustUsage(ctx, 1, models.UsageScheduled, limit); err != nil {
		t.Fatal(err)
	}

	at := time.Now().UTC().Add(48 * time.Hour)
	_, err := env.svc.CreatePost(ctx, 1, scheduledCreation(at, 1), nil)

	var qe *QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("want *QuotaExceededError, got %v", err)
	}
	if qe.Scope != QuotaScopePlan {
		t.Errorf("Scope = %q, want plan", qe.Scope)
	}

	// Validation failure must leave no trace.
	if len(env.posts.posts) != 0 {
		t.Error("post row persisted despite rejection")
	}
	if len(env.sched.jobs) != 0 {
		t.Error("jobs enqueued despite rejection")
	}
	if n := env.quota.count(1, platform.Instagram, QuotaDay(at, time.UTC)); n != 0 {
		t.Errorf("quota reserved despite rejection: %d", n)
	}
}

func TestCreateScheduledPostQuotaExceeded(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	at := time.Now().UTC().Add(48 * time.Hour)
	day := QuotaDay(at, time.UTC)

	// 14 of tiktok's 15 slots used; requesting 2 must fail.
	if err := env.quota.IncrementScheduledCount(ctx, 1, platform.Tiktok, day, 14); err != nil {
		t.Fatal(err)
	}

	_, err := env.svc.CreatePost(ctx, 1, scheduledCreation(at, 3, 4), nil)
	var qe *QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("want *QuotaExceededError, got %v", err)
	}
	if qe.Scope != QuotaScopePlatform || qe.Platform != platform.Tiktok {
		t.Errorf("error = %+v", qe)
	}
	if qe.AvailableSlots != 1 {
		t.Errorf("AvailableSlots = %d, want 1", qe.AvailableSlots)
	}

	if len(env.posts.posts) != 0 {
		t.Error("post row persisted despite rejection")
	}

	// Plan ledger untouched: the scheduled slot was never taken.
	period, _ := env.usage.CurrentPeriod(ctx, 1)
	if got := env.plan.used(1, models.UsageScheduled, period.Start); got != 0 {
		t.Errorf("scheduled usage = %d, want 0", got)
	}
}

func TestCreateImmediatePartialFailure(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	env.pub.failFor[2] = &platform.Error{Platform: platform.Instagram, Status: 401, Message: "token expired"}

	view, err := env.svc.CreatePost(ctx, 1, immediateCreation(1, 2), nil)
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	if view.Post.Status != models.PostStatusPartiallyDone {
		t.Errorf("post status = %q, want partially_done", view.Post.Status)
	}

	byAccount := make(map[int64]*models.PostTarget)
	for _, target := range view.Targets {
		byAccount[target.AccountID] = target
	}
	if byAccount[1].Status != models.TargetStatusDone {
		t.Errorf("account 1 target status = %q, want done", byAccount[1].Status)
	}
	if byAccount[2].Status != models.TargetStatusFailed {
		t.Errorf("account 2 target status = %q, want failed", byAccount[2].Status)
	}
	if byAccount[2].ErrorMessage != "Your instagram account needs to be reconnected" {
		t.Errorf("failed target message = %q", byAccount[2].ErrorMessage)
	}

	// Sent counts only the successful target.
	period, _ := env.usage.CurrentPeriod(ctx, 1)
	if got := env.plan.used(1, models.UsageSent, period.Start); got != 1 {
		t.Errorf("sent usage = %d, want 1", got)
	}

	// Rate limiter incremented for the success only.
	if env.rl.accountIncrs[1] != 1 {
		t.Errorf("account 1 rate incr = %d, want 1", env.rl.accountIncrs[1])
	}
	if env.rl.accountIncrs[2] != 0 {
		t.Errorf("account 2 rate incr = %d, want 0", env.rl.accountIncrs[2])
	}

	// Every attempt lands in history, success and failure alike.
	if len(env.history.entries) != 2 {
		t.Errorf("history entries = %d, want 2", len(env.history.entries))
	}
}

func TestCreateImmediateRateLimited(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	env.rl.blocked[2] = true

	_, err := env.svc.CreatePost(ctx, 1, immediateCreation(1, 2), nil)
	var re *RateLimitError
	if !errors.As(err, &re) {
		t.Fatalf("want *RateLimitError, got %v", err)
	}
	if re.AccountID != 2 || re.Platform != platform.Instagram {
		t.Errorf("error = %+v", re)
	}
	if re.RetryAfter <= 0 {
		t.Error("RetryAfter should be positive")
	}

	// One blocked account rejects the whole post before any send.
	if len(env.posts.posts) != 0 {
		t.Error("post persisted despite rate limit rejection")
	}
	if len(env.pub.sent) != 0 {
		t.Error("publisher called despite rate limit rejection")
	}
}

func TestDeleteScheduledPost(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	at := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute)
	view, err := env.svc.CreatePost(ctx, 1, scheduledCreation(at, 1, 2), nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := env.svc.DeletePost(ctx, 1, view.Post.ID); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}

	if len(env.posts.posts) != 0 {
		t.Error("post row not removed")
	}
	targets, _ := env.targets.ListByPostID(ctx, view.Post.ID)
	if len(targets) != 0 {
		t.Error("target rows not removed")
	}
	if len(env.sched.cancelled) == 0 {
		t.Error("dispatch jobs not cancelled")
	}

	day := QuotaDay(at, time.UTC)
	if n := env.quota.count(1, platform.Instagram, day); n != 0 {
		t.Errorf("quota after delete = %d, want 0", n)
	}
	period, _ := env.usage.CurrentPeriod(ctx, 1)
	if got := env.plan.used(1, models.UsageScheduled, period.Start); got != 0 {
		t.Errorf("scheduled usage after delete = %d, want 0", got)
	}
}

func TestRetryPostTarget(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	env.pub.failFor[2] = &platform.Error{Platform: platform.Instagram, Status: 500, Message: "server error"}
	view, err := env.svc.CreatePost(ctx, 1, immediateCreation(1, 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	if view.Post.Status != models.PostStatusPartiallyDone {
		t.Fatalf("setup: post status = %q", view.Post.Status)
	}

	var failedID int64
	for _, target := range view.Targets {
		if target.Status == models.TargetStatusFailed {
			failedID = target.ID
		}
	}

	// Retrying a non-failed target is rejected.
	for _, target := range view.Targets {
		if target.Status == models.TargetStatusDone {
			if _, err := env.svc.RetryPostTarget(ctx, 1, target.ID); err == nil {
				t.Error("retry of a done target should fail")
			}
		}
	}

	// Provider recovered.
	delete(env.pub.failFor, 2)

	view, err = env.svc.RetryPostTarget(ctx, 1, failedID)
	if err != nil {
		t.Fatalf("RetryPostTarget: %v", err)
	}
	if view.Post.Status != models.PostStatusDone {
		t.Errorf("post status after retry = %q, want done", view.Post.Status)
	}

	// The original failure was never counted, so the retry adds exactly one.
	period, _ := env.usage.CurrentPeriod(ctx, 1)
	if got := env.plan.used(1, models.UsageSent, period.Start); got != 2 {
		t.Errorf("sent usage = %d, want 2", got)
	}
}

func TestEditPostMoveDay(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	dayA := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute)
	dayB := dayA.Add(72 * time.Hour)

	view, err := env.svc.CreatePost(ctx, 1, scheduledCreation(dayA, 1, 2), nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.EditPost(ctx, 1, view.Post.ID, scheduledCreation(dayB, 1, 2), nil); err != nil {
		t.Fatalf("EditPost: %v", err)
	}

	if n := env.quota.count(1, platform.Instagram, QuotaDay(dayA, time.UTC)); n != 0 {
		t.Errorf("old day quota = %d, want 0", n)
	}
	if n := env.quota.count(1, platform.Instagram, QuotaDay(dayB, time.UTC)); n != 2 {
		t.Errorf("new day quota = %d, want 2", n)
	}

	// One scheduled post holds one ledger slot regardless of the move.
	period, _ := env.usage.CurrentPeriod(ctx, 1)
	if got := env.plan.used(1, models.UsageScheduled, period.Start); got != 1 {
		t.Errorf("scheduled usage = %d, want 1", got)
	}
	if len(env.sched.cancelled) == 0 {
		t.Error("old dispatch jobs should be cancelled on reschedule")
	}
}

func TestEditDraftToScheduled(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	view, err := env.svc.CreatePost(ctx, 1, draftCreation(1, 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	if view.Post.Status != models.PostStatusDraft {
		t.Fatalf("post status = %q, want draft", view.Post.Status)
	}

	period, _ := env.usage.CurrentPeriod(ctx, 1)
	if got := env.plan.used(1, models.UsageScheduled, period.Start); got != 0 {
		t.Fatalf("a draft holds no scheduled slot, got %d", got)
	}

	at := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute)
	view, err = env.svc.EditPost(ctx, 1, view.Post.ID, scheduledCreation(at, 1, 2), nil)
	if err != nil {
		t.Fatalf("EditPost: %v", err)
	}
	if view.Post.Status != models.PostStatusPending {
		t.Errorf("post status = %q, want pending", view.Post.Status)
	}

	// Activation takes the slot the draft never held.
	if got := env.plan.used(1, models.UsageScheduled, period.Start); got != 1 {
		t.Errorf("scheduled usage after activation = %d, want 1", got)
	}
	if len(env.sched.jobs) != 2 {
		t.Errorf("scheduled jobs = %d, want 2", len(env.sched.jobs))
	}
	if n := env.quota.count(1, platform.Instagram, QuotaDay(at, time.UTC)); n != 2 {
		t.Errorf("instagram quota = %d, want 2", n)
	}

	// Delete releases exactly what activation reserved.
	if err := env.svc.DeletePost(ctx, 1, view.Post.ID); err != nil {
		t.Fatal(err)
	}
	if got := env.plan.used(1, models.UsageScheduled, period.Start); got != 0 {
		t.Errorf("scheduled usage after delete = %d, want 0", got)
	}
}

func TestEditDraftToScheduledPlanLimitExceeded(t *testing.T) {
	env := newPostEnv(t, nil) // free plan
	ctx := context.Background()

	view, err := env.svc.CreatePost(ctx, 1, draftCreation(1), nil)
	if err != nil {
		t.Fatal(err)
	}

	limit := models.PlanCatalog[models.PlanFree].Scheduled
	if _, err := env.usage.AdjustUsage(ctx, 1, models.UsageScheduled, limit); err != nil {
		t.Fatal(err)
	}

	at := time.Now().UTC().Add(48 * time.Hour)
	_, err = env.svc.EditPost(ctx, 1, view.Post.ID, scheduledCreation(at, 1), nil)
	var qe *QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("want *QuotaExceededError, got %v", err)
	}
	if qe.Scope != QuotaScopePlan {
		t.Errorf("Scope = %q, want plan", qe.Scope)
	}

	// Rejected activation leaves the draft untouched.
	if len(env.sched.jobs) != 0 {
		t.Error("jobs enqueued despite rejection")
	}
	if n := env.quota.count(1, platform.Instagram, QuotaDay(at, time.UTC)); n != 0 {
		t.Errorf("quota reserved despite rejection: %d", n)
	}
	post, _ := env.posts.GetByID(ctx, view.Post.ID)
	if post.Status != models.PostStatusDraft {
		t.Errorf("post status = %q, want draft", post.Status)
	}
}

func TestEditDraftToImmediateRateLimited(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	view, err := env.svc.CreatePost(ctx, 1, draftCreation(1, 2), nil)
	if err != nil {
		t.Fatal(err)
	}

	env.rl.blocked[1] = true

	_, err = env.svc.EditPost(ctx, 1, view.Post.ID, immediateCreation(1, 2), nil)
	var re *RateLimitError
	if !errors.As(err, &re) {
		t.Fatalf("want *RateLimitError, got %v", err)
	}
	if re.AccountID != 1 || re.Platform != platform.Instagram {
		t.Errorf("error = %+v", re)
	}

	// The edit path applies the same gate as creation: nothing is
	// published or replaced for a blocked account.
	if len(env.pub.sent) != 0 {
		t.Error("publisher called for a rate-limited account")
	}
	post, _ := env.posts.GetByID(ctx, view.Post.ID)
	if post.Status != models.PostStatusDraft {
		t.Errorf("post status = %q, want draft", post.Status)
	}
}

func TestEditDraftToImmediatePlanLimitExceeded(t *testing.T) {
	env := newPostEnv(t, nil) // free plan
	ctx := context.Background()

	view, err := env.svc.CreatePost(ctx, 1, draftCreation(1, 2), nil)
	if err != nil {
		t.Fatal(err)
	}

	limit := models.PlanCatalog[models.PlanFree].Sent
	if _, err := env.usage.AdjustUsage(ctx, 1, models.UsageSent, limit); err != nil {
		t.Fatal(err)
	}

	_, err = env.svc.EditPost(ctx, 1, view.Post.ID, immediateCreation(1, 2), nil)
	var qe *QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("want *QuotaExceededError, got %v", err)
	}
	if qe.UsageType != string(models.UsageSent) {
		t.Errorf("UsageType = %q, want sent", qe.UsageType)
	}
	if len(env.pub.sent) != 0 {
		t.Error("publisher called despite exhausted plan")
	}
}

func TestDispatchTarget(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	at := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute)
	view, err := env.svc.CreatePost(ctx, 1, scheduledCreation(at, 1, 2), nil)
	if err != nil {
		t.Fatal(err)
	}

	first := view.Targets[0]
	payload := scheduler.DispatchPostPayload{
		PostID:    view.Post.ID,
		TargetID:  first.ID,
		UserID:    1,
		AccountID: first.AccountID,
		Platform:  first.Platform,
	}
	if err := env.svc.DispatchTarget(ctx, payload); err != nil {
		t.Fatalf("DispatchTarget: %v", err)
	}

	target, _ := env.targets.GetByID(ctx, first.ID)
	if target.Status != models.TargetStatusDone {
		t.Errorf("target status = %q, want done", target.Status)
	}

	// One of two targets dispatched: post is mid-flight.
	post, _ := env.posts.GetByID(ctx, view.Post.ID)
	if post.Status != models.PostStatusPosting {
		t.Errorf("post status = %q, want posting", post.Status)
	}

	period, _ := env.usage.CurrentPeriod(ctx, 1)
	if got := env.plan.used(1, models.UsageSent, period.Start); got != 1 {
		t.Errorf("sent usage = %d, want 1", got)
	}
}

func TestDispatchTargetRateLimited(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	at := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute)
	view, err := env.svc.CreatePost(ctx, 1, scheduledCreation(at, 1), nil)
	if err != nil {
		t.Fatal(err)
	}

	env.rl.blocked[1] = true

	first := view.Targets[0]
	payload := scheduler.DispatchPostPayload{
		PostID:    view.Post.ID,
		TargetID:  first.ID,
		UserID:    1,
		AccountID: first.AccountID,
		Platform:  first.Platform,
	}

	// A blocked dispatch returns an error so the queue retries later.
	if err := env.svc.DispatchTarget(ctx, payload); err == nil {
		t.Fatal("rate-limited dispatch should return an error for retry")
	}

	target, _ := env.targets.GetByID(ctx, first.ID)
	if target.Status != models.TargetStatusPending {
		t.Errorf("target status = %q, want pending for retry", target.Status)
	}
	if len(env.pub.sent) != 0 {
		t.Error("publisher should not be called when rate limited")
	}
}

func TestDispatchTargetStaleJob(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	payload := scheduler.DispatchPostPayload{
		PostID:    99,
		TargetID:  99,
		UserID:    1,
		AccountID: 1,
		Platform:  platform.Instagram,
	}
	// Cancellation racing the queue: the job fires after the target is
	// gone and must complete without error or side effects.
	if err := env.svc.DispatchTarget(ctx, payload); err != nil {
		t.Fatalf("stale dispatch should be a no-op, got %v", err)
	}
	if len(env.pub.sent) != 0 {
		t.Error("publisher called for a deleted target")
	}
}

func TestCreatePostValidation(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	assertValidation := func(t *testing.T, err error) {
		t.Helper()
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("want *ValidationError, got %v", err)
		}
	}

	// Scheduled time in the past.
	past := time.Now().UTC().Add(-time.Hour)
	_, err := env.svc.CreatePost(ctx, 1, scheduledCreation(past, 1), nil)
	assertValidation(t, err)

	// Same account targeted twice.
	at := time.Now().UTC().Add(48 * time.Hour)
	_, err = env.svc.CreatePost(ctx, 1, scheduledCreation(at, 1, 1), nil)
	assertValidation(t, err)

	// Account belonging to another user.
	env.accounts.accounts[9] = &models.SocialAccount{ID: 9, UserID: 2, Platform: platform.Instagram}
	_, err = env.svc.CreatePost(ctx, 1, scheduledCreation(at, 9), nil)
	assertValidation(t, err)

	// No targets at all.
	_, err = env.svc.CreatePost(ctx, 1, &transfer.PostCreation{Caption: "x", PostNow: true}, nil)
	assertValidation(t, err)

	if len(env.posts.posts) != 0 {
		t.Error("rejected posts must not be persisted")
	}
}

func TestGetFailedPostTargets(t *testing.T) {
	env := newPostEnv(t, activeSub(1, models.PlanPro))
	ctx := context.Background()

	env.pub.failFor[1] = &platform.Error{Platform: platform.Instagram, Status: 500, Message: "boom"}
	env.pub.failFor[3] = &platform.Error{Platform: platform.Tiktok, Status: 500, Message: "boom"}

	if _, err := env.svc.CreatePost(ctx, 1, immediateCreation(1, 2), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.CreatePost(ctx, 1, immediateCreation(3), nil); err != nil {
		t.Fatal(err)
	}

	failed, err := env.svc.GetFailedPostTargets(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 2 {
		t.Errorf("failed targets = %d, want 2", len(failed))
	}

	count, err := env.svc.GetPostsFailedCount(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("failed post count = %d, want 2", count)
	}
}
