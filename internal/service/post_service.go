package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"sync"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/platform"
	"github.com/postpilot-app/postpilot/internal/ratelimit"
	"github.com/postpilot-app/postpilot/internal/repository"
	"github.com/postpilot-app/postpilot/internal/scheduler"
	"github.com/postpilot-app/postpilot/internal/transfer"
)

// PostService is the publishing orchestrator. Every operation validates
// all three resource limits (plan ledger, platform daily quota, rate
// limiter) before reserving anything, reserves in a fixed order
// (ledger, quota, rate limiter), and compensates in reverse order on
// failure. Target dispatch failures stay local to the target; the
// aggregate status converges through AggregatePostStatus.
type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (*transfer.PostView, error)
	EditPost(ctx context.Context, userID, postID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (*transfer.PostView, error)
	DeletePost(ctx context.Context, userID, postID int64) error
	RetryPostTarget(ctx context.Context, userID, targetID int64) (*transfer.PostView, error)
	GetFailedPostTargets(ctx context.Context, userID int64) ([]*models.PostTarget, error)
	GetPostsFailedCount(ctx context.Context, userID int64) (int, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*transfer.PostView, error)
	// DispatchTarget executes one scheduled delivery job. It re-verifies
	// the target is still pending before doing anything, because
	// cancellation and firing can race.
	DispatchTarget(ctx context.Context, payload scheduler.DispatchPostPayload) error
}

type postService struct {
	db       *sql.DB
	pr       repository.PostRepository
	pt       repository.PostTargetRepository
	ac       repository.SocialAccountRepository
	ph       repository.PostingHistoryRepository
	media    MediaService
	usage    UsageService
	quota    QuotaService
	rl       ratelimit.Limiter
	sched    scheduler.Scheduler
	pub      Publisher
	settings SettingsService
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	pt repository.PostTargetRepository,
	ac repository.SocialAccountRepository,
	ph repository.PostingHistoryRepository,
	media MediaService,
	usage UsageService,
	quota QuotaService,
	rl ratelimit.Limiter,
	sched scheduler.Scheduler,
	pub Publisher,
	settings SettingsService) PostService {
	return &postService{
		db:       db,
		pr:       pr,
		pt:       pt,
		ac:       ac,
		ph:       ph,
		media:    media,
		usage:    usage,
		quota:    quota,
		rl:       rl,
		sched:    sched,
		pub:      pub,
		settings: settings,
	}
}

// resolvedTarget pairs a requested target with its connected account.
type resolvedTarget struct {
	spec    transfer.TargetSpec
	account *models.SocialAccount
}

func (s *postService) parseSchedule(pc *transfer.PostCreation, loc *time.Location) (models.Schedule, error) {
	if pc.Draft {
		return models.DraftSchedule(), nil
	}
	if pc.PostNow {
		return models.ImmediateSchedule(), nil
	}
	if pc.ScheduledTime == "" {
		return models.Schedule{}, validationErrorf("scheduled_time is required unless posting now or saving a draft")
	}

	scheduledTime, err := time.ParseInLocation("2006-01-02T15:04", pc.ScheduledTime, loc)
	if err != nil {
		return models.Schedule{}, validationErrorf("invalid scheduled time format: %v", err)
	}
	if scheduledTime.Before(time.Now()) {
		return models.Schedule{}, validationErrorf("scheduled time is in the past")
	}
	return models.ScheduleFor(scheduledTime), nil
}

// resolveTargets checks every requested account exists, belongs to the
// user, and appears at most once per platform+account pair.
func (s *postService) resolveTargets(ctx context.Context, userID int64, specs []transfer.TargetSpec) ([]*resolvedTarget, error) {
	if len(specs) == 0 {
		return nil, validationErrorf("no targets selected")
	}

	seen := make(map[int64]struct{}, len(specs))
	resolved := make([]*resolvedTarget, 0, len(specs))
	for _, spec := range specs {
		if _, dup := seen[spec.AccountID]; dup {
			return nil, validationErrorf("account %d is targeted twice", spec.AccountID)
		}
		seen[spec.AccountID] = struct{}{}

		exists, err := s.ac.CheckByUserID(ctx, spec.AccountID, userID)
		if err != nil {
			return nil, fmt.Errorf("error checking social account %d: %w", spec.AccountID, err)
		}
		if !exists {
			return nil, validationErrorf("social account %d does not exist", spec.AccountID)
		}

		account, err := s.ac.GetByID(ctx, spec.AccountID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, validationErrorf("social account %d does not exist", spec.AccountID)
		}
		resolved = append(resolved, &resolvedTarget{spec: spec, account: account})
	}
	return resolved, nil
}

func platformCounts(targets []*resolvedTarget) map[platform.Platform]int {
	counts := make(map[platform.Platform]int)
	for _, t := range targets {
		counts[t.account.Platform]++
	}
	return counts
}

func targetPlatformCounts(targets []*models.PostTarget) map[platform.Platform]int {
	counts := make(map[platform.Platform]int)
	for _, t := range targets {
		counts[t.Platform]++
	}
	return counts
}

func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (*transfer.PostView, error) {
	if pc == nil {
		return nil, validationErrorf("post creation data is nil")
	}
	if pc.Caption == "" && len(files) == 0 {
		return nil, validationErrorf("post needs a caption or media")
	}

	loc := s.settings.GetLocation(ctx, userID)
	sched, err := s.parseSchedule(pc, loc)
	if err != nil {
		return nil, err
	}

	targets, err := s.resolveTargets(ctx, userID, pc.Targets)
	if err != nil {
		return nil, err
	}
	counts := platformCounts(targets)

	// Validate-all before reserve-all: plan ledger first, then platform
	// daily quota, then (for immediate posts) the rate limiter.
	switch sched.Kind {
	case models.ScheduleAt:
		if err := s.usage.ValidateCapacity(ctx, userID, models.UsageScheduled, 1); err != nil {
			return nil, err
		}
		day := QuotaDay(sched.At, loc)
		if err := s.quota.ValidateBatch(ctx, userID, day, counts); err != nil {
			return nil, err
		}
	case models.ScheduleImmediate:
		if err := s.usage.ValidateCapacity(ctx, userID, models.UsageSent, len(targets)); err != nil {
			return nil, err
		}
		for _, t := range targets {
			res, err := s.rl.CheckRateLimit(ctx, t.account.Platform, userID, t.account.ID)
			if err != nil {
				return nil, fmt.Errorf("checking rate limit: %w", err)
			}
			if !res.Allowed {
				return nil, &RateLimitError{
					Platform:   t.account.Platform,
					AccountID:  t.account.ID,
					RetryAfter: res.RetryAfter,
					ResetTime:  res.ResetTime,
				}
			}
		}
	}

	post, storedTargets, err := s.persistPost(ctx, userID, pc, sched, targets, files)
	if err != nil {
		return nil, err
	}

	switch sched.Kind {
	case models.ScheduleAt:
		if err := s.activateScheduled(ctx, userID, post, storedTargets, sched.At, loc); err != nil {
			return nil, err
		}
	case models.ScheduleImmediate:
		s.dispatchImmediate(ctx, userID, post, storedTargets, loc)
	}

	return s.hydrate(ctx, post.ID)
}

func initialStatus(sched models.Schedule) string {
	switch sched.Kind {
	case models.ScheduleDraft:
		return models.PostStatusDraft
	case models.ScheduleAt:
		return models.PostStatusPending
	default:
		return models.PostStatusPosting
	}
}

// persistPost writes the base row, targets, and media in one
// transaction.
func (s *postService) persistPost(ctx context.Context, userID int64, pc *transfer.PostCreation, sched models.Schedule, targets []*resolvedTarget, files []*multipart.FileHeader) (post *models.Post, stored []*models.PostTarget, err error) {
	postType := pc.PostType
	if postType == "" {
		postType = models.PostTypeText
		if len(files) > 0 {
			postType = models.PostTypeMedia
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post = &models.Post{
		UserID:        userID,
		PostType:      postType,
		Caption:       pc.Caption,
		ScheduledTime: sched.Time(),
		Status:        initialStatus(sched),
	}

	postID, err := s.pr.Create(ctx, tx, post)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating post: %w", err)
	}
	post.ID = postID

	stored, err = s.insertTargets(ctx, tx, postID, targets)
	if err != nil {
		return nil, nil, err
	}

	if len(files) > 0 {
		if err = s.media.AttachFiles(ctx, tx, userID, postID, files); err != nil {
			return nil, nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return post, stored, nil
}

func (s *postService) insertTargets(ctx context.Context, tx *sql.Tx, postID int64, targets []*resolvedTarget) ([]*models.PostTarget, error) {
	stored := make([]*models.PostTarget, 0, len(targets))
	for _, t := range targets {
		var payload []byte
		if !t.spec.Payload.IsZero() {
			raw, err := json.Marshal(t.spec.Payload)
			if err != nil {
				return nil, fmt.Errorf("error encoding target payload: %w", err)
			}
			payload = raw
		}

		target := &models.PostTarget{
			PostID:    postID,
			AccountID: t.account.ID,
			Platform:  t.account.Platform,
			Status:    models.TargetStatusPending,
			Payload:   payload,
		}
		id, err := s.pt.Create(ctx, tx, target)
		if err != nil {
			return nil, fmt.Errorf("error saving target for account %d: %w", t.account.ID, err)
		}
		target.ID = id
		stored = append(stored, target)
	}
	return stored, nil
}

// activateScheduled enqueues one dispatch job per target, then reserves
// daily quota slots, then takes the scheduled ledger slot. Failures
// release in reverse order and surface the error.
func (s *postService) activateScheduled(ctx context.Context, userID int64, post *models.Post, targets []*models.PostTarget, at time.Time, loc *time.Location) error {
	day := QuotaDay(at, loc)
	counts := targetPlatformCounts(targets)

	var enqueued []*models.PostTarget
	for _, t := range targets {
		payload := scheduler.DispatchPostPayload{
			PostID:    post.ID,
			TargetID:  t.ID,
			UserID:    userID,
			AccountID: t.AccountID,
			Platform:  t.Platform,
		}
		if err := s.sched.SchedulePost(ctx, payload, at); err != nil {
			s.cancelJobs(ctx, post.ID, enqueued)
			return fmt.Errorf("error scheduling dispatch job: %w", err)
		}
		enqueued = append(enqueued, t)
	}

	if err := s.quota.Reserve(ctx, userID, day, counts); err != nil {
		s.cancelJobs(ctx, post.ID, enqueued)
		return err
	}

	if _, err := s.usage.AdjustUsage(ctx, userID, models.UsageScheduled, 1); err != nil {
		s.quota.Release(ctx, userID, day, counts)
		s.cancelJobs(ctx, post.ID, enqueued)
		return err
	}
	return nil
}

func (s *postService) cancelJobs(ctx context.Context, postID int64, targets []*models.PostTarget) {
	for p := range targetPlatformCounts(targets) {
		if err := s.sched.CancelScheduledPost(ctx, p, postID); err != nil {
			slog.Error("failed to cancel dispatch jobs", "post_id", postID, "platform", p, "error", err)
			if err := s.sched.CleanupJobsForDeletedPost(ctx, p, postID); err != nil {
				slog.Error("dispatch job cleanup fallback failed", "post_id", postID, "platform", p, "error", err)
			}
		}
	}
}

// dispatchImmediate reserves today's quota slots, fans out to every
// target concurrently with all-settled semantics, converges the
// aggregate status, and settles usage counters from the outcomes.
func (s *postService) dispatchImmediate(ctx context.Context, userID int64, post *models.Post, targets []*models.PostTarget, loc *time.Location) {
	day := QuotaDay(time.Now(), loc)
	counts := targetPlatformCounts(targets)

	if err := s.quota.Reserve(ctx, userID, day, counts); err != nil {
		// Reservation failed after validation; record every target as
		// failed rather than leaving them pending forever.
		for _, t := range targets {
			s.recordOutcome(ctx, userID, post, t, fmt.Errorf("reserving daily quota: %w", err))
		}
		s.converge(ctx, post)
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 10)
	outcomes := make([]error, len(targets))

	for i, t := range targets {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(i int, t *models.PostTarget) {
			defer wg.Done()
			defer func() { <-semaphore }()
			outcomes[i] = s.sendToTarget(ctx, userID, post, t)
		}(i, t)
	}
	wg.Wait()

	succeeded := 0
	for i, t := range targets {
		s.recordOutcome(ctx, userID, post, t, outcomes[i])
		if outcomes[i] == nil {
			succeeded++
			s.bumpRateLimit(ctx, userID, t)
		}
	}

	s.converge(ctx, post)

	if succeeded > 0 {
		if _, err := s.usage.AdjustUsage(ctx, userID, models.UsageSent, succeeded); err != nil {
			slog.Error("failed to record sent usage", "post_id", post.ID, "error", err)
		}
	}
}

func (s *postService) sendToTarget(ctx context.Context, userID int64, post *models.Post, target *models.PostTarget) error {
	account, err := s.ac.GetByID(ctx, target.AccountID)
	if err != nil {
		return err
	}
	if account == nil {
		return validationErrorf("social account %d no longer exists", target.AccountID)
	}
	return s.pub.SendPost(ctx, post, target, account)
}

// recordOutcome updates the target row and appends a posting history
// entry. Errors here are logged, never escalated: a bookkeeping failure
// must not fail sibling targets.
func (s *postService) recordOutcome(ctx context.Context, userID int64, post *models.Post, target *models.PostTarget, outcome error) {
	status := models.TargetStatusDone
	message := ""
	if outcome != nil {
		status = models.TargetStatusFailed
		message = platform.UserMessage(target.Platform, outcome)
		slog.Error("target dispatch failed", "post_id", post.ID, "target_id", target.ID, "platform", target.Platform, "error", outcome)
	}
	target.Status = status
	target.ErrorMessage = message

	if err := s.pt.UpdateStatus(ctx, target.ID, status, message); err != nil {
		slog.Error("failed to update target status", "target_id", target.ID, "error", err)
	}

	history := &models.PostingHistory{
		UserID:       userID,
		PostID:       post.ID,
		TargetID:     target.ID,
		AccountID:    target.AccountID,
		Platform:     target.Platform,
		Succeeded:    outcome == nil,
		ErrorMessage: message,
	}
	if _, err := s.ph.Create(ctx, history); err != nil {
		slog.Error("failed to save posting history", "post_id", post.ID, "error", err)
	}
}

func (s *postService) bumpRateLimit(ctx context.Context, userID int64, target *models.PostTarget) {
	if err := s.rl.IncrementUsage(ctx, target.Platform, userID, target.AccountID); err != nil {
		slog.Error("failed to increment rate limit usage", "target_id", target.ID, "error", err)
	}
	if err := s.rl.IncrementAppUsage(ctx, target.Platform, userID); err != nil {
		slog.Error("failed to increment app rate limit usage", "target_id", target.ID, "error", err)
	}
}

// converge re-evaluates the aggregate status from the stored targets and
// applies it only when it changed. Safe to call repeatedly.
func (s *postService) converge(ctx context.Context, post *models.Post) {
	targets, err := s.pt.ListByPostID(ctx, post.ID)
	if err != nil {
		slog.Error("failed to load targets for status convergence", "post_id", post.ID, "error", err)
		return
	}
	next := AggregatePostStatus(targets)
	if next == post.Status {
		return
	}
	if err := s.pr.UpdatePostStatus(ctx, next, post.ID); err != nil {
		slog.Error("failed to update post status", "post_id", post.ID, "error", err)
		return
	}
	post.Status = next
}

func (s *postService) EditPost(ctx context.Context, userID, postID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (*transfer.PostView, error) {
	post, oldTargets, err := s.loadOwned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusDone {
		return nil, validationErrorf("post %d is already published and cannot be edited", postID)
	}

	loc := s.settings.GetLocation(ctx, userID)
	newSched, err := s.parseSchedule(pc, loc)
	if err != nil {
		return nil, err
	}
	oldSched := models.ScheduleOf(post)

	newTargets, err := s.resolveTargets(ctx, userID, pc.Targets)
	if err != nil {
		return nil, err
	}
	newCounts := platformCounts(newTargets)
	oldCounts := targetPlatformCounts(oldTargets)

	// Ledger reconciliation, keyed on the destination kind so every
	// origin (draft included) is accounted for. A scheduled post holds
	// one scheduled slot regardless of target count; an immediate post
	// consumes sent slots per successful target, so targets already
	// delivered offset the new demand.
	oldDone := 0
	for _, t := range oldTargets {
		if t.Status == models.TargetStatusDone {
			oldDone++
		}
	}

	switch newSched.Kind {
	case models.ScheduleAt:
		if !oldSched.IsScheduled() {
			// Draft or immediate origin takes a fresh scheduled slot.
			if err := s.usage.ValidateCapacity(ctx, userID, models.UsageScheduled, 1); err != nil {
				return nil, err
			}
		}
	case models.ScheduleImmediate:
		if delta := len(newTargets) - oldDone; delta > 0 {
			if err := s.usage.ValidateCapacity(ctx, userID, models.UsageSent, delta); err != nil {
				return nil, err
			}
		}
		// Same gate as immediate creation: one blocked account rejects
		// the whole edit before anything is reserved or replaced.
		for _, t := range newTargets {
			res, err := s.rl.CheckRateLimit(ctx, t.account.Platform, userID, t.account.ID)
			if err != nil {
				return nil, fmt.Errorf("checking rate limit: %w", err)
			}
			if !res.Allowed {
				return nil, &RateLimitError{
					Platform:   t.account.Platform,
					AccountID:  t.account.ID,
					RetryAfter: res.RetryAfter,
					ResetTime:  res.ResetTime,
				}
			}
		}
	}

	// Daily quota reconciliation: validate the new (or grown) demand
	// before touching anything.
	var oldDay, newDay time.Time
	if oldSched.IsScheduled() {
		oldDay = QuotaDay(oldSched.At, loc)
	}
	if newSched.IsScheduled() {
		newDay = QuotaDay(newSched.At, loc)
		if oldSched.IsScheduled() && oldDay.Equal(newDay) {
			// Same day: validate only the per-platform growth.
			growth := make(map[platform.Platform]int)
			for p, n := range newCounts {
				if d := n - oldCounts[p]; d > 0 {
					growth[p] = d
				}
			}
			if err := s.quota.ValidateBatch(ctx, userID, newDay, growth); err != nil {
				return nil, err
			}
		} else {
			if err := s.quota.ValidateBatch(ctx, userID, newDay, newCounts); err != nil {
				return nil, err
			}
		}
	}

	// All validations passed; replace the stored post and targets.
	if oldSched.IsScheduled() {
		s.cancelJobs(ctx, post.ID, oldTargets)
	}

	stored, err := s.replacePost(ctx, userID, post, pc, newSched, newTargets, files)
	if err != nil {
		return nil, err
	}

	// Apply ledger deltas now that persistence succeeded, exhaustive
	// over the origin kind. Leaving the scheduled state releases the
	// slot; entering it takes one; an immediate origin hands back the
	// sent slots of its delivered targets before they are replaced.
	switch oldSched.Kind {
	case models.ScheduleAt:
		if !newSched.IsScheduled() {
			s.adjustLogged(ctx, userID, models.UsageScheduled, -1, post.ID)
		}
	case models.ScheduleImmediate:
		s.adjustLogged(ctx, userID, models.UsageSent, -oldDone, post.ID)
		if newSched.IsScheduled() {
			s.adjustLogged(ctx, userID, models.UsageScheduled, 1, post.ID)
		}
	case models.ScheduleDraft:
		if newSched.IsScheduled() {
			s.adjustLogged(ctx, userID, models.UsageScheduled, 1, post.ID)
		}
	}

	// Quota moves: release the old day, reserve the new one (or apply
	// only the delta when the day is unchanged).
	if oldSched.IsScheduled() && newSched.IsScheduled() && oldDay.Equal(newDay) {
		for p, n := range newCounts {
			if d := n - oldCounts[p]; d > 0 {
				if err := s.quota.Reserve(ctx, userID, newDay, map[platform.Platform]int{p: d}); err != nil {
					slog.Error("failed to reserve quota delta", "post_id", post.ID, "platform", p, "error", err)
				}
			}
		}
		for p, n := range oldCounts {
			if d := n - newCounts[p]; d > 0 {
				s.quota.Release(ctx, userID, oldDay, map[platform.Platform]int{p: d})
			}
		}
	} else {
		if oldSched.IsScheduled() {
			s.quota.Release(ctx, userID, oldDay, oldCounts)
		}
		if newSched.IsScheduled() {
			if err := s.quota.Reserve(ctx, userID, newDay, newCounts); err != nil {
				slog.Error("failed to reserve quota for new day", "post_id", post.ID, "error", err)
			}
		}
	}

	switch newSched.Kind {
	case models.ScheduleAt:
		for _, t := range stored {
			payload := scheduler.DispatchPostPayload{
				PostID:    post.ID,
				TargetID:  t.ID,
				UserID:    userID,
				AccountID: t.AccountID,
				Platform:  t.Platform,
			}
			if err := s.sched.SchedulePost(ctx, payload, newSched.At); err != nil {
				slog.Error("failed to schedule dispatch job", "post_id", post.ID, "target_id", t.ID, "error", err)
			}
		}
	case models.ScheduleImmediate:
		s.dispatchImmediate(ctx, userID, post, stored, loc)
	}

	return s.hydrate(ctx, post.ID)
}

func (s *postService) adjustLogged(ctx context.Context, userID int64, ut models.UsageType, delta int, postID int64) {
	if delta == 0 {
		return
	}
	if _, err := s.usage.AdjustUsage(ctx, userID, ut, delta); err != nil {
		slog.Error("failed to adjust plan usage", "post_id", postID, "usage_type", ut, "delta", delta, "error", err)
	}
}

// replacePost updates the base row and swaps out every target row in one
// transaction (full replace, no diffing).
func (s *postService) replacePost(ctx context.Context, userID int64, post *models.Post, pc *transfer.PostCreation, sched models.Schedule, targets []*resolvedTarget, files []*multipart.FileHeader) (stored []*models.PostTarget, err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post.Caption = pc.Caption
	if pc.PostType != "" {
		post.PostType = pc.PostType
	}
	post.ScheduledTime = sched.Time()
	post.Status = initialStatus(sched)

	if err = s.pr.Update(ctx, tx, post); err != nil {
		return nil, fmt.Errorf("error updating post: %w", err)
	}

	if err = s.pt.RemoveByPostID(ctx, tx, post.ID); err != nil {
		return nil, fmt.Errorf("error removing old targets: %w", err)
	}

	stored, err = s.insertTargets(ctx, tx, post.ID, targets)
	if err != nil {
		return nil, err
	}

	if len(files) > 0 {
		if err = s.media.AttachFiles(ctx, tx, userID, post.ID, files); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stored, nil
}

// DeletePost is forward-only: every release is best effort and logged,
// and the post row is removed regardless of release failures.
func (s *postService) DeletePost(ctx context.Context, userID, postID int64) error {
	post, targets, err := s.loadOwned(ctx, userID, postID)
	if err != nil {
		return err
	}

	loc := s.settings.GetLocation(ctx, userID)
	sched := models.ScheduleOf(post)

	if sched.IsScheduled() {
		s.cancelJobs(ctx, post.ID, targets)
		day := QuotaDay(sched.At, loc)
		s.quota.Release(ctx, userID, day, targetPlatformCounts(targets))
		s.adjustLogged(ctx, userID, models.UsageScheduled, -1, post.ID)
		for _, t := range targets {
			if err := s.rl.DecrementUsage(ctx, t.Platform, userID, t.AccountID); err != nil {
				slog.Error("failed to release rate limit usage", "target_id", t.ID, "error", err)
			}
		}
	} else if sched.IsImmediate() {
		sent := 0
		for _, t := range targets {
			if t.Status == models.TargetStatusDone {
				sent++
			}
		}
		s.adjustLogged(ctx, userID, models.UsageSent, -sent, post.ID)
	}

	if err := s.media.RemoveForPost(ctx, postID); err != nil {
		slog.Error("failed to remove post media", "post_id", postID, "error", err)
	}
	if err := s.pt.RemoveByPostID(ctx, nil, postID); err != nil {
		return fmt.Errorf("error removing post targets: %w", err)
	}
	if err := s.pr.Remove(ctx, postID); err != nil {
		return fmt.Errorf("error removing post: %w", err)
	}
	return nil
}

// RetryPostTarget re-dispatches a single failed target. Counters are
// incremented only on success; the original failed attempt was never
// counted, so there is no double counting.
func (s *postService) RetryPostTarget(ctx context.Context, userID, targetID int64) (*transfer.PostView, error) {
	target, err := s.pt.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, validationErrorf("target doesn't exist")
	}
	if target.Status != models.TargetStatusFailed {
		return nil, validationErrorf("only failed targets can be retried")
	}

	post, _, err := s.loadOwned(ctx, userID, target.PostID)
	if err != nil {
		return nil, err
	}

	if err := s.pt.UpdateStatus(ctx, target.ID, models.TargetStatusPending, ""); err != nil {
		return nil, fmt.Errorf("error resetting target status: %w", err)
	}
	target.Status = models.TargetStatusPending

	outcome := s.sendToTarget(ctx, userID, post, target)
	s.recordOutcome(ctx, userID, post, target, outcome)
	if outcome == nil {
		s.bumpRateLimit(ctx, userID, target)
		s.adjustLogged(ctx, userID, models.UsageSent, 1, post.ID)
	}

	s.converge(ctx, post)
	return s.hydrate(ctx, post.ID)
}

// DispatchTarget runs inside the queue worker. The defensive re-check of
// the target's existence and status guards against the race between
// cancellation and firing.
func (s *postService) DispatchTarget(ctx context.Context, payload scheduler.DispatchPostPayload) error {
	target, err := s.pt.GetByID(ctx, payload.TargetID)
	if err != nil {
		return err
	}
	if target == nil || target.Status != models.TargetStatusPending {
		slog.Info("skipping stale dispatch job", "post_id", payload.PostID, "target_id", payload.TargetID)
		return nil
	}

	post, err := s.pr.GetByID(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		slog.Info("skipping dispatch for deleted post", "post_id", payload.PostID)
		return nil
	}

	// Rate limits are checked at dispatch time for scheduled posts.
	// A blocked account fails the job so the queue retries it later.
	res, err := s.rl.CheckRateLimit(ctx, payload.Platform, payload.UserID, payload.AccountID)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return fmt.Errorf("account %d rate limited until %s", payload.AccountID, res.ResetTime)
	}

	if post.Status == models.PostStatusPending {
		if err := s.pr.UpdatePostStatus(ctx, models.PostStatusPosting, post.ID); err != nil {
			slog.Error("failed to mark post as posting", "post_id", post.ID, "error", err)
		} else {
			post.Status = models.PostStatusPosting
		}
	}

	outcome := s.sendToTarget(ctx, payload.UserID, post, target)
	s.recordOutcome(ctx, payload.UserID, post, target, outcome)
	if outcome == nil {
		s.bumpRateLimit(ctx, payload.UserID, target)
		s.adjustLogged(ctx, payload.UserID, models.UsageSent, 1, post.ID)
	}

	s.converge(ctx, post)
	return nil
}

func (s *postService) GetFailedPostTargets(ctx context.Context, userID int64) ([]*models.PostTarget, error) {
	return s.pt.ListFailedByUserID(ctx, userID)
}

func (s *postService) GetPostsFailedCount(ctx context.Context, userID int64) (int, error) {
	return s.pt.CountFailedPostsByUserID(ctx, userID)
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting posts")
	}
	return posts, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*transfer.PostView, error) {
	if _, _, err := s.loadOwned(ctx, userID, postID); err != nil {
		return nil, err
	}
	return s.hydrate(ctx, postID)
}

func (s *postService) loadOwned(ctx context.Context, userID, postID int64) (*models.Post, []*models.PostTarget, error) {
	if userID == 0 || postID == 0 {
		return nil, nil, validationErrorf("post is not valid")
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !isValid {
		return nil, nil, validationErrorf("post doesn't exist")
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	if post == nil {
		return nil, nil, validationErrorf("post doesn't exist")
	}

	targets, err := s.pt.ListByPostID(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	return post, targets, nil
}

func (s *postService) hydrate(ctx context.Context, postID int64) (*transfer.PostView, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, errors.New("post vanished during operation")
	}
	targets, err := s.pt.ListByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}
	return &transfer.PostView{Post: post, Targets: targets}, nil
}
