package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/postpilot-app/postpilot/internal/platform"
)

const TaskTypeDispatchPost = "dispatch:post"

const queueName = "default"

// DispatchPostPayload identifies one delivery job: a single target of a
// scheduled post.
type DispatchPostPayload struct {
	PostID    int64             `json:"post_id"`
	TargetID  int64             `json:"target_id"`
	UserID    int64             `json:"user_id"`
	AccountID int64             `json:"account_id"`
	Platform  platform.Platform `json:"platform"`
}

// Scheduler is the durable delayed work queue for dispatch jobs. Jobs
// are idempotent on (platform, post, account): scheduling the same key
// again supersedes the previous job instead of duplicating it.
type Scheduler interface {
	SchedulePost(ctx context.Context, payload DispatchPostPayload, when time.Time) error
	CancelScheduledPost(ctx context.Context, p platform.Platform, postID int64) error
	ReschedulePost(ctx context.Context, p platform.Platform, postID int64, newWhen time.Time) error
	// CleanupJobsForDeletedPost is the best-effort fallback when
	// CancelScheduledPost fails: it sweeps every queue state so no
	// orphaned job ever fires for a deleted post.
	CleanupJobsForDeletedPost(ctx context.Context, p platform.Platform, postID int64) error
}

type asynqScheduler struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func New(client *asynq.Client, inspector *asynq.Inspector) Scheduler {
	return &asynqScheduler{client: client, inspector: inspector}
}

func taskID(p platform.Platform, postID, accountID int64) string {
	return fmt.Sprintf("dispatch:%s:%d:%d", p, postID, accountID)
}

func taskPrefix(p platform.Platform, postID int64) string {
	return fmt.Sprintf("dispatch:%s:%d:", p, postID)
}

func (s *asynqScheduler) SchedulePost(ctx context.Context, payload DispatchPostPayload, when time.Time) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	id := taskID(payload.Platform, payload.PostID, payload.AccountID)

	// Supersede, never duplicate: drop any previous job under this key.
	if err := s.inspector.DeleteTask(queueName, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		slog.Info(err.Error())
	}

	task := asynq.NewTask(TaskTypeDispatchPost, taskPayload)
	_, err = s.client.EnqueueContext(ctx, task, asynq.TaskID(id), asynq.ProcessAt(when), asynq.Queue(queueName), asynq.MaxRetry(3))
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	slog.Info("dispatch job scheduled", "task_id", id, "at", when)
	return nil
}

func (s *asynqScheduler) CancelScheduledPost(ctx context.Context, p platform.Platform, postID int64) error {
	tasks, err := s.inspector.ListScheduledTasks(queueName, asynq.PageSize(500))
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return nil
		}
		slog.Info(err.Error())
		return err
	}

	prefix := taskPrefix(p, postID)
	for _, t := range tasks {
		if !strings.HasPrefix(t.ID, prefix) {
			continue
		}
		if err := s.inspector.DeleteTask(queueName, t.ID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			slog.Info(err.Error())
			return err
		}
	}
	return nil
}

func (s *asynqScheduler) ReschedulePost(ctx context.Context, p platform.Platform, postID int64, newWhen time.Time) error {
	tasks, err := s.inspector.ListScheduledTasks(queueName, asynq.PageSize(500))
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return nil
		}
		slog.Info(err.Error())
		return err
	}

	prefix := taskPrefix(p, postID)
	for _, t := range tasks {
		if !strings.HasPrefix(t.ID, prefix) {
			continue
		}
		if err := s.inspector.DeleteTask(queueName, t.ID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			slog.Info(err.Error())
			return err
		}
		task := asynq.NewTask(TaskTypeDispatchPost, t.Payload)
		if _, err := s.client.EnqueueContext(ctx, task, asynq.TaskID(t.ID), asynq.ProcessAt(newWhen), asynq.Queue(queueName), asynq.MaxRetry(3)); err != nil {
			slog.Info(err.Error())
			return err
		}
	}
	return nil
}

func (s *asynqScheduler) CleanupJobsForDeletedPost(ctx context.Context, p platform.Platform, postID int64) error {
	prefix := taskPrefix(p, postID)

	lists := []func(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error){
		s.inspector.ListScheduledTasks,
		s.inspector.ListPendingTasks,
		s.inspector.ListRetryTasks,
	}

	var lastErr error
	for _, list := range lists {
		tasks, err := list(queueName, asynq.PageSize(500))
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			slog.Info(err.Error())
			lastErr = err
			continue
		}
		for _, t := range tasks {
			if !strings.HasPrefix(t.ID, prefix) {
				continue
			}
			if err := s.inspector.DeleteTask(queueName, t.ID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
				slog.Info(err.Error())
				lastErr = err
			}
		}
	}
	return lastErr
}
