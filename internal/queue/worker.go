package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/postpilot-app/postpilot/internal/scheduler"
	"github.com/postpilot-app/postpilot/internal/service"
)

// Worker consumes dispatch jobs from the delayed queue. All the
// dispatch logic lives in the post service; the worker only decodes the
// payload and maps service outcomes onto asynq retry semantics.
type Worker struct {
	ps service.PostService
}

func NewWorker(ps service.PostService) *Worker {
	return &Worker{ps: ps}
}

// Mux registers the worker's task handlers.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(scheduler.TaskTypeDispatchPost, w.HandleDispatchPostTask)
	return mux
}

// HandleDispatchPostTask delivers one target of a scheduled post.
// Returning an error makes asynq retry the job with backoff, which is
// how rate-limited dispatches get deferred.
func (w *Worker) HandleDispatchPostTask(ctx context.Context, task *asynq.Task) error {
	var payload scheduler.DispatchPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		slog.Error("failed to decode dispatch payload", "error", err)
		return err
	}

	return w.ps.DispatchTarget(ctx, payload)
}
