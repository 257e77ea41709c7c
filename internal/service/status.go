package service

import (
	"github.com/postpilot-app/postpilot/internal/models"
)

// AggregatePostStatus converges per-target statuses into the post's
// overall status. Pure over the multiset of target statuses: all done is
// done, all failed is failed, a mix is partially done. Targets still
// pending or cancelled keep the aggregate in posting until they resolve
// (cancelled targets are ignored unless everything is cancelled).
func AggregatePostStatus(targets []*models.PostTarget) string {
	if len(targets) == 0 {
		return models.PostStatusFailed
	}

	var done, failed, pending, cancelled int
	for _, t := range targets {
		switch t.Status {
		case models.TargetStatusDone:
			done++
		case models.TargetStatusFailed:
			failed++
		case models.TargetStatusPending:
			pending++
		case models.TargetStatusCancelled:
			cancelled++
		}
	}

	if cancelled == len(targets) {
		return models.PostStatusCancelled
	}
	if pending > 0 {
		return models.PostStatusPosting
	}
	if failed == 0 {
		return models.PostStatusDone
	}
	if done == 0 {
		return models.PostStatusFailed
	}
	return models.PostStatusPartiallyDone
}
