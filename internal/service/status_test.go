package service

import (
	"testing"

	"github.com/postpilot-app/postpilot/internal/models"
)

func targetsWith(statuses ...string) []*models.PostTarget {
	out := make([]*models.PostTarget, len(statuses))
	for i, s := range statuses {
		out[i] = &models.PostTarget{ID: int64(i + 1), Status: s}
	}
	return out
}

func TestAggregatePostStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"no targets", nil, models.PostStatusFailed},
		{"all done", []string{models.TargetStatusDone, models.TargetStatusDone}, models.PostStatusDone},
		{"all failed", []string{models.TargetStatusFailed, models.TargetStatusFailed}, models.PostStatusFailed},
		{"mixed", []string{models.TargetStatusDone, models.TargetStatusFailed}, models.PostStatusPartiallyDone},
		{"still pending", []string{models.TargetStatusDone, models.TargetStatusPending}, models.PostStatusPosting},
		{"pending beats failure", []string{models.TargetStatusFailed, models.TargetStatusPending}, models.PostStatusPosting},
		{"all cancelled", []string{models.TargetStatusCancelled, models.TargetStatusCancelled}, models.PostStatusCancelled},
		{"cancelled ignored in mix", []string{models.TargetStatusDone, models.TargetStatusCancelled}, models.PostStatusDone},
		{"cancelled with failure", []string{models.TargetStatusFailed, models.TargetStatusCancelled}, models.PostStatusFailed},
		{"single done", []string{models.TargetStatusDone}, models.PostStatusDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregatePostStatus(targetsWith(tt.statuses...)); got != tt.want {
				t.Errorf("AggregatePostStatus(%v) = %q, want %q", tt.statuses, got, tt.want)
			}
		})
	}
}
