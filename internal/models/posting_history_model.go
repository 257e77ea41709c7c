package models

import (
	"time"

	"github.com/postpilot-app/postpilot/internal/platform"
)

// PostingHistory records one dispatch attempt for one target.
type PostingHistory struct {
	ID           int64             `db:"id" json:"id"`
	UserID       int64             `db:"user_id" json:"user_id"`
	PostID       int64             `db:"post_id" json:"post_id"`
	TargetID     int64             `db:"target_id" json:"target_id"`
	AccountID    int64             `db:"account_id" json:"account_id"`
	Platform     platform.Platform `db:"platform" json:"platform"`
	Succeeded    bool              `db:"succeeded" json:"succeeded"`
	ErrorMessage string            `db:"error_message" json:"error_message"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
}
