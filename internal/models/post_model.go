package models

import (
	"time"

	"github.com/postpilot-app/postpilot/internal/platform"
)

type Post struct {
	ID            int64      `db:"id" json:"id"`
	UserID        int64      `db:"user_id" json:"user_id"`
	PostType      string     `db:"post_type" json:"post_type"`
	Caption       string     `db:"caption" json:"caption"`
	CoverImageURL string     `db:"cover_image_url" json:"cover_image_url"`
	ScheduledTime *time.Time `db:"scheduled_time" json:"scheduled_time"`
	Status        string     `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// PostTarget is one (post, platform, account) delivery unit. The
// platform+account pair is unique within a post; targets are replaced
// wholesale on edit, never diffed.
type PostTarget struct {
	ID           int64             `db:"id" json:"id"`
	PostID       int64             `db:"post_id" json:"post_id"`
	AccountID    int64             `db:"account_id" json:"account_id"`
	Platform     platform.Platform `db:"platform" json:"platform"`
	Status       string            `db:"status" json:"status"`
	Payload      []byte            `db:"payload" json:"payload,omitempty"`
	ErrorMessage string            `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

type MediaAsset struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	FileName     string    `db:"file_name"`
	FileType     string    `db:"file_type"`
	FileSize     int64     `db:"file_size"`
	FileURL      string    `db:"file_url"`
	ThumbnailURL string    `db:"thumbnail_url"`
	CreatedAt    time.Time `db:"created_at"`
}

type PostMedia struct {
	PostID       int64     `db:"post_id"`
	AssetID      int64     `db:"asset_id"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}

const (
	PostTypeText  = "text"
	PostTypeMedia = "media"
)

const (
	PostStatusDraft         = "draft"
	PostStatusPending       = "pending"
	PostStatusPosting       = "posting"
	PostStatusDone          = "done"
	PostStatusPartiallyDone = "partially_done"
	PostStatusFailed        = "failed"
	PostStatusCancelled     = "cancelled"
)

const (
	TargetStatusPending   = "pending"
	TargetStatusDone      = "done"
	TargetStatusFailed    = "failed"
	TargetStatusCancelled = "cancelled"
)
