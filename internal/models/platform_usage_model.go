package models

import (
	"time"

	"github.com/postpilot-app/postpilot/internal/platform"
)

// PlatformDailyUsage counts scheduled posts for one user on one platform
// for one calendar day. ScheduledCount never goes below zero; the
// repository upserts with a floor clamp.
type PlatformDailyUsage struct {
	ID             int64             `db:"id" json:"id"`
	UserID         int64             `db:"user_id" json:"user_id"`
	Platform       platform.Platform `db:"platform" json:"platform"`
	Day            time.Time         `db:"day" json:"day"`
	ScheduledCount int               `db:"scheduled_count" json:"scheduled_count"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}
