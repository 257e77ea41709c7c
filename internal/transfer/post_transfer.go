package transfer

import (
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/platform"
)

// TargetPayload is the platform-specific content for one target. The
// orchestrator treats it as opaque; publishers decode what they need.
type TargetPayload struct {
	Caption      string   `json:"caption,omitempty"`
	Title        string   `json:"title,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Link         string   `json:"link,omitempty"`
	PrivacyLevel string   `json:"privacy_level,omitempty"`
}

func (p TargetPayload) IsZero() bool {
	return p.Caption == "" && p.Title == "" && len(p.Tags) == 0 && p.Link == "" && p.PrivacyLevel == ""
}

// TargetSpec selects one connected account as a delivery target.
type TargetSpec struct {
	AccountID int64         `json:"account_id" validate:"required,gt=0"`
	Payload   TargetPayload `json:"payload"`
}

// PostCreation is the request body for creating or editing a post.
// Exactly one of Draft, PostNow, or ScheduledTime applies: drafts win,
// then postNow, then a scheduled time is required.
type PostCreation struct {
	Caption       string       `json:"caption"`
	PostType      string       `json:"post_type" validate:"omitempty,oneof=text media"`
	Draft         bool         `json:"draft"`
	PostNow       bool         `json:"post_now"`
	ScheduledTime string       `json:"scheduled_time" validate:"omitempty,datetime=2006-01-02T15:04"`
	Targets       []TargetSpec `json:"targets" validate:"required,min=1,dive"`
}

// PostView is the hydrated post returned by the orchestrator.
type PostView struct {
	Post    *models.Post         `json:"post"`
	Targets []*models.PostTarget `json:"targets"`
}

// PlatformConfigView backs the usage dashboards.
type PlatformConfigView struct {
	Platform platform.Platform `json:"platform"`
	Limits   platform.Limits   `json:"limits"`
	Used     int64             `json:"used"`
	Reset    time.Time         `json:"reset"`
}
