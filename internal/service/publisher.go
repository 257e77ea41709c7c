package service

import (
	"context"
	"fmt"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/platform"
)

// Publisher delivers one target to its platform. It returns the outcome
// synchronously; status convergence is solely the orchestrator's job.
// Failures surface as *platform.Error when the provider answered, or a
// plain error for transport problems.
type Publisher interface {
	SendPost(ctx context.Context, post *models.Post, target *models.PostTarget, acc *models.SocialAccount) error
}

// publisherRouter dispatches on the closed platform enum.
type publisherRouter struct {
	ig Publisher
	tt Publisher
	yt Publisher
}

func NewPublisherRouter(ig, tt, yt Publisher) Publisher {
	return &publisherRouter{ig: ig, tt: tt, yt: yt}
}

func (r *publisherRouter) SendPost(ctx context.Context, post *models.Post, target *models.PostTarget, acc *models.SocialAccount) error {
	switch target.Platform {
	case platform.Instagram:
		return r.ig.SendPost(ctx, post, target, acc)
	case platform.Tiktok:
		return r.tt.SendPost(ctx, post, target, acc)
	case platform.Youtube:
		return r.yt.SendPost(ctx, post, target, acc)
	}
	return fmt.Errorf("no publisher for platform %q", target.Platform)
}
