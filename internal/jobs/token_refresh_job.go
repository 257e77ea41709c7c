package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/platform"
	"github.com/postpilot-app/postpilot/internal/repository"
	"github.com/postpilot-app/postpilot/internal/service"
)

type TokenRefreshJob struct {
	sr repository.SocialAccountRepository
	yt service.YoutubeService
	tt service.TiktokService
	ig service.InstagramService
}

func NewTokenRefreshJob(
	sr repository.SocialAccountRepository,
	yt service.YoutubeService,
	tt service.TiktokService,
	ig service.InstagramService) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr: sr,
		yt: yt,
		tt: tt,
		ig: ig,
	}
}

// RefreshTokens refreshes access tokens for accounts expiring within
// the next 30 minutes.
func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	accounts, err := c.sr.ListByTimeInterval(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			var err error
			switch acc.Platform {
			case platform.Youtube:
				err = c.yt.RefreshYoutubeToken(ctx, acc.UserID, acc.AccessToken, acc.RefreshToken)
			case platform.Instagram:
				err = c.ig.RefreshInstagramToken(ctx, acc.UserID, acc.RefreshToken)
			case platform.Tiktok:
				err = c.tt.RefreshTiktokToken(ctx, acc.UserID, acc.AccessToken, acc.RefreshToken)
			}
			if err != nil {
				slog.Error("unable to refresh token", "platform", acc.Platform, "account_id", acc.ID, "error", err)
			}
		}(acc)
	}

	wg.Wait()
}
