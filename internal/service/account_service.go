package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	config "github.com/postpilot-app/postpilot/configs"
	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/platform"
	"github.com/postpilot-app/postpilot/internal/repository"
)

const (
	tiktokAuthURL    = "https://www.tiktok.com/v2/auth/authorize"
	googleAuthURL    = "https://accounts.google.com/o/oauth2/v2/auth"
	instagramAuthURL = "https://www.instagram.com/oauth/authorize"
)

// AccountService manages connected social accounts. Connecting and
// disconnecting adjusts the plan ledger's accounts counter, which is not
// period-bound.
type AccountService interface {
	GetAuthURL(ctx context.Context, p platform.Platform, tokenString string) string
	ValidateConnectCapacity(ctx context.Context, userID int64) error
	RecordConnected(ctx context.Context, userID int64)
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Delete(ctx context.Context, userID, accountID int64) error
}

type accountService struct {
	cfg   config.Config
	sa    repository.SocialAccountRepository
	usage UsageService
}

func NewAccountService(cfg config.Config, sa repository.SocialAccountRepository, usage UsageService) AccountService {
	return &accountService{cfg: cfg, sa: sa, usage: usage}
}

func (s *accountService) GetAuthURL(ctx context.Context, p platform.Platform, tokenString string) string {
	switch p {
	case platform.Instagram:
		params := url.Values{}
		params.Add("client_id", s.cfg.InstagramClientID)
		params.Add("scope", "instagram_business_basic,instagram_business_content_publish")
		params.Add("response_type", "code")
		params.Add("redirect_uri", s.cfg.InstagramRedirectURI)
		params.Add("state", tokenString)
		return fmt.Sprintf("%s?%s", instagramAuthURL, params.Encode())

	case platform.Tiktok:
		params := url.Values{}
		params.Add("client_key", s.cfg.TiktokClientKey)
		params.Add("scope", "user.info.basic,user.info.profile,video.publish,video.upload")
		params.Add("response_type", "code")
		params.Add("redirect_uri", s.cfg.TiktokRedirectURI)
		params.Add("state", tokenString)
		return fmt.Sprintf("%s?%s", tiktokAuthURL, params.Encode())

	case platform.Youtube:
		params := url.Values{}
		params.Add("client_id", s.cfg.GoogleClientID)
		params.Add("redirect_uri", s.cfg.GoogleRedirectURI)
		params.Add("response_type", "code")
		params.Add("scope", "https://www.googleapis.com/auth/userinfo.profile https://www.googleapis.com/auth/userinfo.email https://www.googleapis.com/auth/youtube.upload")
		params.Add("state", tokenString)
		params.Add("access_type", "offline")
		return fmt.Sprintf("%s?%s", googleAuthURL, params.Encode())
	}
	return ""
}

func (s *accountService) ValidateConnectCapacity(ctx context.Context, userID int64) error {
	return s.usage.ValidateCapacity(ctx, userID, models.UsageAccounts, 1)
}

func (s *accountService) RecordConnected(ctx context.Context, userID int64) {
	if _, err := s.usage.AdjustUsage(ctx, userID, models.UsageAccounts, 1); err != nil {
		slog.Error("failed to record connected account", "user_id", userID, "error", err)
	}
}

func (s *accountService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	if userID == 0 {
		err := errors.New("user is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	accounts, err := s.sa.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting social accounts")
	}
	return accounts, nil
}

func (s *accountService) Delete(ctx context.Context, userID, accountID int64) error {
	if userID == 0 || accountID == 0 {
		err := errors.New("account is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		return validationErrorf("account doesn't exist")
	}

	if err := s.sa.Remove(ctx, accountID); err != nil {
		return fmt.Errorf("error removing social account")
	}

	if _, err := s.usage.AdjustUsage(ctx, userID, models.UsageAccounts, -1); err != nil {
		slog.Error("failed to release account usage", "user_id", userID, "error", err)
	}
	return nil
}
