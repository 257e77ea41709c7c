package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	config "github.com/postpilot-app/postpilot/configs"
	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/platform"
	"github.com/postpilot-app/postpilot/internal/repository"
	"github.com/postpilot-app/postpilot/internal/transfer"
	"github.com/postpilot-app/postpilot/pkg/utils"
)

const (
	tiktokTokenURL   = "https://open.tiktokapis.com/v2/oauth/token/"
	tiktokUserURL    = "https://open.tiktokapis.com/v2/user/info/?fields=open_id,avatar_url,display_name,username"
	tiktokPublishURL = "https://open.tiktokapis.com/v2/post/publish/content/init/"
)

type TiktokService interface {
	Publisher
	TiktokCallback(ctx context.Context, code string, userID int64) error
	RefreshTiktokToken(ctx context.Context, userID int64, accessToken, refreshToken string) error
}

type tiktokService struct {
	cfg config.Config
	sa  repository.SocialAccountRepository
	pm  repository.PostMediaRepository
	ma  repository.MediaAssetRepository
}

func NewTiktokService(
	cfg config.Config,
	sa repository.SocialAccountRepository,
	pm repository.PostMediaRepository,
	ma repository.MediaAssetRepository) TiktokService {
	return &tiktokService{
		cfg: cfg,
		sa:  sa,
		pm:  pm,
		ma:  ma,
	}
}

func (s *tiktokService) TiktokCallback(ctx context.Context, code string, userID int64) error {
	if code == "" {
		err := errors.New("code is empty")
		slog.Info(err.Error())
		return err
	}

	tokenResponse, err := s.exchangeCodeForToken(ctx, code)
	if err != nil {
		return err
	}

	userInfo, err := s.tiktokUserInfo(ctx, tokenResponse.AccessToken)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(tokenResponse.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	encryptedRefreshToken, err := utils.Encrypt([]byte(tokenResponse.RefreshToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	accountInfo := &models.SocialAccount{
		UserID:          userID,
		Platform:        platform.Tiktok,
		AccountID:       userInfo.Data.User.OpenID,
		AccountName:     userInfo.Data.User.DisplayName,
		AccountUsername: userInfo.Data.User.Username,
		ProfilePicture:  userInfo.Data.User.AvatarURL,
		AccessToken:     encryptedAccessToken,
		RefreshToken:    encryptedRefreshToken,
		TokenExpiresAt:  GetExpiresAt(tokenResponse.ExpiresIn),
	}

	_, err = s.sa.Create(ctx, nil, accountInfo)
	return err
}

func (s *tiktokService) exchangeCodeForToken(ctx context.Context, code string) (*transfer.TiktokTokenResponse, error) {
	data := url.Values{}
	data.Add("client_key", s.cfg.TiktokClientKey)
	data.Add("client_secret", s.cfg.TiktokClientSecret)
	data.Add("code", code)
	data.Add("grant_type", "authorization_code")
	data.Add("redirect_uri", s.cfg.TiktokRedirectURI)

	return s.tokenRequest(ctx, data)
}

func (s *tiktokService) RefreshTiktokToken(ctx context.Context, userID int64, accessToken, refreshToken string) error {
	decrypted, err := utils.Decrypt(refreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	data := url.Values{}
	data.Add("client_key", s.cfg.TiktokClientKey)
	data.Add("client_secret", s.cfg.TiktokClientSecret)
	data.Add("grant_type", "refresh_token")
	data.Add("refresh_token", decrypted)

	tokenResponse, err := s.tokenRequest(ctx, data)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(tokenResponse.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}
	encryptedRefreshToken, err := utils.Encrypt([]byte(tokenResponse.RefreshToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	account := &models.SocialAccount{
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: GetExpiresAt(tokenResponse.ExpiresIn),
	}
	return s.sa.SetToken(ctx, userID, accessToken, account)
}

func (s *tiktokService) tokenRequest(ctx context.Context, data url.Values) (*transfer.TiktokTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tiktokTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Info("TikTok token endpoint returned non-200 status")
		return nil, &platform.Error{Platform: platform.Tiktok, Status: resp.StatusCode, Message: "token endpoint returned non-200 status"}
	}

	var tokenResponse transfer.TiktokTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	return &tokenResponse, nil
}

func (s *tiktokService) tiktokUserInfo(ctx context.Context, accessToken string) (*transfer.TikTokResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tiktokUserURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var userInfo transfer.TikTokResponse
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if userInfo.Error.Code != "" && userInfo.Error.Code != "ok" {
		return nil, &platform.Error{Platform: platform.Tiktok, Status: resp.StatusCode, Code: userInfo.Error.Code, Message: userInfo.Error.Message}
	}
	return &userInfo, nil
}

// SendPost publishes one target through the content posting API using
// PULL_FROM_URL so TikTok fetches the media itself.
func (s *tiktokService) SendPost(ctx context.Context, post *models.Post, target *models.PostTarget, acc *models.SocialAccount) error {
	accessToken, err := utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	title := post.Caption
	privacy := "PUBLIC_TO_EVERYONE"
	var payload transfer.TargetPayload
	if len(target.Payload) > 0 {
		if err := json.Unmarshal(target.Payload, &payload); err == nil {
			if payload.Title != "" {
				title = payload.Title
			}
			if payload.PrivacyLevel != "" {
				privacy = payload.PrivacyLevel
			}
		}
	}

	media, err := s.pm.GetByPostID(ctx, post.ID)
	if err != nil {
		return err
	}
	if media == nil {
		return &platform.Error{Platform: platform.Tiktok, Status: http.StatusBadRequest, Message: "tiktok posts require media"}
	}
	asset, err := s.ma.GetByID(ctx, media.AssetID)
	if err != nil {
		return err
	}
	if asset == nil {
		return &platform.Error{Platform: platform.Tiktok, Status: http.StatusBadRequest, Message: "media asset missing"}
	}

	body := transfer.VideoUploadRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:        title,
			PrivacyLevel: privacy,
		},
		SourceInfo: transfer.VideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: asset.FileURL,
		},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tiktokPublishURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	var uploadResp transfer.TikTokUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		slog.Info(err.Error())
		return err
	}
	if uploadResp.Error.Code != "" && uploadResp.Error.Code != "ok" {
		return &platform.Error{Platform: platform.Tiktok, Status: resp.StatusCode, Code: uploadResp.Error.Code, Message: uploadResp.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return &platform.Error{Platform: platform.Tiktok, Status: resp.StatusCode, Message: resp.Status}
	}

	slog.Info("tiktok publish accepted", "publish_id", uploadResp.Data.PublishID, "post_id", post.ID)
	return nil
}
