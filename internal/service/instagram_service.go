package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/postpilot-app/postpilot/configs"
	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/platform"
	"github.com/postpilot-app/postpilot/internal/repository"
	"github.com/postpilot-app/postpilot/internal/transfer"
	"github.com/postpilot-app/postpilot/pkg/utils"
)

const (
	instagramTokenURL   = "https://api.instagram.com/oauth/access_token"
	instagramGraphURL   = "https://graph.instagram.com"
	instagramRefreshURL = "https://graph.instagram.com/refresh_access_token"
)

type InstagramService interface {
	Publisher
	InstagramCallback(ctx context.Context, code string, userID int64) error
	RefreshInstagramToken(ctx context.Context, userID int64, refreshToken string) error
}

type instagramService struct {
	cfg config.Config
	sa  repository.SocialAccountRepository
	pm  repository.PostMediaRepository
	ma  repository.MediaAssetRepository
}

func NewInstagramService(
	cfg config.Config,
	sa repository.SocialAccountRepository,
	pm repository.PostMediaRepository,
	ma repository.MediaAssetRepository) InstagramService {
	return &instagramService{
		cfg: cfg,
		sa:  sa,
		pm:  pm,
		ma:  ma,
	}
}

func (ig *instagramService) InstagramCallback(ctx context.Context, code string, userID int64) error {
	if code == "" {
		err := errors.New("code is empty")
		slog.Info(err.Error())
		return err
	}

	data := url.Values{}
	data.Add("client_id", ig.cfg.InstagramClientID)
	data.Add("client_secret", ig.cfg.InstagramClientSecret)
	data.Add("grant_type", "authorization_code")
	data.Add("redirect_uri", ig.cfg.InstagramRedirectURI)
	data.Add("code", code)

	resp, err := http.Post(instagramTokenURL, "application/x-www-form-urlencoded", strings.NewReader(data.Encode()))
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return igError(resp)
	}

	var token transfer.InstagramToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to decode token response: %w", err)
	}

	userInfo, err := ig.instagramUserInfo(token.AccessToken)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(ig.cfg.SecretKey))
	if err != nil {
		return err
	}

	accountInfo := &models.SocialAccount{
		UserID:          userID,
		Platform:        platform.Instagram,
		AccountID:       userInfo.UserID,
		AccountName:     userInfo.Name,
		AccountUsername: userInfo.Username,
		ProfilePicture:  userInfo.ProfilePicture,
		AccessToken:     encryptedAccessToken,
		TokenExpiresAt:  time.Now().Add(60 * 24 * time.Hour),
	}

	_, err = ig.sa.Create(ctx, nil, accountInfo)
	return err
}

func (ig *instagramService) instagramUserInfo(accessToken string) (*transfer.InstagramUserInfo, error) {
	resp, err := http.Get(fmt.Sprintf("%s/me?fields=id,username,name,profile_picture_url&access_token=%s", instagramGraphURL, accessToken))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, igError(resp)
	}

	var userInfo transfer.InstagramUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &userInfo, nil
}

func (ig *instagramService) RefreshInstagramToken(ctx context.Context, userID int64, accessToken string) error {
	decrypted, err := utils.Decrypt(accessToken, []byte(ig.cfg.SecretKey))
	if err != nil {
		return err
	}

	resp, err := http.Get(fmt.Sprintf("%s?grant_type=ig_refresh_token&access_token=%s", instagramRefreshURL, decrypted))
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return igError(resp)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		slog.Info(err.Error())
		return err
	}

	encrypted, err := utils.Encrypt([]byte(token.AccessToken), []byte(ig.cfg.SecretKey))
	if err != nil {
		return err
	}

	account := &models.SocialAccount{
		AccessToken:    encrypted,
		TokenExpiresAt: GetExpiresAt(token.ExpiresIn),
	}
	return ig.sa.SetToken(ctx, userID, accessToken, account)
}

// SendPost publishes one target through the Graph API: create a media
// container, then publish it. Text-only posts are rejected by Instagram,
// so a media asset is required.
func (ig *instagramService) SendPost(ctx context.Context, post *models.Post, target *models.PostTarget, acc *models.SocialAccount) error {
	accessToken, err := utils.Decrypt(acc.AccessToken, []byte(ig.cfg.SecretKey))
	if err != nil {
		return err
	}

	caption := post.Caption
	var payload transfer.TargetPayload
	if len(target.Payload) > 0 {
		if err := json.Unmarshal(target.Payload, &payload); err == nil && payload.Caption != "" {
			caption = payload.Caption
		}
	}

	media, err := ig.pm.GetByPostID(ctx, post.ID)
	if err != nil {
		return err
	}
	if media == nil {
		return &platform.Error{Platform: platform.Instagram, Status: http.StatusBadRequest, Message: "instagram posts require media"}
	}
	asset, err := ig.ma.GetByID(ctx, media.AssetID)
	if err != nil {
		return err
	}
	if asset == nil {
		return &platform.Error{Platform: platform.Instagram, Status: http.StatusBadRequest, Message: "media asset missing"}
	}

	containerID, err := ig.createContainer(ctx, acc.AccountID, accessToken, asset, caption)
	if err != nil {
		return err
	}
	return ig.publishContainer(ctx, acc.AccountID, accessToken, containerID)
}

func (ig *instagramService) createContainer(ctx context.Context, igUserID, accessToken string, asset *models.MediaAsset, caption string) (string, error) {
	params := url.Values{}
	params.Add("caption", caption)
	params.Add("access_token", accessToken)
	if strings.HasPrefix(asset.FileType, "video") {
		params.Add("media_type", "REELS")
		params.Add("video_url", asset.FileURL)
	} else {
		params.Add("image_url", asset.FileURL)
	}

	endpoint := fmt.Sprintf("%s/%s/media", instagramGraphURL, igUserID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", igError(resp)
	}

	var container struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&container); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return container.ID, nil
}

func (ig *instagramService) publishContainer(ctx context.Context, igUserID, accessToken, containerID string) error {
	params := url.Values{}
	params.Add("creation_id", containerID)
	params.Add("access_token", accessToken)

	endpoint := fmt.Sprintf("%s/%s/media_publish", instagramGraphURL, igUserID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return igError(resp)
	}
	return nil
}

// igError decodes a Graph API error response into a classifiable
// platform error.
func igError(resp *http.Response) error {
	var errResp transfer.InstagramErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return &platform.Error{Platform: platform.Instagram, Status: resp.StatusCode, Message: resp.Status}
	}
	return &platform.Error{
		Platform: platform.Instagram,
		Status:   resp.StatusCode,
		Code:     fmt.Sprintf("%d", errResp.Error.Code),
		Message:  errResp.Error.Message,
	}
}
