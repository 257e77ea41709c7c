package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	config "github.com/postpilot-app/postpilot/configs"
	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/platform"
	"github.com/postpilot-app/postpilot/internal/repository"
	"github.com/postpilot-app/postpilot/internal/transfer"
	"github.com/postpilot-app/postpilot/pkg/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

type YoutubeService interface {
	Publisher
	YoutubeCallback(ctx context.Context, code string, userID int64) error
	RefreshYoutubeToken(ctx context.Context, userID int64, accessToken, refreshToken string) error
}

type youtubeService struct {
	cfg config.Config
	sa  repository.SocialAccountRepository
	pm  repository.PostMediaRepository
	ma  repository.MediaAssetRepository
}

func NewYoutubeService(
	cfg config.Config,
	sa repository.SocialAccountRepository,
	pm repository.PostMediaRepository,
	ma repository.MediaAssetRepository) YoutubeService {
	return &youtubeService{
		cfg: cfg,
		sa:  sa,
		pm:  pm,
		ma:  ma,
	}
}

func (s *youtubeService) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.GoogleClientID,
		ClientSecret: s.cfg.GoogleClientSecret,
		RedirectURL:  s.cfg.GoogleRedirectURI,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
			"https://www.googleapis.com/auth/youtube.upload",
		},
		Endpoint: google.Endpoint,
	}
}

func (s *youtubeService) YoutubeCallback(ctx context.Context, code string, userID int64) error {
	if code == "" {
		err := errors.New("code is empty")
		slog.Info(err.Error())
		return err
	}

	oauth2Config := s.oauthConfig()
	if oauth2Config.ClientID == "" || oauth2Config.ClientSecret == "" || oauth2Config.RedirectURL == "" {
		err := errors.New("OAuth2 configuration is incomplete")
		slog.Info(err.Error())
		return err
	}

	token, err := oauth2Config.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if token.RefreshToken == "" {
		err := errors.New("refresh token is empty")
		slog.Info(err.Error())
		return err
	}

	client := oauth2Config.Client(ctx, token)
	userInfo, err := googleUserInfo(client)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}
	encryptedRefreshToken, err := utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	accountInfo := &models.SocialAccount{
		UserID:          userID,
		Platform:        platform.Youtube,
		AccountID:       userInfo.ID,
		AccountName:     userInfo.Name,
		AccountUsername: userInfo.Email,
		ProfilePicture:  userInfo.Picture,
		AccessToken:     encryptedAccessToken,
		RefreshToken:    encryptedRefreshToken,
		TokenExpiresAt:  token.Expiry,
	}

	_, err = s.sa.Create(ctx, nil, accountInfo)
	return err
}

type googleUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func googleUserInfo(client *http.Client) (*googleUser, error) {
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var userInfo googleUser
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &userInfo, nil
}

func (s *youtubeService) RefreshYoutubeToken(ctx context.Context, userID int64, accessToken, refreshToken string) error {
	decrypted, err := utils.Decrypt(refreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	tokenSource := s.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: decrypted})
	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	account := &models.SocialAccount{
		AccessToken:    encryptedAccessToken,
		TokenExpiresAt: token.Expiry,
	}
	return s.sa.SetToken(ctx, userID, accessToken, account)
}

// SendPost uploads the post's video to the account's channel. The media
// is streamed from the asset URL rather than buffered.
func (s *youtubeService) SendPost(ctx context.Context, post *models.Post, target *models.PostTarget, acc *models.SocialAccount) error {
	accessToken, err := utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}
	refreshToken, err := utils.Decrypt(acc.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	title := post.Caption
	description := post.Caption
	privacy := "public"
	var tags []string
	var payload transfer.TargetPayload
	if len(target.Payload) > 0 {
		if err := json.Unmarshal(target.Payload, &payload); err == nil {
			if payload.Title != "" {
				title = payload.Title
			}
			if payload.Caption != "" {
				description = payload.Caption
			}
			if payload.PrivacyLevel != "" {
				privacy = payload.PrivacyLevel
			}
			tags = payload.Tags
		}
	}

	media, err := s.pm.GetByPostID(ctx, post.ID)
	if err != nil {
		return err
	}
	if media == nil {
		return &platform.Error{Platform: platform.Youtube, Status: http.StatusBadRequest, Message: "youtube posts require a video"}
	}
	asset, err := s.ma.GetByID(ctx, media.AssetID)
	if err != nil {
		return err
	}
	if asset == nil {
		return &platform.Error{Platform: platform.Youtube, Status: http.StatusBadRequest, Message: "media asset missing"}
	}

	tokenSource := s.oauthConfig().TokenSource(ctx, &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})

	ytService, err := youtube.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	fileResp, err := http.Get(asset.FileURL)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer fileResp.Body.Close()
	if fileResp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching media for upload: %s", fileResp.Status)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: description,
			Tags:        tags,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: privacy},
	}

	call := ytService.Videos.Insert([]string{"snippet", "status"}, video)
	if _, err := call.Media(fileResp.Body).Do(); err != nil {
		return ytError(err)
	}
	return nil
}

func ytError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &platform.Error{
			Platform: platform.Youtube,
			Status:   gErr.Code,
			Message:  gErr.Message,
		}
	}
	slog.Info(err.Error())
	return err
}
