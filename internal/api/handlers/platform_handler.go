package handlers

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/postpilot-app/postpilot/configs"
	"github.com/postpilot-app/postpilot/internal/platform"
	"github.com/postpilot-app/postpilot/internal/service"
	"github.com/postpilot-app/postpilot/internal/transfer"
	"github.com/postpilot-app/postpilot/pkg/utils"
)

type PlatformHandler struct {
	as       service.AccountService
	ig       service.InstagramService
	tt       service.TiktokService
	yt       service.YoutubeService
	quota    service.QuotaService
	settings service.SettingsService
	cfg      config.Config
}

func NewPlatformHandler(
	as service.AccountService,
	ig service.InstagramService,
	tt service.TiktokService,
	yt service.YoutubeService,
	quota service.QuotaService,
	settings service.SettingsService,
	cfg config.Config) *PlatformHandler {
	return &PlatformHandler{
		as:       as,
		ig:       ig,
		tt:       tt,
		yt:       yt,
		quota:    quota,
		settings: settings,
		cfg:      cfg,
	}
}

func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)

	p, err := platform.Parse(c.Params("platform"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown platform",
		})
	}

	// Account slots are plan-limited; refuse the OAuth dance early
	// rather than after the provider redirect.
	if err := h.as.ValidateConnectCapacity(c.Context(), userID); err != nil {
		return respondError(c, err)
	}

	authURL := h.as.GetAuthURL(c.Context(), p, c.Query("state"))
	return c.Redirect(authURL)
}

func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")

	p, err := platform.Parse(c.Params("platform"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown platform",
		})
	}

	claims, err := utils.ValidateToken(h.cfg.SecretKey, state)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to validate user",
		})
	}

	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to validate user",
		})
	}

	switch p {
	case platform.Instagram:
		err = h.ig.InstagramCallback(c.Context(), code, userID)
	case platform.Tiktok:
		err = h.tt.TiktokCallback(c.Context(), code, userID)
	case platform.Youtube:
		err = h.yt.YoutubeCallback(c.Context(), code, userID)
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Something went wrong",
		})
	}

	h.as.RecordConnected(c.Context(), userID)

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accountList, err := h.as.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountId := c.QueryInt("id", 0)

	err := h.as.Delete(c.Context(), userID, int64(accountId))
	if err != nil {
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

// PlatformLimits reports today's daily quota position for one platform.
func (h *PlatformHandler) PlatformLimits(c *fiber.Ctx) error {
	userID := GetUserID(c)

	p, err := platform.Parse(c.Params("platform"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown platform",
		})
	}

	loc := h.settings.GetLocation(c.Context(), userID)
	day := service.QuotaDay(time.Now(), loc)

	used, err := h.quota.GetDailyUsage(c.Context(), userID, p, day)
	if err != nil {
		return respondError(c, err)
	}

	view := transfer.PlatformConfigView{
		Platform: p,
		Limits:   p.Limits(),
		Used:     int64(used),
		Reset:    day.AddDate(0, 0, 1),
	}
	return c.Status(fiber.StatusOK).JSON(view)
}
