package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/postpilot-app/postpilot/internal/service"
	"github.com/postpilot-app/postpilot/internal/transfer"
)

type PostHandler struct {
	s        service.PostService
	validate *validator.Validate
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service, validate: validator.New()}
}

// parsePostRequest accepts either a JSON body or a multipart form with
// a "post" JSON field plus "files" attachments.
func (h *PostHandler) parsePostRequest(c *fiber.Ctx) (*transfer.PostCreation, []*multipart.FileHeader, error) {
	var pc transfer.PostCreation
	var files []*multipart.FileHeader

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal([]byte(c.FormValue("post")), &pc); err != nil {
			return nil, nil, err
		}
		files = form.File["files"]
	} else {
		if err := c.BodyParser(&pc); err != nil {
			return nil, nil, err
		}
	}

	if err := h.validate.Struct(&pc); err != nil {
		return nil, nil, err
	}
	return &pc, files, nil
}

// respondError maps orchestrator errors onto HTTP statuses. Limit
// violations are 429 with a structured body so clients can render
// which limit was hit and when it resets.
func respondError(c *fiber.Ctx, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": ve.Error(),
		})
	}

	var qe *service.QuotaExceededError
	if errors.As(err, &qe) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":           qe.Error(),
			"scope":           qe.Scope,
			"platform":        qe.Platform,
			"usage_type":      qe.UsageType,
			"current":         qe.Current,
			"requested":       qe.Requested,
			"limit":           qe.Limit,
			"available_slots": qe.AvailableSlots,
		})
	}

	var re *service.RateLimitError
	if errors.As(err, &re) {
		c.Set(fiber.HeaderRetryAfter, re.RetryAfter.String())
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       re.Error(),
			"platform":    re.Platform,
			"account_id":  re.AccountID,
			"retry_after": re.RetryAfter.Seconds(),
			"reset_time":  re.ResetTime,
		})
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": verrs.Error(),
		})
	}

	slog.Error("request failed", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Something went wrong",
	})
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	pc, files, err := h.parsePostRequest(c)
	if err != nil {
		return respondError(c, err)
	}

	view, err := h.s.CreatePost(c.Context(), userID, pc, files)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(view)
}

func (h *PostHandler) EditPost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.QueryInt("id", 0)

	pc, files, err := h.parsePostRequest(c)
	if err != nil {
		return respondError(c, err)
	}

	view, err := h.s.EditPost(c.Context(), userID, int64(postID), pc, files)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(view)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userId := GetUserID(c)
	postId := c.QueryInt("id", 0)

	if postId != 0 {
		post, err := h.s.PostInfo(c.Context(), int64(postId), userId)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(post)
	}

	posts, err := h.s.List(c.Context(), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postId := c.QueryInt("id", 0)

	err := h.s.DeletePost(c.Context(), userID, int64(postId))
	if err != nil {
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *PostHandler) RetryTarget(c *fiber.Ctx) error {
	userID := GetUserID(c)
	targetId := c.QueryInt("id", 0)

	view, err := h.s.RetryPostTarget(c.Context(), userID, int64(targetId))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(view)
}

func (h *PostHandler) FailedTargets(c *fiber.Ctx) error {
	userID := GetUserID(c)

	targets, err := h.s.GetFailedPostTargets(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(targets)
}

func (h *PostHandler) FailedCount(c *fiber.Ctx) error {
	userID := GetUserID(c)

	count, err := h.s.GetPostsFailedCount(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"count": count,
	})
}
