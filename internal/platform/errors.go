package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies provider failures into the small set the
// orchestrator acts on. Everything else is ErrUnknown.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrUnauthorized
	ErrForbidden
	ErrRateLimited
	ErrMalformed
)

// Error is a failure reported by a platform API. Status is the HTTP
// status of the provider response, Code the provider's own error code
// when it sends one.
type Error struct {
	Platform Platform
	Status   int
	Code     string
	Message  string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Platform, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

func (e *Error) Kind() ErrorKind {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrMalformed
	}
	switch e.Code {
	case "access_token_invalid", "token_expired":
		return ErrUnauthorized
	case "scope_not_authorized", "scope_permission_missed":
		return ErrForbidden
	case "rate_limit_exceeded", "spam_risk_too_many_posts":
		return ErrRateLimited
	case "invalid_params", "invalid_file_upload":
		return ErrMalformed
	}
	return ErrUnknown
}

// Classify maps an arbitrary publish error to its kind. Non-platform
// errors (timeouts, connection resets) are treated as unknown, which the
// caller records as a retryable target failure.
func Classify(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind()
	}
	return ErrUnknown
}

// UserMessage renders the actionable text shown for a failed target.
func UserMessage(p Platform, err error) string {
	switch Classify(err) {
	case ErrUnauthorized:
		return fmt.Sprintf("Your %s account needs to be reconnected", p)
	case ErrForbidden:
		return fmt.Sprintf("Your %s account is missing posting permissions", p)
	case ErrRateLimited:
		return fmt.Sprintf("%s is rate limiting this account, try again later", p)
	case ErrMalformed:
		return fmt.Sprintf("%s rejected the post content", p)
	}
	return "Publishing failed, please try again"
}
