package service

import (
	"fmt"
	"time"

	"github.com/postpilot-app/postpilot/internal/platform"
)

// QuotaScope says which limit a QuotaExceededError came from.
type QuotaScope string

const (
	QuotaScopePlan     QuotaScope = "plan"
	QuotaScopePlatform QuotaScope = "platform"
)

// QuotaExceededError carries enough machine-readable detail for the
// caller to render a 429 with actionable text. It is a result type, not
// a wrapped internal error.
type QuotaExceededError struct {
	Scope          QuotaScope        `json:"scope"`
	Platform       platform.Platform `json:"platform,omitempty"`
	UsageType      string            `json:"usage_type,omitempty"`
	Current        int               `json:"current"`
	Requested      int               `json:"requested"`
	Limit          int               `json:"limit"`
	AvailableSlots int               `json:"available_slots"`
}

func (e *QuotaExceededError) Error() string {
	if e.Scope == QuotaScopePlatform {
		return fmt.Sprintf("%s daily limit exceeded: %d/%d used, requested %d, %d available",
			e.Platform, e.Current, e.Limit, e.Requested, e.AvailableSlots)
	}
	return fmt.Sprintf("plan %s limit exceeded: %d/%d used, requested %d",
		e.UsageType, e.Current, e.Limit, e.Requested)
}

// RateLimitError aborts an immediate dispatch before any send is
// attempted. RetryAfter is the hint exposed to the caller.
type RateLimitError struct {
	Platform   platform.Platform `json:"platform"`
	AccountID  int64             `json:"account_id"`
	RetryAfter time.Duration     `json:"retry_after"`
	ResetTime  time.Time         `json:"reset_time"`
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s account %d is rate limited, retry after %s", e.Platform, e.AccountID, e.RetryAfter.Round(time.Second))
}

// ValidationError is a synchronous rejection of malformed input; nothing
// has been reserved when it is returned.
type ValidationError struct {
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
