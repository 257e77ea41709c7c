package platform

import (
	"fmt"
	"testing"
)

func TestParse(t *testing.T) {
	for _, p := range All {
		got, err := Parse(string(p))
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", p, err)
		}
		if got != p {
			t.Errorf("Parse(%q) = %q", p, got)
		}
	}

	for _, s := range []string{"", "twitter", "Instagram", "INSTAGRAM"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
}

func TestLimits(t *testing.T) {
	if got := Instagram.Limits().PostsPerDay; got != 25 {
		t.Errorf("instagram posts per day = %d, want 25", got)
	}
	if got := Tiktok.Limits().PostsPerDay; got != 15 {
		t.Errorf("tiktok posts per day = %d, want 15", got)
	}
	if got := Youtube.Limits().PostsPerDay; got != 0 {
		t.Errorf("youtube posts per day = %d, want 0 (unlimited)", got)
	}
	if Tiktok.Limits().AppLimitKind != AppLimitUsers {
		t.Error("tiktok app cap should count distinct users")
	}
	if Instagram.Limits().AppLimitKind != AppLimitPosts {
		t.Error("instagram app cap should count posts")
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   ErrorKind
	}{
		{401, "", ErrUnauthorized},
		{403, "", ErrForbidden},
		{429, "", ErrRateLimited},
		{400, "", ErrMalformed},
		{422, "", ErrMalformed},
		{500, "", ErrUnknown},
		{200, "access_token_invalid", ErrUnauthorized},
		{200, "token_expired", ErrUnauthorized},
		{200, "scope_not_authorized", ErrForbidden},
		{200, "rate_limit_exceeded", ErrRateLimited},
		{200, "spam_risk_too_many_posts", ErrRateLimited},
		{200, "invalid_params", ErrMalformed},
		{200, "something_else", ErrUnknown},
	}

	for _, tt := range tests {
		e := &Error{Platform: Tiktok, Status: tt.status, Code: tt.code, Message: "x"}
		if got := e.Kind(); got != tt.want {
			t.Errorf("Kind(status=%d code=%q) = %v, want %v", tt.status, tt.code, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	base := &Error{Platform: Instagram, Status: 401, Message: "expired"}
	wrapped := fmt.Errorf("sending post: %w", base)

	if got := Classify(wrapped); got != ErrUnauthorized {
		t.Errorf("Classify(wrapped) = %v, want ErrUnauthorized", got)
	}
	if got := Classify(fmt.Errorf("connection reset")); got != ErrUnknown {
		t.Errorf("Classify(plain error) = %v, want ErrUnknown", got)
	}
}

func TestUserMessage(t *testing.T) {
	err := &Error{Platform: Instagram, Status: 401, Message: "expired"}
	got := UserMessage(Instagram, err)
	want := "Your instagram account needs to be reconnected"
	if got != want {
		t.Errorf("UserMessage = %q, want %q", got, want)
	}

	got = UserMessage(Youtube, fmt.Errorf("dial tcp: timeout"))
	if got != "Publishing failed, please try again" {
		t.Errorf("UserMessage(unknown) = %q", got)
	}
}
