package platform

import (
	"fmt"
)

// Platform is the closed set of social networks posts can be delivered to.
type Platform string

const (
	Instagram Platform = "instagram"
	Tiktok    Platform = "tiktok"
	Youtube   Platform = "youtube"
)

var All = []Platform{Instagram, Tiktok, Youtube}

func Parse(s string) (Platform, error) {
	switch Platform(s) {
	case Instagram, Tiktok, Youtube:
		return Platform(s), nil
	}
	return "", fmt.Errorf("unsupported platform %q", s)
}

func (p Platform) String() string {
	return string(p)
}

func (p Platform) Valid() bool {
	switch p {
	case Instagram, Tiktok, Youtube:
		return true
	}
	return false
}

// AppLimitKind selects what the app-level daily cap counts.
type AppLimitKind int

const (
	// AppLimitPosts caps total posts published through the app per day.
	AppLimitPosts AppLimitKind = iota
	// AppLimitUsers caps distinct users posting through the app per day.
	// TikTok enforces this for unaudited clients.
	AppLimitUsers
)

// Limits is the static quota configuration for one platform.
// PostsPerDay 0 means unlimited and short-circuits daily-cap validation.
type Limits struct {
	PostsPerDay   int          `json:"posts_per_day"`
	AppDailyLimit int          `json:"app_daily_limit"`
	AppLimitKind  AppLimitKind `json:"-"`
}

var limitTable = map[Platform]Limits{
	Instagram: {PostsPerDay: 25, AppDailyLimit: 10000, AppLimitKind: AppLimitPosts},
	Tiktok:    {PostsPerDay: 15, AppDailyLimit: 150, AppLimitKind: AppLimitUsers},
	Youtube:   {PostsPerDay: 0, AppDailyLimit: 10000, AppLimitKind: AppLimitPosts},
}

func (p Platform) Limits() Limits {
	return limitTable[p]
}
