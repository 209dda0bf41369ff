package alerting

import (
	"context"

	"github.com/google/uuid"
)

// Notification is one alert addressed to a user.
type Notification struct {
	UserID uuid.UUID
	Title  string
	Body   string
	Data   map[string]any
}

// Notifier defines alert delivery.
type Notifier interface {
	Notify(ctx context.Context, note Notification) error
}

// WebPushKeys are the client keys of a browser push subscription.
type WebPushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// WebPushSubscription is a browser push endpoint and its keys.
type WebPushSubscription struct {
	Endpoint string      `json:"endpoint"`
	Keys     WebPushKeys `json:"keys"`
}

// Devices are the enabled delivery targets of one user.
type Devices struct {
	ExpoTokens []string
	WebPush    []WebPushSubscription
}

// Empty reports whether the user has no targets at all.
func (d Devices) Empty() bool {
	return len(d.ExpoTokens) == 0 && len(d.WebPush) == 0
}

// DeviceRegistry resolves and maintains users' registered devices.
type DeviceRegistry interface {
	GetUserDevices(ctx context.Context, userID uuid.UUID) (Devices, error)
	DisableExpoToken(ctx context.Context, token string) error
	DisableWebPushEndpoint(ctx context.Context, endpoint string) error
}

// Result summarises one channel's delivery attempt.
type Result struct {
	Attempted int
	Delivered int
	Failed    int
	// Stale lists targets the push service rejected permanently.
	Stale []string
}

// MobileSender delivers to Expo push tokens.
type MobileSender interface {
	Send(ctx context.Context, tokens []string, note Notification) Result
}

// BrowserSender delivers to browser push subscriptions.
type BrowserSender interface {
	Send(ctx context.Context, subs []WebPushSubscription, note Notification) Result
}
