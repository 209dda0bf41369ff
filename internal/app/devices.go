package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"fuel-price-alerts/internal/alerting"
)

// DeviceOptions describe a device to register for a user.
type DeviceOptions struct {
	UserID    string
	ExpoToken string
	Endpoint  string
	P256dh    string
	Auth      string
}

// RegisterDevice stores an Expo token or a browser subscription for a user.
func (a *App) RegisterDevice(ctx context.Context, opts DeviceOptions) error {
	userID, err := uuid.Parse(opts.UserID)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	hasExpo := opts.ExpoToken != ""
	hasWeb := opts.Endpoint != ""
	switch {
	case hasExpo == hasWeb:
		return errors.New("exactly one of --expo-token or --endpoint must be provided")
	case hasWeb && (opts.P256dh == "" || opts.Auth == ""):
		return errors.New("--p256dh and --auth are required with --endpoint")
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if hasExpo {
		if err := store.RegisterExpoDevice(ctx, userID, opts.ExpoToken); err != nil {
			return err
		}
		fmt.Fprintln(a.Out, "expo device registered")
		return nil
	}

	sub := alerting.WebPushSubscription{
		Endpoint: opts.Endpoint,
		Keys:     alerting.WebPushKeys{P256dh: opts.P256dh, Auth: opts.Auth},
	}
	if err := store.RegisterWebPushDevice(ctx, userID, sub); err != nil {
		return err
	}
	fmt.Fprintln(a.Out, "web push subscription registered")
	return nil
}
