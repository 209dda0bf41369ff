package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fuel-price-alerts/internal/alerting"
)

const (
	listUserDevicesSQL = `SELECT
        kind,
        expo_push_token,
        webpush_endpoint,
        webpush_p256dh,
        webpush_auth
    FROM user_devices
    WHERE user_id = $1
      AND is_enabled
    ORDER BY created_at, id;`

	disableExpoTokenSQL = `UPDATE user_devices
    SET is_enabled = FALSE, updated_at = now()
    WHERE kind = 'expo' AND expo_push_token = $1;`

	disableWebPushEndpointSQL = `UPDATE user_devices
    SET is_enabled = FALSE, updated_at = now()
    WHERE kind = 'webpush' AND webpush_endpoint = $1;`

	registerExpoDeviceSQL = `INSERT INTO user_devices (
        id,
        user_id,
        kind,
        expo_push_token
    ) VALUES (
        $1,$2,'expo',$3
    )
    ON CONFLICT (expo_push_token) DO UPDATE
    SET
        user_id    = EXCLUDED.user_id,
        is_enabled = TRUE,
        updated_at = now();`

	registerWebPushDeviceSQL = `INSERT INTO user_devices (
        id,
        user_id,
        kind,
        webpush_endpoint,
        webpush_p256dh,
        webpush_auth
    ) VALUES (
        $1,$2,'webpush',$3,$4,$5
    )
    ON CONFLICT (webpush_endpoint) DO UPDATE
    SET
        user_id        = EXCLUDED.user_id,
        webpush_p256dh = EXCLUDED.webpush_p256dh,
        webpush_auth   = EXCLUDED.webpush_auth,
        is_enabled     = TRUE,
        updated_at     = now();`
)

// GetUserDevices returns the enabled delivery targets of a user.
// Web push rows missing their keys are ignored.
func (s *Store) GetUserDevices(ctx context.Context, userID uuid.UUID) (alerting.Devices, error) {
	var out alerting.Devices

	pool, err := s.getPool()
	if err != nil {
		return out, err
	}

	rows, queryErr := pool.Query(ctx, listUserDevicesSQL, userID)
	if queryErr != nil {
		return out, fmt.Errorf("list user devices: %w", queryErr)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind                          string
			token, endpoint, p256dh, auth *string
		)
		if err := rows.Scan(&kind, &token, &endpoint, &p256dh, &auth); err != nil {
			return out, err
		}
		switch kind {
		case "expo":
			if token != nil && *token != "" {
				out.ExpoTokens = append(out.ExpoTokens, *token)
			}
		case "webpush":
			if endpoint == nil || p256dh == nil || auth == nil {
				continue
			}
			out.WebPush = append(out.WebPush, alerting.WebPushSubscription{
				Endpoint: *endpoint,
				Keys:     alerting.WebPushKeys{P256dh: *p256dh, Auth: *auth},
			})
		}
	}
	if rows.Err() != nil {
		return out, rows.Err()
	}
	return out, nil
}

// DisableExpoToken marks an Expo device as no longer deliverable.
func (s *Store) DisableExpoToken(ctx context.Context, token string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, disableExpoTokenSQL, token); err != nil {
		return fmt.Errorf("disable expo token: %w", err)
	}
	return nil
}

// DisableWebPushEndpoint marks a browser subscription as expired.
func (s *Store) DisableWebPushEndpoint(ctx context.Context, endpoint string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, disableWebPushEndpointSQL, endpoint); err != nil {
		return fmt.Errorf("disable web push endpoint: %w", err)
	}
	return nil
}

// RegisterExpoDevice stores or re-enables an Expo push token for a user.
func (s *Store) RegisterExpoDevice(ctx context.Context, userID uuid.UUID, token string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, registerExpoDeviceSQL, uuid.New(), userID, token); err != nil {
		return fmt.Errorf("register expo device: %w", err)
	}
	return nil
}

// RegisterWebPushDevice stores or refreshes a browser subscription for a user.
func (s *Store) RegisterWebPushDevice(ctx context.Context, userID uuid.UUID, sub alerting.WebPushSubscription) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, registerWebPushDeviceSQL, uuid.New(), userID, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth); err != nil {
		return fmt.Errorf("register web push device: %w", err)
	}
	return nil
}

var _ alerting.DeviceRegistry = (*Store)(nil)
