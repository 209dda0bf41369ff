package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fuel-price-alerts/internal/metrics"
)

const defaultOperationTimeout = 10 * time.Second

// Dispatcher fans one notification out to every device of a user.
// Channel failures are logged and never returned.
// The mirror call, the device lookup and each cleanup get their own deadline;
// senders bound every batch or subscription themselves.
type Dispatcher struct {
	devices   DeviceRegistry
	mobile    MobileSender
	browser   BrowserSender
	mirror    Notifier
	opTimeout time.Duration
	logger    zerolog.Logger
}

// NewDispatcher wires the channels. Any channel may be nil.
func NewDispatcher(devices DeviceRegistry, mobile MobileSender, browser BrowserSender, mirror Notifier, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		devices:   devices,
		mobile:    mobile,
		browser:   browser,
		mirror:    mirror,
		opTimeout: defaultOperationTimeout,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// WithOperationTimeout sets the deadline of each mirror, lookup and cleanup call.
func (d *Dispatcher) WithOperationTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.opTimeout = timeout
	}
	return d
}

func (d *Dispatcher) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.opTimeout)
}

// Notify resolves the user's devices and issues every delivery attempt.
// Only a failure to resolve devices is returned.
func (d *Dispatcher) Notify(ctx context.Context, note Notification) error {
	log := d.logger.With().Str("user_id", note.UserID.String()).Logger()

	if d.mirror != nil {
		mirrorCtx, cancel := d.bounded(ctx)
		err := d.mirror.Notify(mirrorCtx, note)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("operator mirror delivery failed")
		}
	}

	if d.devices == nil {
		return nil
	}
	lookupCtx, cancel := d.bounded(ctx)
	devices, err := d.devices.GetUserDevices(lookupCtx, note.UserID)
	cancel()
	if err != nil {
		return fmt.Errorf("resolve devices: %w", err)
	}
	if devices.Empty() {
		log.Debug().Msg("user has no enabled devices")
		return nil
	}

	if d.mobile != nil && len(devices.ExpoTokens) > 0 {
		res := d.mobile.Send(ctx, devices.ExpoTokens, note)
		d.record("expo", res)
		for _, token := range res.Stale {
			if err := d.disable(ctx, d.devices.DisableExpoToken, token); err != nil {
				log.Warn().Err(err).Msg("failed to disable stale expo token")
				continue
			}
			metrics.StaleDevicesTotal.WithLabelValues("expo").Inc()
		}
	}

	if d.browser != nil && len(devices.WebPush) > 0 {
		res := d.browser.Send(ctx, devices.WebPush, note)
		d.record("webpush", res)
		for _, endpoint := range res.Stale {
			if err := d.disable(ctx, d.devices.DisableWebPushEndpoint, endpoint); err != nil {
				log.Warn().Err(err).Msg("failed to disable stale web push subscription")
				continue
			}
			metrics.StaleDevicesTotal.WithLabelValues("webpush").Inc()
		}
	}

	return nil
}

func (d *Dispatcher) disable(ctx context.Context, fn func(context.Context, string) error, target string) error {
	opCtx, cancel := d.bounded(ctx)
	defer cancel()
	return fn(opCtx, target)
}

func (d *Dispatcher) record(channel string, res Result) {
	metrics.DeliveriesTotal.WithLabelValues(channel, "delivered").Add(float64(res.Delivered))
	metrics.DeliveriesTotal.WithLabelValues(channel, "failed").Add(float64(res.Failed))
	d.logger.Debug().
		Str("channel", channel).
		Int("attempted", res.Attempted).
		Int("delivered", res.Delivered).
		Int("failed", res.Failed).
		Int("stale", len(res.Stale)).
		Msg("channel delivery finished")
}

var _ Notifier = (*Dispatcher)(nil)
