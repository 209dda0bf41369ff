package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
)

// WebPushOptions parameterise the browser push channel.
type WebPushOptions struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
	TTL             time.Duration
	Timeout         time.Duration
}

// WebPushClient sends VAPID-signed browser push messages.
type WebPushClient struct {
	opts   WebPushOptions
	client *http.Client
	logger zerolog.Logger
}

// NewWebPushClient constructs the browser push channel.
func NewWebPushClient(opts WebPushOptions, logger zerolog.Logger) *WebPushClient {
	if opts.Subject == "" {
		opts.Subject = "mailto:admin@example.com"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &WebPushClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "push_webpush").Logger(),
	}
}

type webPushPayload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data"`
}

// Send attempts every subscription independently.
func (w *WebPushClient) Send(ctx context.Context, subs []WebPushSubscription, note Notification) Result {
	res := Result{Attempted: len(subs)}

	data := note.Data
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(webPushPayload{Title: note.Title, Body: note.Body, Data: data})
	if err != nil {
		w.logger.Error().Err(err).Msg("marshal web push payload")
		res.Failed = len(subs)
		return res
	}

	for _, sub := range subs {
		status, err := w.sendOne(ctx, payload, sub)
		switch {
		case err != nil:
			res.Failed++
			w.logger.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("web push failed")
		case status == http.StatusNotFound || status == http.StatusGone:
			res.Failed++
			res.Stale = append(res.Stale, sub.Endpoint)
			w.logger.Info().Int("status", status).Str("endpoint", sub.Endpoint).Msg("web push subscription expired")
		case status >= 400:
			res.Failed++
			w.logger.Warn().Int("status", status).Str("endpoint", sub.Endpoint).Msg("web push rejected")
		default:
			res.Delivered++
		}
	}
	return res
}

func (w *WebPushClient) sendOne(ctx context.Context, payload []byte, sub WebPushSubscription) (int, error) {
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return 0, fmt.Errorf("incomplete subscription")
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      w.client,
		Subscriber:      w.opts.Subject,
		VAPIDPublicKey:  w.opts.VAPIDPublicKey,
		VAPIDPrivateKey: w.opts.VAPIDPrivateKey,
		TTL:             int(w.opts.TTL / time.Second),
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

var _ BrowserSender = (*WebPushClient)(nil)
