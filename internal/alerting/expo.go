package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultExpoURL       = "https://exp.host/--/api/v2/push/send"
	maxExpoBatch         = 100
	expoDeviceNotFoundID = "DeviceNotRegistered"
)

// ExpoOptions parameterise the Expo push channel.
type ExpoOptions struct {
	BaseURL     string
	AccessToken string
	BatchSize   int
	ChannelID   string
	Sound       string
	TTL         time.Duration
	Timeout     time.Duration
}

// ExpoClient sends push messages through the Expo push service.
type ExpoClient struct {
	opts   ExpoOptions
	client *http.Client
	logger zerolog.Logger
}

// NewExpoClient constructs the Expo channel.
func NewExpoClient(opts ExpoOptions, logger zerolog.Logger) *ExpoClient {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultExpoURL
	}
	if opts.BatchSize <= 0 || opts.BatchSize > maxExpoBatch {
		opts.BatchSize = maxExpoBatch
	}
	if opts.ChannelID == "" {
		opts.ChannelID = "alerts"
	}
	if opts.Sound == "" {
		opts.Sound = "default"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	return &ExpoClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "push_expo").Logger(),
	}
}

type expoMessage struct {
	To        string         `json:"to"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data"`
	Sound     string         `json:"sound"`
	Priority  string         `json:"priority"`
	TTL       int            `json:"ttl"`
	ChannelID string         `json:"channelId"`
}

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Send delivers note to every valid token, one request per batch.
// A failed batch does not prevent later batches from being sent.
func (e *ExpoClient) Send(ctx context.Context, tokens []string, note Notification) Result {
	valid := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if isExpoToken(t) {
			valid = append(valid, t)
		}
	}

	res := Result{Attempted: len(valid)}
	for start := 0; start < len(valid); start += e.opts.BatchSize {
		end := start + e.opts.BatchSize
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[start:end]

		tickets, err := e.sendBatch(ctx, batch, note)
		if err != nil {
			res.Failed += len(batch)
			e.logger.Error().Err(err).Int("batch_size", len(batch)).Int("offset", start).Msg("expo batch failed")
			continue
		}

		for i, token := range batch {
			if i >= len(tickets) {
				res.Failed++
				continue
			}
			ticket := tickets[i]
			if ticket.Status == "ok" {
				res.Delivered++
				continue
			}
			res.Failed++
			if ticket.Details.Error == expoDeviceNotFoundID {
				res.Stale = append(res.Stale, token)
			}
			e.logger.Warn().
				Str("error", ticket.Details.Error).
				Str("message", ticket.Message).
				Msg("expo ticket rejected")
		}
	}
	return res
}

func (e *ExpoClient) sendBatch(ctx context.Context, batch []string, note Notification) ([]expoTicket, error) {
	data := note.Data
	if data == nil {
		data = map[string]any{}
	}
	messages := make([]expoMessage, 0, len(batch))
	for _, token := range batch {
		messages = append(messages, expoMessage{
			To:        token,
			Title:     note.Title,
			Body:      note.Body,
			Data:      data,
			Sound:     e.opts.Sound,
			Priority:  "high",
			TTL:       int(e.opts.TTL / time.Second),
			ChannelID: e.opts.ChannelID,
		})
	}

	body, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("marshal expo payload: %w", err)
	}

	// per-batch deadline
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.opts.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create expo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.opts.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.opts.AccessToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send expo request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read expo response: %w", err)
	}

	var parsed expoResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("expo api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		}
		return nil, fmt.Errorf("decode expo response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(parsed.Errors) > 0 {
			return nil, fmt.Errorf("expo api error (%d): %s", resp.StatusCode, parsed.Errors[0].Message)
		}
		return nil, fmt.Errorf("expo api error (%d)", resp.StatusCode)
	}
	return parsed.Data, nil
}

func isExpoToken(t string) bool {
	return strings.HasPrefix(t, "ExponentPushToken[") || strings.HasPrefix(t, "ExpoPushToken[")
}

var _ MobileSender = (*ExpoClient)(nil)
