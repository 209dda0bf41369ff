package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestExpoClientBatchesAndFlagsStaleTokens(t *testing.T) {
	var (
		mu      sync.Mutex
		batches [][]expoMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization header = %q", got)
		}
		var msgs []expoMessage
		if err := json.NewDecoder(r.Body).Decode(&msgs); err != nil {
			t.Errorf("decode body: %v", err)
		}
		mu.Lock()
		batches = append(batches, msgs)
		mu.Unlock()

		tickets := make([]map[string]any, 0, len(msgs))
		for _, m := range msgs {
			if m.To == "ExponentPushToken[gone]" {
				tickets = append(tickets, map[string]any{
					"status":  "error",
					"message": "not registered",
					"details": map[string]any{"error": "DeviceNotRegistered"},
				})
				continue
			}
			tickets = append(tickets, map[string]any{"status": "ok", "id": "ticket"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": tickets})
	}))
	defer srv.Close()

	client := NewExpoClient(ExpoOptions{BaseURL: srv.URL, AccessToken: "secret", BatchSize: 2, TTL: time.Minute}, zerolog.Nop())
	tokens := []string{
		"ExponentPushToken[a]",
		"ExpoPushToken[b]",
		"ExponentPushToken[gone]",
		"not-a-token",
	}
	res := client.Send(context.Background(), tokens, Notification{UserID: uuid.New(), Title: "t", Body: "b"})

	if res.Attempted != 3 {
		t.Fatalf("attempted = %d, want 3", res.Attempted)
	}
	if res.Delivered != 2 || res.Failed != 1 {
		t.Fatalf("delivered/failed = %d/%d", res.Delivered, res.Failed)
	}
	if len(res.Stale) != 1 || res.Stale[0] != "ExponentPushToken[gone]" {
		t.Fatalf("stale = %v", res.Stale)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 2 || len(batches[0]) != 2 || len(batches[1]) != 1 {
		t.Fatalf("unexpected batching: %d batches", len(batches))
	}
	first := batches[0][0]
	if first.Priority != "high" || first.ChannelID != "alerts" || first.Sound != "default" || first.TTL != 60 {
		t.Fatalf("unexpected message shape: %+v", first)
	}
	if first.Data == nil {
		t.Fatal("data should default to an empty object")
	}
}

func TestExpoClientContinuesAfterFailedBatch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = fmt.Fprint(w, "boom")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"status": "ok"}}})
	}))
	defer srv.Close()

	client := NewExpoClient(ExpoOptions{BaseURL: srv.URL, BatchSize: 1}, zerolog.Nop())
	res := client.Send(context.Background(), []string{"ExponentPushToken[a]", "ExponentPushToken[b]"}, Notification{})

	if got := calls.Load(); got != 2 {
		t.Fatalf("expected both batches to be sent, got %d calls", got)
	}
	if res.Delivered != 1 || res.Failed != 1 {
		t.Fatalf("delivered/failed = %d/%d", res.Delivered, res.Failed)
	}
	if len(res.Stale) != 0 {
		t.Fatalf("transport failures must not mark tokens stale: %v", res.Stale)
	}
}

func TestExpoClientHungBatchDoesNotStarveLaterBatches(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var msgs []expoMessage
		if err := json.NewDecoder(r.Body).Decode(&msgs); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if len(msgs) == 1 && msgs[0].To == "ExponentPushToken[stuck]" {
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"status": "ok"}}})
	}))
	defer srv.Close()
	defer close(release)

	client := NewExpoClient(ExpoOptions{BaseURL: srv.URL, BatchSize: 1, Timeout: 150 * time.Millisecond}, zerolog.Nop())
	tokens := []string{"ExponentPushToken[stuck]", "ExponentPushToken[b]", "ExponentPushToken[c]"}
	res := client.Send(context.Background(), tokens, Notification{Title: "t"})

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected every batch to reach the server, got %d requests", got)
	}
	if res.Delivered != 2 || res.Failed != 1 {
		t.Fatalf("delivered/failed = %d/%d", res.Delivered, res.Failed)
	}
}

func TestExpoClientCapsBatchSize(t *testing.T) {
	client := NewExpoClient(ExpoOptions{BatchSize: 500}, zerolog.Nop())
	if client.opts.BatchSize != maxExpoBatch {
		t.Fatalf("batch size = %d, want %d", client.opts.BatchSize, maxExpoBatch)
	}
}

func TestIsExpoToken(t *testing.T) {
	cases := map[string]bool{
		"ExponentPushToken[xyz]": true,
		"ExpoPushToken[xyz]":     true,
		"fcm:abc":                false,
		"":                       false,
	}
	for token, want := range cases {
		if got := isExpoToken(token); got != want {
			t.Errorf("isExpoToken(%q) = %v, want %v", token, got, want)
		}
	}
}
