package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fuel-price-alerts/internal/config"
	"fuel-price-alerts/internal/rules"
	"fuel-price-alerts/internal/storage"
)

func newTestApp(cfg *config.Config) (*App, *bytes.Buffer) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func int64Ptr(v int64) *int64 { return &v }

func sampleStates() []storage.TriggerStateView {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	triggered := updated.Add(-10 * time.Minute)
	ruleID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	return []storage.TriggerStateView{
		{
			TriggerState: rules.TriggerState{
				Key: rules.StateKey{
					UserID:      uuid.New(),
					RuleID:      ruleID,
					ConditionID: uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"),
				},
				CurrentlyTriggered: true,
				LastTriggeredAt:    &triggered,
				LastNotifiedAt:     &triggered,
				LastDiffCents:      int64Ptr(-15),
				UpdatedAt:          updated,
			},
			RuleName:         "Undercut watch",
			OwnedSiteID:      uuid.New(),
			CompetitorSiteID: 200,
		},
		{
			TriggerState: rules.TriggerState{
				Key: rules.StateKey{
					UserID:      uuid.New(),
					RuleID:      uuid.MustParse("99999999-2222-3333-4444-555555555555"),
					ConditionID: uuid.New(),
				},
				UpdatedAt: updated,
			},
			CompetitorSiteID: 300,
		},
	}
}

func TestRenderStates(t *testing.T) {
	var buf bytes.Buffer
	if err := renderStates(&buf, sampleStates()); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"Undercut watch", "aaaaaaaa", "ACTIVE", "-$0.15", "99999999", "IDLE"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", lines)
	}
}

func TestWriteStatesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "states.csv")
	if err := writeStatesCSV(path, sampleStates()); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0][0] != "updated_at" {
		t.Fatalf("unexpected header %v", records[0])
	}
	first := records[1]
	if first[3] != "Undercut watch" || first[6] != "200" || first[7] != "ACTIVE" || first[8] != "-15" {
		t.Fatalf("unexpected first row %v", first)
	}
	second := records[2]
	if second[8] != "" || second[9] != "" || second[10] != "" {
		t.Fatalf("idle row without history should have empty optional columns: %v", second)
	}
}

func TestDiffBarsSkipsMissingAndCaps(t *testing.T) {
	states := sampleStates()
	bars := diffBars(states, 10)
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	if bars[0].Value != -15 || bars[0].Label != "Undercut watch/aaaaaaaa" {
		t.Fatalf("unexpected bar %+v", bars[0])
	}

	many := make([]storage.TriggerStateView, 0, 5)
	for i := 0; i < 5; i++ {
		st := states[0]
		st.LastDiffCents = int64Ptr(int64(i))
		many = append(many, st)
	}
	if got := len(diffBars(many, 3)); got != 3 {
		t.Fatalf("expected cap of 3 bars, got %d", got)
	}
}

func TestDiffRangeSpansZero(t *testing.T) {
	r := diffRange(diffBars(sampleStates(), 10))
	if r.Min >= -15 || r.Max <= 0 {
		t.Fatalf("range should cover -15 and 0, got [%v, %v]", r.Min, r.Max)
	}

	flat := diffRange(nil)
	if flat.Min >= flat.Max {
		t.Fatalf("empty range must still be non-degenerate, got [%v, %v]", flat.Min, flat.Max)
	}
}

func TestWriteStatesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.png")
	if err := writeStatesPNG(path, sampleStates()); err != nil {
		t.Fatalf("write png: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("png is empty")
	}

	noDiff := sampleStates()[1:]
	if err := writeStatesPNG(filepath.Join(t.TempDir(), "empty.png"), noDiff); err == nil {
		t.Fatalf("expected error when nothing can be charted")
	}
}

func TestCommandsRequireDatabase(t *testing.T) {
	a, _ := newTestApp(nil)
	ctx := context.Background()

	if _, err := a.Evaluate(ctx); !errors.Is(err, errNoDatabase) {
		t.Fatalf("evaluate: expected errNoDatabase, got %v", err)
	}
	if err := a.Show(ctx, ShowOptions{Limit: 5}); !errors.Is(err, errNoDatabase) {
		t.Fatalf("show: expected errNoDatabase, got %v", err)
	}
	if err := a.Migrate(ctx); !errors.Is(err, errNoDatabase) {
		t.Fatalf("migrate: expected errNoDatabase, got %v", err)
	}
	if err := a.Export(ctx, ExportOptions{CSVPath: "x.csv"}); !errors.Is(err, errNoDatabase) {
		t.Fatalf("export: expected errNoDatabase, got %v", err)
	}
}

func TestOptionValidation(t *testing.T) {
	a, _ := newTestApp(nil)
	ctx := context.Background()

	if err := a.Export(ctx, ExportOptions{}); err == nil {
		t.Fatalf("export without outputs should fail")
	}
	if err := a.Sync(ctx, SyncOptions{}); err == nil {
		t.Fatalf("sync without --master/--prices should fail")
	}
	if err := a.Sync(ctx, SyncOptions{Prices: true}); err == nil || !strings.Contains(err.Error(), "base_url") {
		t.Fatalf("sync without base url should fail, got %v", err)
	}

	user := uuid.NewString()
	cases := []DeviceOptions{
		{UserID: "not-a-uuid", ExpoToken: "ExponentPushToken[x]"},
		{UserID: user},
		{UserID: user, ExpoToken: "ExponentPushToken[x]", Endpoint: "https://push.example/1"},
		{UserID: user, Endpoint: "https://push.example/1"},
	}
	for i, opts := range cases {
		if err := a.RegisterDevice(ctx, opts); err == nil || errors.Is(err, errNoDatabase) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if err := a.RegisterDevice(ctx, DeviceOptions{UserID: user, ExpoToken: "ExponentPushToken[x]"}); !errors.Is(err, errNoDatabase) {
		t.Fatalf("valid device without database: expected errNoDatabase, got %v", err)
	}
}

func TestSimulateAlertPrintsEvaluation(t *testing.T) {
	a, out := newTestApp(nil)

	err := a.SimulateAlert(context.Background(), SimulateOptions{
		OwnCents:        186,
		CompetitorCents: 171,
		Direction:       "competitor_minus_own",
		Comparator:      "abs_gte",
		ThresholdCents:  10,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	text := out.String()
	for _, want := range []string{"difference: -$0.15 (-15 cents)", "ABS_GTE $0.10", "triggered: true"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestSimulateAlertRejectsBadInput(t *testing.T) {
	a, _ := newTestApp(nil)
	ctx := context.Background()

	if err := a.SimulateAlert(ctx, SimulateOptions{Direction: "SIDEWAYS", Comparator: "GT"}); !errors.Is(err, rules.ErrInvalidDirection) {
		t.Fatalf("expected invalid direction, got %v", err)
	}
	if err := a.SimulateAlert(ctx, SimulateOptions{Direction: "OWN_MINUS_COMPETITOR", Comparator: "EQ"}); !errors.Is(err, rules.ErrInvalidComparator) {
		t.Fatalf("expected invalid comparator, got %v", err)
	}

	triggering := SimulateOptions{
		OwnCents: 200, CompetitorCents: 100,
		Direction: "OWN_MINUS_COMPETITOR", Comparator: "GT",
		UserID: uuid.NewString(),
	}
	if err := a.SimulateAlert(ctx, triggering); err == nil {
		t.Fatalf("expected error when alerting disabled")
	}

	a.Config.Alerting.Enabled = true
	if err := a.SimulateAlert(ctx, triggering); err == nil {
		t.Fatalf("expected error when no channel is configured")
	}
}

func TestSimulateAlertMirrorsToTelegram(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Alerting.Enabled = true
	cfg.Alerting.Title = "Fuel alert triggered"
	cfg.Telegram = config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "42", APIBase: srv.URL}
	a, out := newTestApp(cfg)

	err := a.SimulateAlert(context.Background(), SimulateOptions{
		OwnCents:        200,
		CompetitorCents: 150,
		Direction:       "OWN_MINUS_COMPETITOR",
		Comparator:      "GTE",
		ThresholdCents:  50,
		UserID:          uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !strings.Contains(out.String(), "notification dispatched") {
		t.Fatalf("expected dispatch confirmation, got:\n%s", out.String())
	}
	if payload["chat_id"] != "42" || !strings.Contains(payload["text"], "+$0.50") {
		t.Fatalf("unexpected telegram payload %v", payload)
	}
}
