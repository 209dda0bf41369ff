package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"fuel-price-alerts/internal/storage"
)

// maxChartBars bounds the PNG so labels stay legible.
const maxChartBars = 40

// Export renders trigger states as CSV and/or a PNG bar chart of last differences.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	states, err := store.ListTriggerStates(ctx, opts.MaxRows)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		a.Logger.Info().Msg("no trigger states to export")
		return nil
	}
	a.Logger.Info().Int("rows", len(states)).Msg("exporting trigger states")

	if opts.CSVPath != "" {
		if err := writeStatesCSV(opts.CSVPath, states); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeStatesPNG(opts.PNGPath, states); err != nil {
			return err
		}
	}

	return nil
}

func writeStatesCSV(path string, states []storage.TriggerStateView) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"updated_at", "user_id", "rule_id", "rule_name", "condition_id", "owned_site_id", "competitor_site_id", "state", "last_diff_cents", "last_triggered_at", "last_notified_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, st := range states {
		diff := ""
		if st.LastDiffCents != nil {
			diff = strconv.FormatInt(*st.LastDiffCents, 10)
		}
		record := []string{
			st.UpdatedAt.UTC().Format(time.RFC3339),
			st.Key.UserID.String(),
			st.Key.RuleID.String(),
			st.RuleName,
			st.Key.ConditionID.String(),
			st.OwnedSiteID.String(),
			strconv.FormatInt(st.CompetitorSiteID, 10),
			string(st.Phase()),
			diff,
			optionalTime(st.LastTriggeredAt),
			optionalTime(st.LastNotifiedAt),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeStatesPNG(path string, states []storage.TriggerStateView) error {
	bars := diffBars(states, maxChartBars)
	if len(bars) == 0 {
		return errors.New("no trigger state has a recorded difference to chart")
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	graph := chart.BarChart{
		Title:        "Last observed price difference",
		Width:        1280,
		Height:       720,
		BarWidth:     24,
		UseBaseValue: true,
		BaseValue:    0,
		YAxis: chart.YAxis{
			Name:  "Difference (cents)",
			Range: diffRange(bars),
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// diffBars keeps at most limit states that have a recorded difference, in input order.
func diffBars(states []storage.TriggerStateView, limit int) []chart.Value {
	bars := make([]chart.Value, 0, len(states))
	for _, st := range states {
		if st.LastDiffCents == nil {
			continue
		}
		label := fmt.Sprintf("%s/%s", ruleName(st), shortID(st.Key.ConditionID.String()))
		bars = append(bars, chart.Value{
			Label: label,
			Value: float64(*st.LastDiffCents),
		})
		if limit > 0 && len(bars) == limit {
			break
		}
	}
	return bars
}

// diffRange always spans zero and is never empty.
func diffRange(bars []chart.Value) *chart.ContinuousRange {
	minV, maxV := 0.0, 0.0
	for _, b := range bars {
		if b.Value < minV {
			minV = b.Value
		}
		if b.Value > maxV {
			maxV = b.Value
		}
	}
	pad := (maxV - minV) * 0.1
	if pad == 0 {
		pad = 1
	}
	return &chart.ContinuousRange{Min: minV - pad, Max: maxV + pad}
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

