package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"fuel-price-alerts/internal/rules"
	"fuel-price-alerts/internal/storage"
)

// Show prints the most recently updated trigger states.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	states, err := store.ListTriggerStates(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Fprintln(a.Out, "no trigger states found")
		return nil
	}
	return renderStates(a.Out, states)
}

func renderStates(out io.Writer, states []storage.TriggerStateView) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Updated (UTC)\tRule\tCondition\tState\tLast diff\tLast triggered\tLast notified")

	for _, st := range states {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			st.UpdatedAt.UTC().Format(time.RFC3339),
			ruleName(st),
			shortID(st.Key.ConditionID.String()),
			st.Phase(),
			formatDiff(st.LastDiffCents),
			formatTime(st.LastTriggeredAt),
			formatTime(st.LastNotifiedAt),
		)
	}

	return writer.Flush()
}

func ruleName(st storage.TriggerStateView) string {
	if st.RuleName != "" {
		return st.RuleName
	}
	return shortID(st.Key.RuleID.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDiff(cents *int64) string {
	if cents == nil {
		return "-"
	}
	return rules.FormatSignedCents(*cents)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
