package app

import (
	"context"
	"fmt"
	"time"

	"fuel-price-alerts/internal/service"
)

// Evaluate runs a single alert tick now and prints its summary.
func (a *App) Evaluate(ctx context.Context) (service.Summary, error) {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return service.Summary{}, err
	}
	defer closeStore()

	svc := a.newAlertService(store, nil)
	now := time.Now().UTC()
	summary, err := svc.Tick(ctx, now)
	if err != nil {
		return summary, err
	}

	fmt.Fprintf(a.Out, "evaluated at %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(a.Out, "rules: %d (skipped %d)\nconditions: %d\ntriggered: %d\nnotified: %d\nfailed: %d\n",
		summary.Rules, summary.SkippedRules, summary.Conditions, summary.Triggered, summary.Notified, summary.Failed)
	return summary, nil
}
