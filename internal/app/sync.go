package app

import (
	"context"
	"errors"
	"fmt"
)

// Sync performs one ingestion pass outside the scheduler.
func (a *App) Sync(ctx context.Context, opts SyncOptions) error {
	if !opts.Master && !opts.Prices {
		return errors.New("at least one of --master or --prices must be provided")
	}
	if a.Config.Ingestion.BaseURL == "" {
		return errors.New("ingestion.base_url not configured")
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newIngestion(store, nil)

	if opts.Master {
		stats, err := svc.SyncMaster(ctx)
		if err != nil {
			return fmt.Errorf("master sync: %w", err)
		}
		fmt.Fprintf(a.Out, "master: brands=%d fuels=%d sites=%d\n", stats.Brands, stats.Fuels, stats.Sites)
	}

	if opts.Prices {
		stats, err := svc.SyncPrices(ctx)
		if err != nil {
			return fmt.Errorf("price sync: %w", err)
		}
		fmt.Fprintf(a.Out, "prices: fetched=%d updated=%d skipped_missing_site=%d skipped_invalid=%d\n",
			stats.Fetched, stats.Updated, stats.SkippedMissingSite, stats.SkippedInvalid)
	}
	return nil
}
