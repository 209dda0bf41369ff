package app

import (
	"context"
	"fmt"

	"fuel-price-alerts/internal/storage"
)

// Migrate applies the embedded schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return a.applyMigrations(ctx, store)
}

func (a *App) applyMigrations(ctx context.Context, store *storage.Store) error {
	applied, err := store.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if len(applied) == 0 {
		a.Logger.Info().Msg("schema up to date")
		return nil
	}
	a.Logger.Info().Strs("applied", applied).Msg("schema migrated")
	return nil
}
