package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fuel-price-alerts/internal/rules"
)

const (
	getLatestPriceSQL = `SELECT
        site_id,
        fuel_id,
        price_raw::text,
        price_cents,
        unavailable,
        collection_method,
        transaction_date_utc,
        ingested_at
    FROM fpd_prices_latest
    WHERE site_id = $1
      AND fuel_id = $2;`

	listSitePricesSQL = `SELECT
        site_id,
        fuel_id,
        price_raw::text,
        price_cents,
        unavailable,
        collection_method,
        transaction_date_utc,
        ingested_at
    FROM fpd_prices_latest
    WHERE site_id = $1
    ORDER BY fuel_id;`
)

// GetLatestPrice returns the latest row for (site, fuel) or nil when none exists.
func (s *Store) GetLatestPrice(ctx context.Context, siteID, fuelID int64) (*PriceRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	row, err := scanPriceRow(pool.QueryRow(ctx, getLatestPriceSQL, siteID, fuelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest price: %w", err)
	}
	return &row, nil
}

// LookupPrice resolves the current price observation for (site, fuel).
// It returns nil, nil when no price is known.
func (s *Store) LookupPrice(ctx context.Context, siteID, fuelID int64) (*rules.PriceObservation, error) {
	row, err := s.GetLatestPrice(ctx, siteID, fuelID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.Observation(), nil
}

// ListSitePrices lists the latest prices of every fuel at one site.
func (s *Store) ListSitePrices(ctx context.Context, siteID int64) ([]PriceRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSitePricesSQL, siteID)
	if queryErr != nil {
		return nil, fmt.Errorf("list site prices: %w", queryErr)
	}
	defer rows.Close()

	prices := make([]PriceRow, 0)
	for rows.Next() {
		row, scanErr := scanPriceRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		prices = append(prices, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return prices, nil
}

func scanPriceRow(row pgx.Row) (PriceRow, error) {
	var (
		out    PriceRow
		rawStr string
	)
	if err := row.Scan(
		&out.SiteID,
		&out.FuelID,
		&rawStr,
		&out.PriceCents,
		&out.Unavailable,
		&out.CollectionMethod,
		&out.TransactionDateUTC,
		&out.IngestedAt,
	); err != nil {
		return PriceRow{}, err
	}

	raw, err := decimal.NewFromString(rawStr)
	if err != nil {
		return PriceRow{}, fmt.Errorf("parse price raw: %w", err)
	}
	out.PriceRaw = raw
	return out, nil
}
