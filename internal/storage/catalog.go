package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	upsertBrandSQL = `INSERT INTO fpd_brands (brand_id, name, updated_at)
    VALUES ($1,$2,now())
    ON CONFLICT (brand_id) DO UPDATE
    SET name = EXCLUDED.name, updated_at = now();`

	ensureBrandSQL = `INSERT INTO fpd_brands (brand_id, name)
    VALUES ($1,$2)
    ON CONFLICT (brand_id) DO NOTHING;`

	upsertFuelTypeSQL = `INSERT INTO fpd_fuel_types (fuel_id, name, updated_at)
    VALUES ($1,$2,now())
    ON CONFLICT (fuel_id) DO UPDATE
    SET name = EXCLUDED.name, updated_at = now();`

	ensureFuelTypeSQL = `INSERT INTO fpd_fuel_types (fuel_id, name)
    VALUES ($1,$2)
    ON CONFLICT (fuel_id) DO NOTHING;`

	upsertSiteSQL = `INSERT INTO fpd_sites (
        site_id,
        name,
        address,
        brand_id,
        postcode,
        suburb_id,
        city_id,
        state_id,
        lat,
        lng,
        google_place_id,
        last_modified_at,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now()
    )
    ON CONFLICT (site_id) DO UPDATE
    SET
        name             = EXCLUDED.name,
        address          = EXCLUDED.address,
        brand_id         = EXCLUDED.brand_id,
        postcode         = EXCLUDED.postcode,
        suburb_id        = EXCLUDED.suburb_id,
        city_id          = EXCLUDED.city_id,
        state_id         = EXCLUDED.state_id,
        lat              = EXCLUDED.lat,
        lng              = EXCLUDED.lng,
        google_place_id  = EXCLUDED.google_place_id,
        last_modified_at = EXCLUDED.last_modified_at,
        updated_at       = now();`

	upsertLatestPriceSQL = `INSERT INTO fpd_prices_latest (
        site_id,
        fuel_id,
        price_raw,
        price_cents,
        unavailable,
        collection_method,
        transaction_date_utc,
        ingested_at
    )
    SELECT $1::integer, $2::integer, $3::text::numeric, $4::bigint, $5::boolean, $6::text, $7::timestamptz, now()
    WHERE EXISTS (SELECT 1 FROM fpd_sites WHERE site_id = $1::integer)
    ON CONFLICT (site_id, fuel_id) DO UPDATE
    SET
        price_raw            = EXCLUDED.price_raw,
        price_cents          = EXCLUDED.price_cents,
        unavailable          = EXCLUDED.unavailable,
        collection_method    = EXCLUDED.collection_method,
        transaction_date_utc = EXCLUDED.transaction_date_utc,
        ingested_at          = now();`
)

// UpsertBrands refreshes the brand catalog.
func (s *Store) UpsertBrands(ctx context.Context, brands []Brand) (int, error) {
	if len(brands) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, b := range brands {
		batch.Queue(upsertBrandSQL, b.ID, b.Name)
	}
	if err := s.execBatch(ctx, batch, nil); err != nil {
		return 0, fmt.Errorf("upsert brands: %w", err)
	}
	return len(brands), nil
}

// UpsertFuelTypes refreshes the fuel type catalog.
func (s *Store) UpsertFuelTypes(ctx context.Context, fuels []FuelType) (int, error) {
	if len(fuels) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, f := range fuels {
		batch.Queue(upsertFuelTypeSQL, f.ID, f.Name)
	}
	if err := s.execBatch(ctx, batch, nil); err != nil {
		return 0, fmt.Errorf("upsert fuel types: %w", err)
	}
	return len(fuels), nil
}

// UpsertSites refreshes site details, creating placeholder brands for
// brand ids the catalog has not seen yet.
func (s *Store) UpsertSites(ctx context.Context, sites []Site) (int, error) {
	if len(sites) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	seen := make(map[int64]struct{})
	for _, site := range sites {
		if _, ok := seen[site.BrandID]; !ok {
			seen[site.BrandID] = struct{}{}
			batch.Queue(ensureBrandSQL, site.BrandID, placeholderName("Brand", site.BrandID))
		}
	}
	for _, site := range sites {
		batch.Queue(upsertSiteSQL,
			site.ID,
			site.Name,
			site.Address,
			site.BrandID,
			site.Postcode,
			site.SuburbID,
			site.CityID,
			site.StateID,
			site.Lat,
			site.Lng,
			site.GooglePlaceID,
			site.LastModifiedAt,
		)
	}
	if err := s.execBatch(ctx, batch, nil); err != nil {
		return 0, fmt.Errorf("upsert sites: %w", err)
	}
	return len(sites), nil
}

// UpsertLatestPrices overwrites the latest price per (site, fuel).
// Prices for sites missing from the catalog are skipped and counted.
func (s *Store) UpsertLatestPrices(ctx context.Context, prices []PriceRow) (PriceUpsertStats, error) {
	var stats PriceUpsertStats
	if len(prices) == 0 {
		return stats, nil
	}

	batch := &pgx.Batch{}
	seen := make(map[int64]struct{})
	for _, p := range prices {
		if _, ok := seen[p.FuelID]; !ok {
			seen[p.FuelID] = struct{}{}
			batch.Queue(ensureFuelTypeSQL, p.FuelID, placeholderName("Fuel", p.FuelID))
		}
	}
	ensured := batch.Len()
	for _, p := range prices {
		batch.Queue(upsertLatestPriceSQL,
			p.SiteID,
			p.FuelID,
			p.PriceRaw.String(),
			p.PriceCents,
			p.Unavailable,
			p.CollectionMethod,
			p.TransactionDateUTC,
		)
	}

	err := s.execBatch(ctx, batch, func(i int, affected int64) {
		if i < ensured {
			return
		}
		if affected == 0 {
			stats.SkippedMissingSite++
			return
		}
		stats.Updated++
	})
	if err != nil {
		return PriceUpsertStats{}, fmt.Errorf("upsert latest prices: %w", err)
	}
	return stats, nil
}

// execBatch runs batch in one transaction, reporting rows affected per statement.
func (s *Store) execBatch(ctx context.Context, batch *pgx.Batch, onResult func(i int, affected int64)) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return err
			}
			if onResult != nil {
				onResult(i, tag.RowsAffected())
			}
		}
		return results.Close()
	})
}

func placeholderName(kind string, id int64) string {
	return fmt.Sprintf("%s %d", kind, id)
}
