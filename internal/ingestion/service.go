package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fuel-price-alerts/internal/metrics"
	"fuel-price-alerts/internal/scheduler"
	"fuel-price-alerts/internal/storage"
)

// unavailableSentinel marks a price the site currently cannot sell.
var unavailableSentinel = decimal.NewFromInt(9999)

// Sink persists what the feed returns.
type Sink interface {
	UpsertBrands(ctx context.Context, brands []storage.Brand) (int, error)
	UpsertFuelTypes(ctx context.Context, fuels []storage.FuelType) (int, error)
	UpsertSites(ctx context.Context, sites []storage.Site) (int, error)
	UpsertLatestPrices(ctx context.Context, prices []storage.PriceRow) (storage.PriceUpsertStats, error)
}

// Options tune the ingestion service.
type Options struct {
	Region            Region
	SyncMasterOnStart bool
}

// MasterStats summarises a catalog refresh.
type MasterStats struct {
	Brands int
	Fuels  int
	Sites  int
}

// PriceStats summarises a latest-price refresh.
type PriceStats struct {
	Fetched            int
	Updated            int
	SkippedMissingSite int
	SkippedInvalid     int
}

// Service refreshes catalog and latest prices from the feed.
type Service struct {
	opts      Options
	scheduler *scheduler.Scheduler
	source    Source
	sink      Sink
	logger    zerolog.Logger

	// ingestionLock serialises SyncMaster and SyncPrices.
	ingestionLock sync.Mutex
}

// New constructs the ingestion service.
func New(opts Options, sched *scheduler.Scheduler, source Source, sink Sink, logger zerolog.Logger) *Service {
	return &Service{
		opts:      opts,
		scheduler: sched,
		source:    source,
		sink:      sink,
		logger:    logger.With().Str("component", "ingestion").Logger(),
	}
}

// Run performs the optional start-up catalog refresh and then refreshes prices on every tick.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	if s.opts.SyncMasterOnStart {
		if _, err := s.SyncMaster(ctx); err != nil {
			s.logger.Error().Err(err).Msg("initial master sync failed")
		}
	}

	return s.scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, err := s.SyncPrices(ctx)
		return err
	})
}

// SyncMaster refreshes brands, fuel types and sites.
func (s *Service) SyncMaster(ctx context.Context) (MasterStats, error) {
	s.ingestionLock.Lock()
	defer s.ingestionLock.Unlock()

	stats, err := s.syncMaster(ctx)
	s.recordRun("master", err)
	if err != nil {
		return stats, err
	}

	s.logger.Info().
		Int("brands", stats.Brands).
		Int("fuels", stats.Fuels).
		Int("sites", stats.Sites).
		Msg("master data synced")
	return stats, nil
}

func (s *Service) syncMaster(ctx context.Context) (MasterStats, error) {
	var stats MasterStats
	region := s.opts.Region

	brandRecords, err := s.source.Brands(ctx, region.CountryID)
	if err != nil {
		return stats, fmt.Errorf("fetch brands: %w", err)
	}
	brands := make([]storage.Brand, 0, len(brandRecords))
	for _, b := range brandRecords {
		brands = append(brands, storage.Brand{ID: b.BrandID, Name: b.Name})
	}
	if stats.Brands, err = s.sink.UpsertBrands(ctx, brands); err != nil {
		return stats, err
	}
	metrics.IngestionRecords.WithLabelValues("brands", "upserted").Add(float64(stats.Brands))

	fuelRecords, err := s.source.FuelTypes(ctx, region.CountryID)
	if err != nil {
		return stats, fmt.Errorf("fetch fuel types: %w", err)
	}
	fuels := make([]storage.FuelType, 0, len(fuelRecords))
	for _, f := range fuelRecords {
		fuels = append(fuels, storage.FuelType{ID: f.FuelID, Name: f.Name})
	}
	if stats.Fuels, err = s.sink.UpsertFuelTypes(ctx, fuels); err != nil {
		return stats, err
	}
	metrics.IngestionRecords.WithLabelValues("fuels", "upserted").Add(float64(stats.Fuels))

	siteRecords, err := s.source.Sites(ctx, region)
	if err != nil {
		return stats, fmt.Errorf("fetch sites: %w", err)
	}
	sites := make([]storage.Site, 0, len(siteRecords))
	for _, rec := range siteRecords {
		sites = append(sites, toSite(rec))
	}
	if stats.Sites, err = s.sink.UpsertSites(ctx, sites); err != nil {
		return stats, err
	}
	metrics.IngestionRecords.WithLabelValues("sites", "upserted").Add(float64(stats.Sites))

	return stats, nil
}

// SyncPrices overwrites the latest-price snapshot from the feed.
func (s *Service) SyncPrices(ctx context.Context) (PriceStats, error) {
	s.ingestionLock.Lock()
	defer s.ingestionLock.Unlock()

	stats, err := s.syncPrices(ctx)
	s.recordRun("prices", err)
	if err != nil {
		return stats, err
	}

	s.logger.Info().
		Int("fetched", stats.Fetched).
		Int("updated", stats.Updated).
		Int("skipped_missing_site", stats.SkippedMissingSite).
		Int("skipped_invalid", stats.SkippedInvalid).
		Msg("latest prices synced")
	return stats, nil
}

func (s *Service) syncPrices(ctx context.Context) (PriceStats, error) {
	var stats PriceStats

	records, err := s.source.SitePrices(ctx, s.opts.Region)
	if err != nil {
		return stats, fmt.Errorf("fetch site prices: %w", err)
	}
	stats.Fetched = len(records)

	rows := make([]storage.PriceRow, 0, len(records))
	for _, rec := range records {
		row, ok := toPriceRow(rec)
		if !ok {
			stats.SkippedInvalid++
			continue
		}
		rows = append(rows, row)
	}

	upserted, err := s.sink.UpsertLatestPrices(ctx, rows)
	if err != nil {
		return stats, err
	}
	stats.Updated = upserted.Updated
	stats.SkippedMissingSite = upserted.SkippedMissingSite

	metrics.IngestionRecords.WithLabelValues("prices", "upserted").Add(float64(stats.Updated))
	metrics.IngestionRecords.WithLabelValues("prices", "skipped_missing_site").Add(float64(stats.SkippedMissingSite))
	metrics.IngestionRecords.WithLabelValues("prices", "invalid").Add(float64(stats.SkippedInvalid))
	return stats, nil
}

func (s *Service) recordRun(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	metrics.IngestionRunsTotal.WithLabelValues(operation, status).Inc()
}

func toSite(rec SiteRecord) storage.Site {
	site := storage.Site{
		ID:            rec.SiteID,
		Name:          rec.Name,
		Address:       rec.Address,
		BrandID:       rec.BrandID,
		Postcode:      string(rec.Postcode),
		SuburbID:      rec.SuburbID,
		CityID:        rec.CityID,
		StateID:       rec.StateID,
		Lat:           rec.Lat,
		Lng:           rec.Lng,
		GooglePlaceID: rec.GooglePlaceID,
	}
	if ts, ok := parseTimestamp(rec.Modified); ok {
		site.LastModifiedAt = &ts
	}
	return site
}

// toPriceRow converts a feed price. Records without a transaction time are rejected.
// A raw price of 9999 marks the fuel unavailable; cents round half to even.
func toPriceRow(rec PriceRecord) (storage.PriceRow, bool) {
	ts, ok := parseTimestamp(rec.TransactionDateUTC)
	if !ok {
		return storage.PriceRow{}, false
	}
	return storage.PriceRow{
		SiteID:             rec.SiteID,
		FuelID:             rec.FuelID,
		PriceRaw:           rec.Price,
		PriceCents:         rec.Price.RoundBank(0).IntPart(),
		Unavailable:        rec.Price.Equal(unavailableSentinel),
		CollectionMethod:   rec.CollectionMethod,
		TransactionDateUTC: ts,
	}, true
}
