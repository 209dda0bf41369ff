package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fuel-price-alerts/internal/storage"
)

type fakeSource struct {
	brands []BrandRecord
	fuels  []FuelRecord
	sites  []SiteRecord
	prices []PriceRecord
	err    error
}

func (f *fakeSource) Brands(context.Context, int) ([]BrandRecord, error) { return f.brands, f.err }
func (f *fakeSource) FuelTypes(context.Context, int) ([]FuelRecord, error) { return f.fuels, f.err }
func (f *fakeSource) Sites(context.Context, Region) ([]SiteRecord, error) { return f.sites, f.err }
func (f *fakeSource) SitePrices(context.Context, Region) ([]PriceRecord, error) {
	return f.prices, f.err
}

type fakeSink struct {
	mu       sync.Mutex
	inFlight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
	brands   []storage.Brand
	sites    []storage.Site
	prices   []storage.PriceRow
	known    map[int64]bool
}

func (f *fakeSink) enter() func() {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	time.Sleep(f.delay)
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeSink) UpsertBrands(_ context.Context, brands []storage.Brand) (int, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.brands = brands
	return len(brands), nil
}

func (f *fakeSink) UpsertFuelTypes(_ context.Context, fuels []storage.FuelType) (int, error) {
	defer f.enter()()
	return len(fuels), nil
}

func (f *fakeSink) UpsertSites(_ context.Context, sites []storage.Site) (int, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sites = sites
	return len(sites), nil
}

func (f *fakeSink) UpsertLatestPrices(_ context.Context, prices []storage.PriceRow) (storage.PriceUpsertStats, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = prices
	var stats storage.PriceUpsertStats
	for _, p := range prices {
		if f.known != nil && !f.known[p.SiteID] {
			stats.SkippedMissingSite++
			continue
		}
		stats.Updated++
	}
	return stats, nil
}

func TestSyncPricesConvertsFeedValues(t *testing.T) {
	source := &fakeSource{prices: []PriceRecord{
		{SiteID: 1, FuelID: 2, Price: decimal.RequireFromString("1899.5"), TransactionDateUTC: "2025-01-02T03:04:05Z"},
		{SiteID: 1, FuelID: 3, Price: decimal.NewFromInt(9999), TransactionDateUTC: "2025-01-02T03:04:05Z"},
		{SiteID: 7, FuelID: 2, Price: decimal.NewFromInt(1750), TransactionDateUTC: "2025-01-02T03:04:05Z"},
		{SiteID: 1, FuelID: 4, Price: decimal.NewFromInt(1600)},
	}}
	sink := &fakeSink{known: map[int64]bool{1: true}}
	svc := New(Options{Region: Region{CountryID: 21, GeoLevel: 3, GeoID: 1}}, nil, source, sink, zerolog.Nop())

	stats, err := svc.SyncPrices(context.Background())
	if err != nil {
		t.Fatalf("sync prices: %v", err)
	}
	want := PriceStats{Fetched: 4, Updated: 2, SkippedMissingSite: 1, SkippedInvalid: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	if len(sink.prices) != 3 {
		t.Fatalf("rows = %d", len(sink.prices))
	}
	first := sink.prices[0]
	if first.PriceCents != 1900 || first.Unavailable {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if !sink.prices[1].Unavailable {
		t.Fatal("9999 must mark the price unavailable")
	}
}

func TestToPriceRowRoundsHalfToEven(t *testing.T) {
	cases := map[string]int64{
		"188.5": 188,
		"189.5": 190,
		"189.4": 189,
		"189.6": 190,
	}
	for raw, want := range cases {
		row, ok := toPriceRow(PriceRecord{Price: decimal.RequireFromString(raw), TransactionDateUTC: "2025-01-01T00:00:00Z"})
		if !ok || row.PriceCents != want {
			t.Errorf("%s -> %d (ok=%v), want %d", raw, row.PriceCents, ok, want)
		}
	}
}

func TestSyncMasterMapsSites(t *testing.T) {
	lat := -27.4
	source := &fakeSource{
		brands: []BrandRecord{{BrandID: 5, Name: "Shell"}},
		fuels:  []FuelRecord{{FuelID: 2, Name: "Unleaded"}},
		sites: []SiteRecord{{
			SiteID:   61401,
			Name:     "Main St Fuel",
			BrandID:  9,
			Postcode: "4000",
			Lat:      &lat,
			Modified: "2025-01-02 03:04:05",
		}},
	}
	sink := &fakeSink{}
	svc := New(Options{}, nil, source, sink, zerolog.Nop())

	stats, err := svc.SyncMaster(context.Background())
	if err != nil {
		t.Fatalf("sync master: %v", err)
	}
	if stats != (MasterStats{Brands: 1, Fuels: 1, Sites: 1}) {
		t.Fatalf("stats = %+v", stats)
	}
	site := sink.sites[0]
	if site.BrandID != 9 || site.Postcode != "4000" || site.LastModifiedAt == nil || site.Lat == nil {
		t.Fatalf("unexpected site: %+v", site)
	}
}

func TestSyncMasterPropagatesFeedErrors(t *testing.T) {
	svc := New(Options{}, nil, &fakeSource{err: errors.New("feed down")}, &fakeSink{}, zerolog.Nop())
	if _, err := svc.SyncMaster(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := svc.SyncPrices(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestIngestionOperationsAreSerialised(t *testing.T) {
	source := &fakeSource{
		brands: []BrandRecord{{BrandID: 1, Name: "A"}},
		prices: []PriceRecord{{SiteID: 1, FuelID: 1, Price: decimal.NewFromInt(100), TransactionDateUTC: "2025-01-01T00:00:00Z"}},
	}
	sink := &fakeSink{delay: 5 * time.Millisecond}
	svc := New(Options{}, nil, source, sink, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.SyncMaster(context.Background())
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.SyncPrices(context.Background())
		}()
	}
	wg.Wait()

	if sink.overlap.Load() {
		t.Fatal("master and price refresh must not overlap")
	}
}

func TestRunRequiresScheduler(t *testing.T) {
	svc := New(Options{}, nil, &fakeSource{}, &fakeSink{}, zerolog.Nop())
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected error without scheduler")
	}
}
