package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fuel-price-alerts/internal/rules"
)

// Brand is a fuel retail brand from the upstream catalog.
type Brand struct {
	ID   int64
	Name string
}

// FuelType is a fuel grade from the upstream catalog.
type FuelType struct {
	ID   int64
	Name string
}

// Site is a retail site from the upstream catalog.
type Site struct {
	ID             int64
	Name           string
	Address        string
	BrandID        int64
	Postcode       string
	SuburbID       int64
	CityID         int64
	StateID        int64
	Lat            *float64
	Lng            *float64
	GooglePlaceID  *string
	LastModifiedAt *time.Time
}

// PriceRow is the latest-only price snapshot for one (site, fuel).
type PriceRow struct {
	SiteID             int64
	FuelID             int64
	PriceRaw           decimal.Decimal
	PriceCents         int64
	Unavailable        bool
	CollectionMethod   string
	TransactionDateUTC time.Time
	IngestedAt         time.Time
}

// Observation converts the row into the form consumed by rule evaluation.
func (p PriceRow) Observation() *rules.PriceObservation {
	return &rules.PriceObservation{
		SiteID:      p.SiteID,
		FuelID:      p.FuelID,
		PriceCents:  p.PriceCents,
		Unavailable: p.Unavailable,
		RecordedAt:  p.TransactionDateUTC,
	}
}

// PriceUpsertStats summarises a latest-price refresh.
type PriceUpsertStats struct {
	Updated            int
	SkippedMissingSite int
}

// TriggerStateView joins a trigger state with its rule for reporting.
type TriggerStateView struct {
	rules.TriggerState
	RuleName         string
	OwnedSiteID      uuid.UUID
	CompetitorSiteID int64
}
