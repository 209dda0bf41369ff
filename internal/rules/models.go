package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidDirection indicates a direction outside the closed set.
	ErrInvalidDirection = errors.New("rules: invalid direction")
	// ErrInvalidComparator indicates a comparator outside the closed set.
	ErrInvalidComparator = errors.New("rules: invalid comparator")
	// ErrNegativeThreshold indicates a threshold below zero cents.
	ErrNegativeThreshold = errors.New("rules: threshold must not be negative")
)

// Direction selects which side of the pair is subtracted from the other.
type Direction string

const (
	CompetitorMinusOwn Direction = "COMPETITOR_MINUS_OWN"
	OwnMinusCompetitor Direction = "OWN_MINUS_COMPETITOR"
)

// ParseDirection normalises and validates a persisted or submitted direction.
func ParseDirection(raw string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(raw)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
	}
	return d, nil
}

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == CompetitorMinusOwn || d == OwnMinusCompetitor
}

// Comparator is the relation applied between the difference and the threshold.
type Comparator string

const (
	GT     Comparator = "GT"
	GTE    Comparator = "GTE"
	LT     Comparator = "LT"
	LTE    Comparator = "LTE"
	AbsGT  Comparator = "ABS_GT"
	AbsGTE Comparator = "ABS_GTE"
)

// Comparators lists every supported comparator.
var Comparators = []Comparator{GT, GTE, LT, LTE, AbsGT, AbsGTE}

// ParseComparator normalises and validates a comparator.
func ParseComparator(raw string) (Comparator, error) {
	c := Comparator(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidComparator, raw)
	}
	return c, nil
}

// Valid reports whether c is one of the known comparators.
func (c Comparator) Valid() bool {
	for _, known := range Comparators {
		if c == known {
			return true
		}
	}
	return false
}

// OwnedSite is a user's claim on a catalog site.
type OwnedSite struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	SiteID    int64
	Nickname  string
	IsPrimary bool
}

// DisplayName prefers the nickname and falls back to the catalog id.
func (o OwnedSite) DisplayName() string {
	if name := strings.TrimSpace(o.Nickname); name != "" {
		return name
	}
	return fmt.Sprintf("site %d", o.SiteID)
}

// PricingRule compares one owned site against one competitor site.
type PricingRule struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	OwnedSiteID      uuid.UUID
	CompetitorSiteID int64
	Name             string
	Enabled          bool
}

// RuleCondition is one fuel-vs-fuel comparison inside a rule.
type RuleCondition struct {
	ID                   uuid.UUID
	RuleID               uuid.UUID
	OwnFuelID            int64
	CompetitorFuelID     int64
	Direction            Direction
	Comparator           Comparator
	ThresholdCents       int64
	RequireBothAvailable bool
}

// Validate is the entry-time check for conditions.
func (c RuleCondition) Validate() error {
	if !c.Direction.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, c.Direction)
	}
	if !c.Comparator.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidComparator, c.Comparator)
	}
	if c.ThresholdCents < 0 {
		return ErrNegativeThreshold
	}
	return nil
}

// StateKey identifies one trigger state row.
type StateKey struct {
	UserID      uuid.UUID
	RuleID      uuid.UUID
	ConditionID uuid.UUID
}

// TriggerState is the persisted notification state of one condition.
type TriggerState struct {
	ID                 uuid.UUID
	Key                StateKey
	CurrentlyTriggered bool
	LastTriggeredAt    *time.Time
	LastNotifiedAt     *time.Time
	LastDiffCents      *int64
	UpdatedAt          time.Time
}

// NewTriggerState returns the idle record created on first evaluation.
func NewTriggerState(key StateKey) TriggerState {
	return TriggerState{ID: uuid.New(), Key: key}
}

// PriceObservation is the latest known price for a (site, fuel) pair.
type PriceObservation struct {
	SiteID      int64
	FuelID      int64
	PriceCents  int64
	Unavailable bool
	RecordedAt  time.Time
}

// Usable returns the price when it can take part in a comparison.
// A missing observation and one flagged unavailable are equivalent.
func (p *PriceObservation) Usable() *int64 {
	if p == nil || p.Unavailable {
		return nil
	}
	v := p.PriceCents
	return &v
}
