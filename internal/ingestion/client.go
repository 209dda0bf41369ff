package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	brandsPath     = "/Subscriber/GetCountryBrands"
	fuelTypesPath  = "/Subscriber/GetCountryFuelTypes"
	sitesPath      = "/Subscriber/GetFullSiteDetails"
	sitePricesPath = "/Price/GetSitesPrices"
)

// Region selects the geographic slice of the feed.
type Region struct {
	CountryID int
	GeoLevel  int
	GeoID     int
}

// Source is the upstream fuel price data feed.
type Source interface {
	Brands(ctx context.Context, countryID int) ([]BrandRecord, error)
	FuelTypes(ctx context.Context, countryID int) ([]FuelRecord, error)
	Sites(ctx context.Context, region Region) ([]SiteRecord, error)
	SitePrices(ctx context.Context, region Region) ([]PriceRecord, error)
}

// BrandRecord is one entry of GetCountryBrands.
type BrandRecord struct {
	BrandID int64  `json:"BrandId"`
	Name    string `json:"Name"`
}

// FuelRecord is one entry of GetCountryFuelTypes.
type FuelRecord struct {
	FuelID int64  `json:"FuelId"`
	Name   string `json:"Name"`
}

// SiteRecord is one entry of GetFullSiteDetails. The feed uses short keys.
type SiteRecord struct {
	SiteID        int64       `json:"S"`
	Address       string      `json:"A"`
	Name          string      `json:"N"`
	BrandID       int64       `json:"B"`
	Postcode      looseString `json:"P"`
	SuburbID      int64       `json:"G1"`
	CityID        int64       `json:"G2"`
	StateID       int64       `json:"G3"`
	Lat           *float64    `json:"Lat"`
	Lng           *float64    `json:"Lng"`
	Modified      string      `json:"M"`
	GooglePlaceID *string     `json:"GPI"`
}

// PriceRecord is one entry of GetSitesPrices.
type PriceRecord struct {
	SiteID             int64           `json:"SiteId"`
	FuelID             int64           `json:"FuelId"`
	CollectionMethod   string          `json:"CollectionMethod"`
	TransactionDateUTC string          `json:"TransactionDateUtc"`
	Price              decimal.Decimal `json:"Price"`
}

// ClientOptions parameterise the feed client.
type ClientOptions struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string
}

// Client fetches catalog and price data over HTTP.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a feed client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "fpd_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Brands lists the brands of a country.
func (c *Client) Brands(ctx context.Context, countryID int) ([]BrandRecord, error) {
	var out []BrandRecord
	err := c.getList(ctx, brandsPath, countryParams(countryID), []string{"Brands"}, &out)
	return out, err
}

// FuelTypes lists the fuel grades of a country.
func (c *Client) FuelTypes(ctx context.Context, countryID int) ([]FuelRecord, error) {
	var out []FuelRecord
	err := c.getList(ctx, fuelTypesPath, countryParams(countryID), []string{"Fuels"}, &out)
	return out, err
}

// Sites lists full site details within a region.
func (c *Client) Sites(ctx context.Context, region Region) ([]SiteRecord, error) {
	var out []SiteRecord
	err := c.getList(ctx, sitesPath, regionParams(region), []string{"S"}, &out)
	return out, err
}

// SitePrices lists the current prices within a region.
func (c *Client) SitePrices(ctx context.Context, region Region) ([]PriceRecord, error) {
	var out []PriceRecord
	err := c.getList(ctx, sitePricesPath, regionParams(region), []string{"SitePrices"}, &out)
	return out, err
}

func (c *Client) getList(ctx context.Context, path string, params url.Values, keys []string, dst any) error {
	if c.baseURL == "" {
		return fmt.Errorf("fpd base url not configured")
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "FPDAPI SubscriberToken="+c.opts.Token)
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "fuelwatch/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}

	items, err := unwrapList(payload, keys...)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if err := json.Unmarshal(items, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	c.logger.Debug().Str("path", path).Int("bytes", len(payload)).Msg("fetched feed page")
	return nil
}

func countryParams(countryID int) url.Values {
	return url.Values{"countryId": {strconv.Itoa(countryID)}}
}

func regionParams(r Region) url.Values {
	return url.Values{
		"countryId":      {strconv.Itoa(r.CountryID)},
		"geoRegionLevel": {strconv.Itoa(r.GeoLevel)},
		"geoRegionId":    {strconv.Itoa(r.GeoID)},
	}
}

type errorResponse struct {
	Message          string `json:"Message"`
	ExceptionMessage string `json:"ExceptionMessage"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.ExceptionMessage != "" {
			return fmt.Errorf("fpd api error (%d): %s", status, apiErr.ExceptionMessage)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("fpd api error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("fpd api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("fpd api error (%d)", status)
}

var _ Source = (*Client)(nil)
