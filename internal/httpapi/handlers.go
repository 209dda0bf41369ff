package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fuel-price-alerts/internal/version"
)

// health handles GET /healthz
func (s *Server) health(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "storage not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Get().Version})
}

// latestPrice handles GET /v1/prices/latest?site_id=&fuel_id=
func (s *Server) latestPrice(c *gin.Context) {
	siteID, err := strconv.ParseInt(c.Query("site_id"), 10, 64)
	if err != nil || siteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid site_id"})
		return
	}
	fuelID, err := strconv.ParseInt(c.Query("fuel_id"), 10, 64)
	if err != nil || fuelID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fuel_id"})
		return
	}
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage not configured"})
		return
	}

	row, err := s.store.GetLatestPrice(c.Request.Context(), siteID, fuelID)
	if err != nil {
		s.logger.Error().Err(err).Int64("site_id", siteID).Int64("fuel_id", fuelID).Msg("latest price lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if row == nil {
		c.JSON(http.StatusOK, gin.H{"found": false, "site_id": siteID, "fuel_id": fuelID})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"found":                true,
		"site_id":              row.SiteID,
		"fuel_id":              row.FuelID,
		"price_raw":            row.PriceRaw.String(),
		"price_cents":          row.PriceCents,
		"unavailable":          row.Unavailable,
		"collection_method":    row.CollectionMethod,
		"transaction_date_utc": row.TransactionDateUTC.UTC().Format(time.RFC3339),
		"ingested_at":          row.IngestedAt.UTC().Format(time.RFC3339),
	})
}
