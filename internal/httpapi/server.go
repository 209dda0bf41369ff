package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"fuel-price-alerts/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// PriceReader is the storage surface the server reads from.
type PriceReader interface {
	Ping(ctx context.Context) error
	GetLatestPrice(ctx context.Context, siteID, fuelID int64) (*storage.PriceRow, error)
}

// Server exposes health, metrics and the latest-price lookup.
type Server struct {
	addr   string
	store  PriceReader
	logger zerolog.Logger
	router *gin.Engine
}

// New builds the router. A nil store reports unhealthy.
func New(addr string, store PriceReader, logger zerolog.Logger) *Server {
	s := &Server{
		addr:   addr,
		store:  store,
		logger: logger.With().Str("component", "http").Logger(),
	}

	router := gin.New()
	router.Use(s.recovery(), s.observe())

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/v1/prices/latest", s.latestPrice)

	s.router = router
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}
