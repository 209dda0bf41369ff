package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fuel-price-alerts/internal/config"
)

const (
	healthCheckPeriod = 30 * time.Second
	openPingTimeout   = 5 * time.Second
)

// Open connects to PostgreSQL and verifies the connection before returning the store.
func Open(ctx context.Context, cfg config.DatabaseConfig, appName string) (*Store, error) {
	poolConfig, err := buildPoolConfig(cfg, appName)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, openPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewStore(pool), nil
}

// buildPoolConfig maps database settings onto pgxpool; the DSN wins for anything it sets itself.
func buildPoolConfig(cfg config.DatabaseConfig, appName string) (*pgxpool.Config, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(min(cfg.MaxIdleConns, int(poolConfig.MaxConns)))
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.HealthCheckPeriod = healthCheckPeriod

	runtime := poolConfig.ConnConfig.RuntimeParams
	if _, ok := runtime["application_name"]; !ok && appName != "" {
		runtime["application_name"] = appName
	}

	return poolConfig, nil
}
