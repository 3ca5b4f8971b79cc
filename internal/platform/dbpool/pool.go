package dbpool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/checklist-api/project/internal/platform/config"
)

const (
	defaultMinConns        = 2
	defaultMaxConns        = 20
	defaultMaxConnLifetime = 30 * time.Minute
	defaultMaxConnIdleTime = 5 * time.Minute
	defaultHealthCheck     = 30 * time.Second
)

// ParseConfig turns the storage settings into a pool config, falling back to
// defaults for unset or nonsensical sizing.
func ParseConfig(storage config.StorageConfig) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(storage.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	minConns := storage.MinConns
	maxConns := storage.MaxConns
	if minConns < 0 {
		minConns = defaultMinConns
	}
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	if minConns > maxConns {
		minConns = maxConns
	}

	cfg.MinConns = int32(minConns)
	cfg.MaxConns = int32(maxConns)
	cfg.MaxConnLifetime = positiveOr(storage.MaxConnLifetime, defaultMaxConnLifetime)
	cfg.MaxConnIdleTime = positiveOr(storage.MaxConnIdleTime, defaultMaxConnIdleTime)
	cfg.HealthCheckPeriod = positiveOr(storage.HealthCheckPeriod, defaultHealthCheck)
	return cfg, nil
}

func New(ctx context.Context, storage config.StorageConfig) (*pgxpool.Pool, error) {
	cfg, err := ParseConfig(storage)
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

// WaitReady pings the pool until it answers or timeout elapses.
func WaitReady(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("postgres not ready after %s: %w", timeout, lastErr)
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
