package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	poolMaxConnIdleTime = 5 * time.Minute
	poolHealthCheck     = 30 * time.Second
)

// PostgresSettings sizes the identity store's connection pool. Zero values keep
// the pgx defaults.
type PostgresSettings struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// ApplicationName is reported to the server as application_name.
	ApplicationName string
}

// NewPostgresPool configures a PostgreSQL connection pool and verifies it can reach the server.
func NewPostgresPool(ctx context.Context, url string, settings PostgresSettings) (*pgxpool.Pool, error) {
	cfg, err := postgresPoolConfig(url, settings)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

func postgresPoolConfig(url string, settings PostgresSettings) (*pgxpool.Config, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if settings.MaxConns > 0 && settings.MinConns > settings.MaxConns {
		return nil, fmt.Errorf("postgres min conns %d exceeds max conns %d", settings.MinConns, settings.MaxConns)
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConnIdleTime = poolMaxConnIdleTime
	cfg.HealthCheckPeriod = poolHealthCheck
	if settings.MaxConns > 0 {
		cfg.MaxConns = settings.MaxConns
	}
	if settings.MinConns > 0 {
		cfg.MinConns = settings.MinConns
	}
	if settings.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = settings.MaxConnLifetime
	}
	if settings.ApplicationName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = settings.ApplicationName
	}
	return cfg, nil
}
