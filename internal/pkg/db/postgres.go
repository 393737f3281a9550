// Package db provides the PostgreSQL pool, the query interface shared by
// pools and transactions, and the DeepSafe schema migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/config"
)

const (
	applicationName = "deepsafe-api"
	pingTimeout     = 2 * time.Second
)

// Pool is the API server's connection pool. It satisfies DBTX and Beginner,
// and its HealthCheck backs /healthz.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects to PostgreSQL and verifies the connection.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("component", "postgres").Str("database", cfg.Name).Logger()
	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Int32("max_conns", pc.MaxConns).
		Msg("Connecting to PostgreSQL")

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	p := &Pool{Pool: pool}
	if err := p.HealthCheck(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Msg("Connected to PostgreSQL")
	return p, nil
}

// poolConfig maps the database section onto pgxpool settings. Connections
// carry application_name so DeepSafe sessions are visible in pg_stat_activity.
func poolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pc.MaxConns = int32(cfg.PoolSize)
	pc.MinConns = max(int32(cfg.PoolSize/4), 1)
	pc.ConnConfig.ConnectTimeout = durationOr(cfg.ConnectTimeout, 10*time.Second)
	pc.MaxConnLifetime = durationOr(cfg.MaxConnLifetime, time.Hour)
	pc.MaxConnIdleTime = durationOr(cfg.MaxConnIdleTime, 30*time.Minute)
	pc.HealthCheckPeriod = 30 * time.Second
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	return pc, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Close closes the connection pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		log.Info().Str("component", "postgres").Msg("PostgreSQL connection pool closed")
	}
}

// HealthCheck pings the database, giving up after two seconds.
func (p *Pool) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
