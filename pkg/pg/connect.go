package pg

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool and pings it, retrying with exponential backoff so
// the service survives a database that starts after it.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.ConnectionString == "" {
		return nil, ErrEmptyConnectionString
	}
	connConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	connConfig.MaxConns = cfg.MaxOpenConns
	connConfig.MinConns = cfg.MaxIdleConns
	connConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	connConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	connConfig.MaxConnLifetime = cfg.MaxConnLifetime

	bo := backoff.NewExponentialBackOff()
	if cfg.RetryInterval > 0 {
		bo.InitialInterval = cfg.RetryInterval
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)

	var pool *pgxpool.Pool
	err = backoff.Retry(func() error {
		conn, err := pgxpool.NewWithConfig(ctx, connConfig)
		if err != nil {
			return err
		}
		// Ping catches authentication and permission problems early.
		if err := conn.Ping(ctx); err != nil {
			conn.Close()
			return err
		}
		pool = conn
		return nil
	}, policy)
	if err != nil {
		return nil, errors.Join(ErrFailedToOpenDBConnection, err)
	}
	return pool, nil
}
