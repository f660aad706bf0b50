package redis

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// Connect parses cfg.ConnectionURL and pings the server, retrying with
// exponential backoff until RetryAttempts or ConnectTimeout is exhausted.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrInvalidURL, err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.RetryInterval > 0 {
		bo.InitialInterval = cfg.RetryInterval
	}
	attempts := max(cfg.RetryAttempts, 1)

	client := redis.NewClient(opts)
	err = backoff.Retry(func() error {
		return client.Ping(ctx).Err()
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
	if err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrNotReady, err)
	}
	return client, nil
}
