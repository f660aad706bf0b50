// Package redis connects to Redis for the distributed per-user locks used by
// the billing reconciler.
//
// Connect retries the initial ping with exponential backoff so the service
// tolerates a Redis that starts after it. Healthcheck returns a readiness
// probe suitable for the health endpoints.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//	l := locker.NewRedis(client, locker.WithTTL(30*time.Second))
package redis
