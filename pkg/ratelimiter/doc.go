// Package ratelimiter throttles checkout and billing portal creation with a
// per-key token bucket.
//
// Each key starts with Capacity tokens and regains RefillRate tokens every
// RefillInterval. A request that finds fewer tokens than it asks for is
// denied and consumes nothing.
//
//	limiter, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(client), cfg)
//	if err != nil {
//		return err
//	}
//	r.With(ratelimiter.Middleware(limiter, byUser)).Post("/checkout/stripe", checkout)
//
// MemoryStore serves single-instance deployments and tests. RedisStore
// keeps buckets in Redis so limits hold across replicas; the refill and
// consume step runs as one Lua script.
//
// The middleware sets X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset on every response and Retry-After on denials. Store
// failures let the request through.
package ratelimiter
