// Package middleware provides per-actor rate limiting for the HTTP API.
//
// # Limiters
//
// MemoryRateLimiter keeps one token bucket per key in process:
//
//	limiter := middleware.NewMemoryRateLimiter(cfg)
//	go limiter.StartCleanup(ctx)
//
// RedisRateLimiter counts requests per fixed window in Redis so several
// replicas share one budget:
//
//	limiter := middleware.NewRedisRateLimiter(redisClient, cfg, "tracker:ratelimit")
//
// # Middleware
//
// RateLimit wraps a router. Requests are keyed by the actor stored in the
// context by api.ActorMiddleware, falling back to the client IP:
//
//	router.Use(middleware.RateLimit(limiter, logger, metrics))
//
// Rejected requests get 429 with Retry-After. Backend errors fail open.
package middleware
