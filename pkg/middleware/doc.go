// Package middleware provides HTTP rate limiting.
//
// # Overview
//
// Two Limiter implementations share one middleware:
//
//   - RateLimiter: in-process token bucket, per instance
//   - DistributedRateLimiter: Redis fixed window, shared across instances
//
// The middleware keys requests with a KeyFunc. PrincipalKey limits each
// authenticated caller (falling back to client address); PathKey limits by a
// route variable, which the API uses to cap inbound message ingestion per
// workspace.
//
//	limiter := middleware.NewRateLimiter(middleware.PerUserRateLimitConfig(), nil)
//	mw := middleware.NewRateLimitMiddleware("principal", limiter, middleware.PrincipalKey, metrics)
//	router.Use(mw.Handler)
//
// # Failure Handling
//
// A limiter error never blocks a request. The middleware logs a warning,
// counts a fail_open result and serves the request.
//
// # Defaults
//
// Anonymous: 100 req/min, 10 burst
// Per-principal: 1000 req/min, 50 burst
// Inbound per workspace: 600 req/min, 60 burst
//
// # Related Packages
//
//   - pkg/api: applies the limiters
//   - pkg/tenancy: principal on the request context
package middleware
