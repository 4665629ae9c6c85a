// Package ratelimit paces requests against the issue tracker.
//
// Two independent mechanisms exist. A Pacer inserts the fixed delay the
// backup performs after every listing page. A Limiter, built with
// PerMinute on top of golang.org/x/time/rate, optionally caps the overall
// request rate of the HTTP client:
//
//	limiter := ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
//
// PerMinute(0) returns Unlimited, which never blocks.
package ratelimit
