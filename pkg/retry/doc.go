// Package retry provides bounded retries with exponential backoff for
// transient failures against the issue tracker.
//
// The tracker client uses ForRetries to reproduce a urllib3-style policy:
// up to N retries on connection errors and 500/502/503/504 responses,
// waiting factor, 2*factor, 4*factor and so on between attempts.
//
//	cfg := retry.ForRetries(4, 200*time.Millisecond, 2*time.Minute, log)
//	body, err := retry.DoWithResult(func() ([]byte, error) {
//		return fetch(url)
//	}, cfg.WithContext(ctx))
//
// Errors from pkg/errors are retried only when Retryable reports true.
// Context cancellation is never retried.
package retry
