// Package httputil provides retry helpers for network-bound operations.
//
// # Retry
//
// [Retry] runs an operation with bounded exponential backoff. Only transient
// failures are retried: errors wrapped in [RetryableError], or errors whose
// chain contains a value with a Retryable() bool method that returns true
// (deprank's *errors.Error implements it from its code).
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    return client.Get(ctx, url, &v)
//	})
//
// [RetryNotify] additionally reports each failed attempt, which the engine
// uses to log retries with the attempt number.
package httputil
