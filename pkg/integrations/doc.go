// Package integrations provides the shared HTTP client used by source-host
// API clients.
//
// # Client Pattern
//
// Host-specific clients embed [Client]:
//
//	client := github.NewClient(token, fileCache, 24*time.Hour)
//	metrics, err := client.Fetch(ctx, "acme", "widget", false)  // false = use cache
//
// [Client] handles:
//   - JSON GET requests with default headers
//   - Retry of transient failures (network errors, 429 and 5xx responses)
//   - Response caching through any [cache.Cache] backend
//   - HTTP observability hooks
//
// # Errors
//
// Responses map to sentinel errors checked with errors.Is: [ErrNotFound]
// for 404, [ErrAuth] for 401, and [ErrNetwork] for everything else.
// Transient failures are additionally wrapped in [httputil.RetryableError].
package integrations
