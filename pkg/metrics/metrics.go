// Package metrics exposes the Prometheus registry the GitHub client
// registers into. The collectors themselves live next to the code that
// updates them (client, ratelimit, cache, pagination) and are registered
// via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry used by the client packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the read side of Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - github_requests_total{bucket, status} (Counter): Responses by rate limit bucket and HTTP status
//   - github_request_duration_seconds{bucket} (Histogram): Round trip duration per attempt
//   - github_errors_total{class} (Counter): Failures by class (client, server, not_found, rate_limit, abuse_limit, otp_required, network)
//   - github_limit_waits_total{kind} (Counter): Rate limit and abuse limit handler invocations
//
// Retry Metrics (pkg/client):
//   - github_retries_total{reason} (Counter): Silent retries (connection, stale_cache)
//   - github_retry_backoff_seconds (Histogram): Backoff before connection retries
//   - github_retry_exhausted_total (Counter): Requests that used up the connection retry budget
//
// Rate Limit Metrics (pkg/ratelimit):
//   - github_rate_limit_remaining{bucket} (Gauge): Requests left in the current window
//   - github_rate_limit_limit{bucket} (Gauge): Window size
//   - github_rate_limit_checker_waits_total{bucket} (Counter): Requests delayed before sending
//
// Pagination Metrics (pkg/pagination):
//   - github_pages_fetched_total (Counter): Pages fetched by all walks
//
// Cache Metrics (pkg/cache):
//   - github_cache_hits_total{layer} (Counter): Cache hits by layer (redis, memory)
//   - github_cache_misses_total{layer} (Counter): Cache misses by layer
//   - github_cache_entry_bytes (Histogram): Size of stored response bodies
//   - github_conditional_requests_total (Counter): Requests sent with If-None-Match or If-Modified-Since
//   - github_304_responses_total (Counter): 304 Not Modified responses served from cache
//   - github_cache_errors_total{layer, operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Core quota left
//   github_rate_limit_remaining{bucket="core"}
//
//   # Revalidation rate (responses that cost no quota)
//   rate(github_304_responses_total[5m]) / rate(github_requests_total[5m])
//
//   # Secondary rate limit pressure
//   rate(github_limit_waits_total{kind="abuse_limit"}[15m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(github_request_duration_seconds_bucket[5m]))
