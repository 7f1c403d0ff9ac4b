package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/bitwiseman/github-api/pkg/cache"
	"github.com/bitwiseman/github-api/pkg/clock"
	"github.com/bitwiseman/github-api/pkg/connector"
	"github.com/bitwiseman/github-api/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	githubRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_retries_total",
		Help: "Total number of silent retries by reason",
	}, []string{"reason"})

	githubRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "github_retry_backoff_seconds",
		Help:    "Backoff duration before connection retries",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	githubRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "github_retry_exhausted_total",
		Help: "Total number of requests that exhausted their connection retries",
	})
)

// Retry reasons used as metric labels.
const (
	retryReasonConnection = "connection"
	retryReasonStaleCache = "stale_cache"
)

// RetryConfig holds the configuration for connection-error retries.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt fails
	// with a connection error.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the backoff between retries. Values below 1 keep it fixed.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns two retries with a fixed 100ms backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        100 * time.Millisecond,
		BackoffMultiplier: 1.0,
	}
}

func (rc RetryConfig) next(backoff time.Duration) time.Duration {
	if rc.BackoffMultiplier > 1 {
		backoff = time.Duration(float64(backoff) * rc.BackoffMultiplier)
	}
	if rc.MaxBackoff > 0 && backoff > rc.MaxBackoff {
		backoff = rc.MaxBackoff
	}
	return backoff
}

// attempt sends req through the connector, silently retrying transient
// connection failures within the retry budget and re-sending once with
// "Cache-Control: no-cache" when a 404 looks like a stale cached answer.
// HTTP error statuses are returned as responses for the caller to classify.
func (c *Client) attempt(ctx context.Context, req *Request, bucket ratelimit.Bucket) (*connector.Response, error) {
	retries := c.config.Retry.MaxRetries
	backoff := c.config.Retry.InitialBackoff
	noCache := false
	attempts := 0

	for {
		if err := c.tracker.Wait(ctx, bucket, c.config.RateLimitChecker); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}

		creq, err := c.connectorRequest(req, noCache)
		if err != nil {
			return nil, err
		}

		attempts++
		start := c.clock.Now()
		resp, err := c.connector.Send(ctx, creq)
		githubRequestDuration.WithLabelValues(string(bucket)).Observe(c.clock.Now().Sub(start).Seconds())

		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
			}
			githubRequestsTotal.WithLabelValues(string(bucket), "network_error").Inc()

			if !isConnectionError(err) {
				githubErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
				return nil, &HTTPError{ErrorClass: ErrorClassNetwork, URL: creq.URL, Message: "request failed", Err: err}
			}
			if retries <= 0 {
				githubErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
				githubRetryExhaustedTotal.Inc()
				c.logger.Warn().
					Err(err).
					Str("url", creq.URL).
					Int("attempts", attempts).
					Msg("Retry attempts exhausted")
				return nil, &HTTPError{
					ErrorClass: ErrorClassNetwork,
					URL:        creq.URL,
					Message:    "connection failed",
					Err:        fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, err),
				}
			}

			retries--
			githubRetriesTotal.WithLabelValues(retryReasonConnection).Inc()
			githubRetryBackoffSeconds.Observe(backoff.Seconds())
			c.logger.Warn().
				Err(err).
				Str("url", creq.URL).
				Int("attempt", attempts).
				Int("retries_left", retries).
				Dur("backoff", backoff).
				Msg("Connection error, retrying")

			if err := clock.Sleep(ctx, c.clock, backoff); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
			}
			backoff = c.config.Retry.next(backoff)
			continue
		}

		if !noCache && isStaleCached404(creq, resp) {
			drain(resp.Body)
			noCache = true
			githubRetriesTotal.WithLabelValues(retryReasonStaleCache).Inc()
			c.logger.Warn().
				Str("url", creq.URL).
				Str("etag", resp.Header.Get("ETag")).
				Msg("404 with ETag may be a stale cached response, retrying with no-cache")
			continue
		}

		return resp, nil
	}
}

// isStaleCached404 reports whether a 404 carries a validator, meaning a
// cache between us and GitHub may have answered for a resource that
// exists now.
func isStaleCached404(req *connector.Request, resp *connector.Response) bool {
	return resp.StatusCode == http.StatusNotFound &&
		req.Method == http.MethodGet &&
		resp.Header.Get("ETag") != "" &&
		!cache.IsNoCache(req.Header)
}

// isConnectionError reports whether err is a transient transport failure:
// resets, refusals, truncated reads, timeouts or a failed TLS handshake.
// Callers must check for their own context ending first.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var alertErr tls.AlertError
	return errors.As(err, &alertErr)
}

func drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	body.Close()
}
