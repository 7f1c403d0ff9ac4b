// Package client provides the GitHub REST request pipeline: request
// building, connection retries, rate-limit bookkeeping and error
// classification.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bitwiseman/github-api/pkg/clock"
	"github.com/bitwiseman/github-api/pkg/connector"
	"github.com/bitwiseman/github-api/pkg/logging"
	"github.com/bitwiseman/github-api/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for GitHub client operations.
var (
	githubRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_requests_total",
		Help: "Total GitHub requests by rate limit bucket and status",
	}, []string{"bucket", "status"})

	githubRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "github_request_duration_seconds",
		Help:    "GitHub request duration in seconds by rate limit bucket",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"bucket"})

	githubErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_errors_total",
		Help: "Total GitHub errors by class",
	}, []string{"class"})

	githubLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_limit_waits_total",
		Help: "Total number of rate limit and abuse limit handler invocations",
	}, []string{"kind"})
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"

	// APIVersion is sent as X-GitHub-Api-Version.
	APIVersion = "2022-11-28"

	defaultAccept = "application/vnd.github+json"
)

// Client sends Requests through a Connector.
type Client struct {
	connector connector.Connector
	tracker   *ratelimit.Tracker
	clock     clock.Clock
	config    Config
	apiPath   string
	logger    zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// APIURL is the API root, e.g. https://api.github.com or
	// https://ghe.example.com/api/v3.
	APIURL string

	// UserAgent header (required by GitHub).
	UserAgent string

	// Connector sends the HTTP requests (required).
	Connector connector.Connector

	// Tracker is the shared rate limit ledger. Nil creates one per client;
	// pass the same tracker to clients sharing a token.
	Tracker *ratelimit.Tracker

	// RateLimitHandler runs when a request fails with an exhausted quota.
	RateLimitHandler RateLimitHandler

	// AbuseLimitHandler runs when the secondary rate limiter rejects a request.
	AbuseLimitHandler AbuseLimitHandler

	// RateLimitChecker is consulted before each attempt.
	RateLimitChecker ratelimit.Checker

	// Retry governs connection-error retries.
	Retry RetryConfig

	// Clock for waits and timestamps. Nil uses clock.Real().
	Clock clock.Clock

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration that waits out rate and abuse
// limits and retries connection errors twice.
func DefaultConfig(conn connector.Connector, userAgent string) Config {
	return Config{
		APIURL:            DefaultAPIURL,
		UserAgent:         userAgent,
		Connector:         conn,
		RateLimitHandler:  RateLimitWait{},
		AbuseLimitHandler: AbuseLimitWait{},
		RateLimitChecker:  ratelimit.NoWaitChecker{},
		Retry:             DefaultRetryConfig(),
	}
}

// New creates a new GitHub client.
func New(cfg Config) (*Client, error) {
	if cfg.Connector == nil {
		return nil, fmt.Errorf("connector is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	apiURL, err := url.Parse(cfg.APIURL)
	if err != nil || !apiURL.IsAbs() {
		return nil, fmt.Errorf("api_url must be an absolute URL (got %q)", cfg.APIURL)
	}

	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("retry.max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.InitialBackoff < 0 {
		return nil, fmt.Errorf("retry.initial_backoff must be >= 0 (got %v)", cfg.Retry.InitialBackoff)
	}

	logger := logging.NewLogger(logging.ComponentClient)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = ratelimit.NewTracker(logging.NewLogger(logging.ComponentRateLimit), cfg.Clock)
	}
	if cfg.RateLimitHandler == nil {
		cfg.RateLimitHandler = RateLimitWait{}
	}
	if cfg.AbuseLimitHandler == nil {
		cfg.AbuseLimitHandler = AbuseLimitWait{}
	}
	if cfg.RateLimitChecker == nil {
		cfg.RateLimitChecker = ratelimit.NoWaitChecker{}
	}

	return &Client{
		connector: cfg.Connector,
		tracker:   cfg.Tracker,
		clock:     cfg.Clock,
		config:    cfg,
		apiPath:   strings.TrimSuffix(apiURL.Path, "/"),
		logger:    logger,
	}, nil
}

// Tracker returns the client's rate limit tracker.
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.tracker
}

// APIURL returns the configured API root.
func (c *Client) APIURL() string {
	return c.config.APIURL
}

// Logger returns the client's logger.
func (c *Client) Logger() zerolog.Logger {
	return c.logger
}

// Send performs req and returns the raw response body.
func (c *Client) Send(ctx context.Context, req *Request) (*Response[[]byte], error) {
	return send(ctx, c, req, func(resp *connector.Response) ([]byte, error) {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		return body, nil
	})
}

// Stream performs req and hands over the open response body. The caller
// must close it.
func (c *Client) Stream(ctx context.Context, req *Request) (*Response[io.ReadCloser], error) {
	return send(ctx, c, req, func(resp *connector.Response) (io.ReadCloser, error) {
		return resp.Body, nil
	})
}

// Fetch performs req and decodes a JSON body into T. 202, 204 and 304
// responses yield the zero value of T.
func Fetch[T any](ctx context.Context, c *Client, req *Request) (*Response[T], error) {
	return send(ctx, c, req, func(resp *connector.Response) (T, error) {
		var out T
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusNoContent, http.StatusNotModified:
			return out, nil
		case http.StatusAccepted:
			c.logger.Info().
				Str("url", resp.URL).
				Msg("GitHub is still generating the response, returning empty result")
			return out, nil
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return out, fmt.Errorf("read response body: %w", err)
		}
		if len(strings.TrimSpace(string(body))) == 0 {
			return out, nil
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return out, fmt.Errorf("decode response from %s: %w", resp.URL, err)
		}
		return out, nil
	})
}

// send runs the request state machine: attempt (with connection and
// stale-cache retries), note the quota, then either hand the response to
// handle or classify the failure and let the limit handlers decide
// whether to try again.
func send[T any](ctx context.Context, c *Client, req *Request, handle func(*connector.Response) (T, error)) (*Response[T], error) {
	reqURL, err := req.URL(c.config.APIURL)
	if err != nil {
		return nil, err
	}
	bucket := c.bucketFor(req, reqURL)

	c.logger.Debug().
		Str("method", req.Method()).
		Str("url", reqURL).
		Str("bucket", string(bucket)).
		Msg("Executing GitHub request")

	for {
		resp, err := c.attempt(ctx, req, bucket)
		if err != nil {
			return nil, err
		}

		c.noteRateLimit(bucket, resp.Header)
		githubRequestsTotal.WithLabelValues(string(bucket), strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < http.StatusBadRequest {
			body, err := handle(resp)
			if err != nil {
				return nil, err
			}
			return NewResponse(resp.StatusCode, resp.Header, resp.URL, body), nil
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			c.logger.Debug().Err(readErr).Msg("Failed to read error body")
		}

		httpErr := newHTTPError(resp.StatusCode, resp.Header, resp.URL, body)
		githubErrorsTotal.WithLabelValues(string(httpErr.ErrorClass)).Inc()

		retry, err := c.handleAPIError(ctx, req, bucket, httpErr)
		if !retry {
			return nil, err
		}
	}
}

// handleAPIError hands limit errors to the configured handlers. It
// returns true when the request should be sent again.
func (c *Client) handleAPIError(ctx context.Context, req *Request, bucket ratelimit.Bucket, httpErr *HTTPError) (bool, error) {
	event := &LimitEvent{
		Request: req,
		Err:     httpErr,
		Bucket:  bucket,
		Record:  c.tracker.Current(bucket),
		Clock:   c.clock,
	}

	switch httpErr.ErrorClass {
	case ErrorClassRateLimit:
		githubLimitWaitsTotal.WithLabelValues("rate_limit").Inc()
		c.logger.Info().
			Str("url", httpErr.URL).
			Str("bucket", string(bucket)).
			Time("reset_at", event.Record.ResetDate).
			Msg("Rate limit exhausted, invoking rate limit handler")
		if err := c.config.RateLimitHandler.OnRateLimit(ctx, event); err != nil {
			return false, err
		}
		return true, nil

	case ErrorClassAbuseLimit:
		githubLimitWaitsTotal.WithLabelValues("abuse_limit").Inc()
		c.logger.Warn().
			Str("url", httpErr.URL).
			Str("retry_after", httpErr.Header.Get("Retry-After")).
			Msg("Secondary rate limit hit, invoking abuse limit handler")
		if err := c.config.AbuseLimitHandler.OnAbuseLimit(ctx, event); err != nil {
			return false, err
		}
		return true, nil
	}

	c.logger.Debug().
		Str("url", httpErr.URL).
		Int("status", httpErr.StatusCode).
		Str("error_class", string(httpErr.ErrorClass)).
		Msg("GitHub request error")
	return false, httpErr
}

// noteRateLimit records the quota headers of a response.
func (c *Client) noteRateLimit(bucket ratelimit.Bucket, header http.Header) {
	if bucket == ratelimit.BucketNone {
		return
	}
	if err := c.tracker.UpdateFromHeaders(bucket, header); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to update rate limit from headers")
	}
}

// bucketFor maps core requests against /search to the search bucket.
func (c *Client) bucketFor(req *Request, reqURL string) ratelimit.Bucket {
	bucket := req.Bucket()
	if bucket != ratelimit.BucketCore {
		return bucket
	}
	u, err := url.Parse(reqURL)
	if err != nil {
		return bucket
	}
	if strings.HasPrefix(u.Path, c.apiPath+"/search/") || u.Path == c.apiPath+"/search" {
		return ratelimit.BucketSearch
	}
	return bucket
}

// connectorRequest resolves req into a transport request.
func (c *Client) connectorRequest(req *Request, noCache bool) (*connector.Request, error) {
	reqURL, err := req.URL(c.config.APIURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Accept", defaultAccept)
	header.Set("X-GitHub-Api-Version", APIVersion)
	header.Set("User-Agent", c.config.UserAgent)
	for name, values := range req.header {
		header[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if noCache {
		header.Set("Cache-Control", "no-cache")
	}

	body, contentType, err := req.Payload()
	if err != nil {
		return nil, err
	}
	if contentType != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", contentType)
	}

	return &connector.Request{
		Method: req.Method(),
		URL:    reqURL,
		Header: header,
		Body:   body,
	}, nil
}
