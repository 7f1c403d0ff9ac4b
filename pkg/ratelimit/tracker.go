package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/bitwiseman/github-api/pkg/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Quota headers sent on every GitHub REST response.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderDate      = "Date"
)

// Prometheus metrics for rate limit tracking.
var (
	githubRateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "github_rate_limit_remaining",
		Help: "Requests remaining in the current GitHub rate limit window by bucket",
	}, []string{"bucket"})

	githubRateLimitLimit = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "github_rate_limit_limit",
		Help: "Request limit of the current GitHub rate limit window by bucket",
	}, []string{"bucket"})

	githubRateLimitCheckerWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_rate_limit_checker_waits_total",
		Help: "Total number of requests delayed by the pre-request rate limit checker",
	}, []string{"bucket"})
)

// Tracker holds the last observed quota for each bucket. It is safe for
// concurrent use; each bucket is replaced as a whole record so readers
// never see a mix of two observations.
type Tracker struct {
	records map[Bucket]*atomic.Pointer[Record]
	clock   clock.Clock
	logger  zerolog.Logger
}

// NewTracker creates an empty tracker. A nil clock uses clock.Real().
func NewTracker(logger zerolog.Logger, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	t := &Tracker{
		records: make(map[Bucket]*atomic.Pointer[Record], len(Buckets())),
		clock:   clk,
		logger:  logger,
	}
	for _, b := range Buckets() {
		t.records[b] = &atomic.Pointer[Record]{}
	}
	return t
}

// Current returns the latest record for bucket, or the unknown
// placeholder if the bucket has never been observed.
func (t *Tracker) Current(bucket Bucket) Record {
	slot, ok := t.records[bucket]
	if !ok {
		return UnknownRecord(t.clock.Now())
	}
	if rec := slot.Load(); rec != nil {
		return *rec
	}
	return UnknownRecord(t.clock.Now())
}

// Snapshot returns the current record of every bucket.
func (t *Tracker) Snapshot() RateLimit {
	return RateLimit{
		Core:                t.Current(BucketCore),
		Search:              t.Current(BucketSearch),
		GraphQL:             t.Current(BucketGraphQL),
		IntegrationManifest: t.Current(BucketIntegrationManifest),
	}
}

// Observe records a new quota observation for bucket and returns it.
// Observations for BucketNone are dropped.
func (t *Tracker) Observe(bucket Bucket, limit, remaining int, resetEpochSeconds int64, serverDate string) Record {
	rec := NewRecord(limit, remaining, resetEpochSeconds, serverDate, t.clock.Now())
	t.Store(bucket, rec)
	return rec
}

// Store replaces the record for bucket.
func (t *Tracker) Store(bucket Bucket, rec Record) {
	slot, ok := t.records[bucket]
	if !ok {
		return
	}
	slot.Store(&rec)

	githubRateLimitRemaining.WithLabelValues(string(bucket)).Set(float64(rec.Remaining))
	githubRateLimitLimit.WithLabelValues(string(bucket)).Set(float64(rec.Limit))

	event := t.logger.Debug()
	if rec.Remaining == 0 {
		event = t.logger.Warn()
	}
	event.
		Str("bucket", string(bucket)).
		Int("limit", rec.Limit).
		Int("remaining", rec.Remaining).
		Time("reset_at", rec.ResetDate).
		Msg("Rate limit updated")
}

// UpdateFromHeaders parses the quota headers of a response and records
// them for bucket. A response missing any of the three headers is
// ignored; a malformed value returns an error and leaves the bucket
// untouched.
func (t *Tracker) UpdateFromHeaders(bucket Bucket, headers http.Header) error {
	limitStr := headers.Get(HeaderLimit)
	remainingStr := headers.Get(HeaderRemaining)
	resetStr := headers.Get(HeaderReset)
	if limitStr == "" || remainingStr == "" || resetStr == "" {
		return nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}
	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	t.Observe(bucket, limit, remaining, reset, headers.Get(HeaderDate))
	return nil
}

// Wait consults checker with the current record for bucket and sleeps
// for the duration it asks for. It returns early with ctx.Err() if the
// context ends first.
func (t *Tracker) Wait(ctx context.Context, bucket Bucket, checker Checker) error {
	if checker == nil || bucket == BucketNone {
		return nil
	}

	rec := t.Current(bucket)
	wait := checker.CheckRateLimit(bucket, rec, t.clock.Now())
	if wait <= 0 {
		return nil
	}

	githubRateLimitCheckerWaitsTotal.WithLabelValues(string(bucket)).Inc()
	t.logger.Info().
		Str("bucket", string(bucket)).
		Int("remaining", rec.Remaining).
		Dur("wait", wait).
		Msg("Rate limit low, delaying request")

	return clock.Sleep(ctx, t.clock, wait)
}
