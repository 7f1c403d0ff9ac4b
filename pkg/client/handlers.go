package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bitwiseman/github-api/pkg/clock"
	"github.com/bitwiseman/github-api/pkg/ratelimit"
)

// Fallback wait when a limit response gives no usable reset information.
const defaultLimitWait = time.Minute

// LimitEvent describes a request rejected by a primary or secondary rate
// limit.
type LimitEvent struct {
	// Request is the rejected request.
	Request *Request

	// Err is the error that will be returned if the handler gives up.
	Err *HTTPError

	// Bucket is the bucket the request drew from.
	Bucket ratelimit.Bucket

	// Record is the bucket's record after the rejected response was noted.
	Record ratelimit.Record

	// Clock is the client's clock; handlers should sleep on it.
	Clock clock.Clock
}

// RateLimitHandler decides what happens when a request fails because the
// bucket's remaining count is zero. Returning nil retries the request;
// returning an error propagates it.
type RateLimitHandler interface {
	OnRateLimit(ctx context.Context, event *LimitEvent) error
}

// AbuseLimitHandler decides what happens when GitHub's secondary rate
// limiter rejects a request with Retry-After. Returning nil retries the
// request; returning an error propagates it.
type AbuseLimitHandler interface {
	OnAbuseLimit(ctx context.Context, event *LimitEvent) error
}

// RateLimitHandlerFunc adapts a function to RateLimitHandler.
type RateLimitHandlerFunc func(ctx context.Context, event *LimitEvent) error

// OnRateLimit calls f.
func (f RateLimitHandlerFunc) OnRateLimit(ctx context.Context, event *LimitEvent) error {
	return f(ctx, event)
}

// AbuseLimitHandlerFunc adapts a function to AbuseLimitHandler.
type AbuseLimitHandlerFunc func(ctx context.Context, event *LimitEvent) error

// OnAbuseLimit calls f.
func (f AbuseLimitHandlerFunc) OnAbuseLimit(ctx context.Context, event *LimitEvent) error {
	return f(ctx, event)
}

// RateLimitWait blocks until the bucket resets, then retries.
type RateLimitWait struct{}

// OnRateLimit sleeps until the skew-corrected reset time, at least one second.
func (RateLimitWait) OnRateLimit(ctx context.Context, event *LimitEvent) error {
	clk := eventClock(event)
	wait := defaultLimitWait
	if !event.Record.IsUnknown() {
		wait = event.Record.TimeUntilReset(clk.Now())
	}
	if wait < time.Second {
		wait = time.Second
	}
	if err := clock.Sleep(ctx, clk, wait); err != nil {
		return fmt.Errorf("%w: %w", ErrContextCancelled, err)
	}
	return nil
}

// RateLimitFail gives up immediately.
type RateLimitFail struct{}

// OnRateLimit returns ErrRateLimited wrapping the response error.
func (RateLimitFail) OnRateLimit(_ context.Context, event *LimitEvent) error {
	return fmt.Errorf("%w: %w", ErrRateLimited, event.Err)
}

// AbuseLimitWait sleeps for the Retry-After period, then retries.
type AbuseLimitWait struct{}

// OnAbuseLimit sleeps for Retry-After (seconds or HTTP date), or one
// minute when the header is unusable.
func (AbuseLimitWait) OnAbuseLimit(ctx context.Context, event *LimitEvent) error {
	clk := eventClock(event)
	wait := retryAfter(event.Err.Header, clk.Now())
	if err := clock.Sleep(ctx, clk, wait); err != nil {
		return fmt.Errorf("%w: %w", ErrContextCancelled, err)
	}
	return nil
}

// AbuseLimitFail gives up immediately.
type AbuseLimitFail struct{}

// OnAbuseLimit returns ErrAbuseLimited wrapping the response error.
func (AbuseLimitFail) OnAbuseLimit(_ context.Context, event *LimitEvent) error {
	return fmt.Errorf("%w: %w", ErrAbuseLimited, event.Err)
}

// retryAfter parses a Retry-After header.
func retryAfter(header http.Header, now time.Time) time.Duration {
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return defaultLimitWait
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultLimitWait
}

func eventClock(event *LimitEvent) clock.Clock {
	if event.Clock != nil {
		return event.Clock
	}
	return clock.Real()
}
