package client

import (
	"context"
	"fmt"

	"github.com/bitwiseman/github-api/pkg/ratelimit"
)

type rateLimitResource struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

type rateLimitDocument struct {
	Resources map[string]*rateLimitResource `json:"resources"`
}

// RateLimit fetches GET /rate_limit, stores every returned bucket in the
// tracker and returns the refreshed snapshot. The call itself does not
// count against the quota.
func (c *Client) RateLimit(ctx context.Context) (ratelimit.RateLimit, error) {
	req, err := NewRequest().
		WithURLPath("/rate_limit").
		RateLimit(ratelimit.BucketNone).
		Build()
	if err != nil {
		return ratelimit.RateLimit{}, err
	}

	resp, err := Fetch[rateLimitDocument](ctx, c, req)
	if err != nil {
		return ratelimit.RateLimit{}, fmt.Errorf("fetch rate limit: %w", err)
	}

	now := c.clock.Now()
	serverDate := resp.Header(ratelimit.HeaderDate)
	for _, bucket := range ratelimit.Buckets() {
		res := resp.Body().Resources[string(bucket)]
		if res == nil {
			continue
		}
		c.tracker.Store(bucket, ratelimit.NewRecord(res.Limit, res.Remaining, res.Reset, serverDate, now))
	}

	return c.tracker.Snapshot(), nil
}
