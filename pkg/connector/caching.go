package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bitwiseman/github-api/pkg/cache"
	"github.com/bitwiseman/github-api/pkg/logging"
	"github.com/rs/zerolog"
)

// CachingConfig configures the caching decorator.
type CachingConfig struct {
	// Store holds cached responses (cache.Manager for Redis, cache.MemoryStore in process).
	Store cache.Store

	// Retention is how long a response is kept after it was last stored.
	// Zero uses cache.DefaultRetention.
	Retention time.Duration

	// Principal separates entries fetched with different credentials.
	Principal string

	// Logger for cache events. Nil uses the global logger.
	Logger *zerolog.Logger
}

// Caching is a Connector decorator that revalidates GETs against a
// response cache. A 304 from the server is answered with the cached
// response, carrying the 304's fresh headers. Requests with
// "Cache-Control: no-cache" skip the conditional headers so the server
// returns a full answer.
type Caching struct {
	next      Connector
	store     cache.Store
	retention time.Duration
	principal string
	logger    zerolog.Logger
}

// NewCaching wraps next with a response cache.
func NewCaching(next Connector, cfg CachingConfig) (*Caching, error) {
	if next == nil {
		return nil, fmt.Errorf("next connector is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache store is required")
	}

	logger := logging.NewLogger(logging.ComponentCache)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Caching{
		next:      next,
		store:     cfg.Store,
		retention: cfg.Retention,
		principal: cfg.Principal,
		logger:    logger,
	}, nil
}

// Send implements Connector.
func (c *Caching) Send(ctx context.Context, req *Request) (*Response, error) {
	if req.Method != http.MethodGet {
		return c.next.Send(ctx, req)
	}

	key, err := cache.KeyForURL(req.URL, c.principal)
	if err != nil {
		return c.next.Send(ctx, req)
	}

	bypass := cache.IsNoCache(req.Header)

	var entry *cache.CacheEntry
	if !bypass {
		entry, err = c.store.Get(ctx, key)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
	}

	out := req
	if cache.ShouldMakeConditionalRequest(entry) {
		out = req.Clone()
		cache.AddConditionalHeaders(out.Header, entry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("url", req.URL).
			Str("etag", entry.ETag).
			Msg("Making conditional request")
	}

	resp, err := c.next.Send(ctx, out)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotModified && entry != nil:
		resp.Body.Close()
		cache.NotModifiedResponses.Inc()
		if err := c.store.UpdateTTL(ctx, key, time.Now().Add(c.retentionOrDefault())); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to extend cache entry")
		}
		c.logger.Debug().Str("url", req.URL).Msg("304 Not Modified - serving cached response")
		return &Response{
			StatusCode: entry.StatusCode,
			Header:     cache.Revalidated(entry, resp.Header),
			Body:       io.NopCloser(bytes.NewReader(entry.Data)),
			URL:        resp.URL,
		}, nil

	case cache.IsCacheable(resp.StatusCode, resp.Header):
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))

		if err := c.store.Set(ctx, key, cache.NewEntry(resp.StatusCode, resp.Header, body, c.retention)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}

	case resp.StatusCode == http.StatusNotFound:
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to drop cache entry")
		}
	}

	return resp, nil
}

func (c *Caching) retentionOrDefault() time.Duration {
	if c.retention > 0 {
		return c.retention
	}
	return cache.DefaultRetention
}
