package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey represents a unique identifier for a cached GitHub response.
type CacheKey struct {
	// Host is the API host (e.g., "api.github.com" or a GitHub Enterprise host)
	Host string

	// Endpoint is the request path (e.g., "/repos/octo/hello/issues")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"state": "open"})
	QueryParams url.Values

	// Principal identifies the credentials the response was fetched with.
	// Empty for anonymous requests.
	Principal string
}

// KeyForURL builds a key from an absolute request URL.
func KeyForURL(rawURL, principal string) (CacheKey, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return CacheKey{}, fmt.Errorf("parse cache key url: %w", err)
	}
	return CacheKey{
		Host:        u.Host,
		Endpoint:    u.Path,
		QueryParams: u.Query(),
		Principal:   principal,
	}, nil
}

// String generates a deterministic cache key string.
// Format: github:host:endpoint:query1=v1,v2:query2=v:as=<principal digest>
//
// Example:
//
//	github:api.github.com:repos/octo/hello/issues:page=2:state=open
func (k CacheKey) String() string {
	parts := []string{"github"}

	if k.Host != "" {
		parts = append(parts, strings.ToLower(k.Host))
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Add query params (sorted for determinism)
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	// Credentials never appear in the key verbatim.
	if k.Principal != "" {
		sum := sha256.Sum256([]byte(k.Principal))
		parts = append(parts, "as="+hex.EncodeToString(sum[:8]))
	}

	return strings.Join(parts, ":")
}
