package cache

import (
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultRetention is how long an entry is kept when no retention is configured
	DefaultRetention = time.Hour
)

// headers that describe a single transfer and must not be replayed
var hopHeaders = []string{"Content-Length", "Content-Encoding", "Transfer-Encoding", "Connection"}

// NewEntry builds a cache entry from a decoded response. The entry is kept
// for retention, or DefaultRetention when retention is not positive.
func NewEntry(statusCode int, header http.Header, body []byte, retention time.Duration) *CacheEntry {
	if retention <= 0 {
		retention = DefaultRetention
	}

	headers := header.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	for _, h := range hopHeaders {
		headers.Del(h)
	}

	now := time.Now()
	entry := &CacheEntry{
		Data:       body,
		ETag:       header.Get("ETag"),
		StatusCode: statusCode,
		Headers:    headers,
		CachedAt:   now,
		Expires:    now.Add(retention),
	}

	if lastModStr := header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry
}

// IsCacheable reports whether a response can be revalidated later:
// a 200 carrying an ETag or Last-Modified validator.
func IsCacheable(statusCode int, header http.Header) bool {
	if statusCode != http.StatusOK {
		return false
	}
	return header.Get("ETag") != "" || header.Get("Last-Modified") != ""
}

// ShouldMakeConditionalRequest determines if we should add conditional
// request headers (If-None-Match or If-Modified-Since) based on the cache entry.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	if entry == nil {
		return false
	}
	return entry.ETag != "" || !entry.LastModified.IsZero()
}

// AddConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since
// to header. Headers the caller already set are left alone.
func AddConditionalHeaders(header http.Header, entry *CacheEntry) {
	if entry == nil || header == nil {
		return
	}
	if header.Get("If-None-Match") != "" || header.Get("If-Modified-Since") != "" {
		return
	}

	if entry.ETag != "" {
		header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}

// Revalidated merges the headers of a 304 response over the cached
// headers, so fresh values such as the rate-limit counters win.
func Revalidated(entry *CacheEntry, notModified http.Header) http.Header {
	merged := entry.Headers.Clone()
	if merged == nil {
		merged = http.Header{}
	}
	for k, v := range notModified {
		merged[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	for _, h := range hopHeaders {
		merged.Del(h)
	}
	return merged
}

// IsNoCache reports whether header carries a Cache-Control no-cache directive.
func IsNoCache(header http.Header) bool {
	for _, value := range header.Values("Cache-Control") {
		for _, directive := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(directive), "no-cache") {
				return true
			}
		}
	}
	return false
}
