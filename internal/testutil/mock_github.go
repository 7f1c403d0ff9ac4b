// Package testutil provides an httptest GitHub API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock GitHub endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGitHub is a configurable mock GitHub server. Every response carries
// rate limit headers; the remaining count drops by one per request.
type MockGitHub struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	limit     int
	remaining int
	reset     time.Time

	// Tracking
	RequestCount      int
	ConditionalCount  int
	NoCacheCount      int
	LastRequestHeader http.Header
	Paths             []string
}

// NewMockGitHub creates a new mock GitHub server with a 5000 request quota.
func NewMockGitHub() *MockGitHub {
	mock := &MockGitHub{
		handlers:  make(map[string]http.HandlerFunc),
		limit:     5000,
		remaining: 5000,
		reset:     time.Now().Add(time.Hour),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.Paths = append(mock.Paths, r.URL.RequestURI())

		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		if r.Header.Get("Cache-Control") == "no-cache" {
			mock.NoCacheCount++
		}
		if mock.remaining > 0 {
			mock.remaining--
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(mock.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(mock.remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(mock.reset.Unix(), 10))
		w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL, usable as the client API URL.
func (m *MockGitHub) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGitHub) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGitHub) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.NoCacheCount = 0
	m.LastRequestHeader = nil
	m.Paths = nil
}

// SetQuota sets the quota reported in the next responses.
func (m *MockGitHub) SetQuota(limit, remaining int, reset time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = limit
	m.remaining = remaining
	m.reset = reset
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGitHub) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockGitHub) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, resp.write)
}

// SetSequence answers requests to path with resps in order, repeating
// the last one once the others are used.
func (m *MockGitHub) SetSequence(path string, resps ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := resps[min(next, len(resps)-1)]
		next++
		mu.Unlock()
		resp.write(w, r)
	})
}

// SetPaginated serves items as a JSON array paginated with page and
// per_page query parameters and Link headers, like GitHub list endpoints.
func (m *MockGitHub) SetPaginated(path string, items []any, defaultPerPage int) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		pageItems, link := m.paginate(r, items, defaultPerPage)
		if link != "" {
			w.Header().Set("Link", link)
		}
		writeJSON(w, pageItems)
	})
}

// SetSearch serves items like a /search endpoint.
func (m *MockGitHub) SetSearch(path string, items []any, incomplete bool, defaultPerPage int) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		pageItems, link := m.paginate(r, items, defaultPerPage)
		if link != "" {
			w.Header().Set("Link", link)
		}
		writeJSON(w, map[string]any{
			"total_count":        len(items),
			"incomplete_results": incomplete,
			"items":              pageItems,
		})
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGitHub) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockGitHub) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetNoCacheCount returns the number of requests sent with Cache-Control: no-cache.
func (m *MockGitHub) GetNoCacheCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.NoCacheCount
}

// GetPaths returns the request URIs received so far.
func (m *MockGitHub) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Paths...)
}

func (m *MockGitHub) paginate(r *http.Request, items []any, defaultPerPage int) ([]any, string) {
	perPage := defaultPerPage
	if v, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && v > 0 {
		perPage = v
	}
	page := 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}

	start := min((page-1)*perPage, len(items))
	end := min(start+perPage, len(items))
	if end >= len(items) {
		return items[start:end], ""
	}

	lastPage := (len(items) + perPage - 1) / perPage
	return items[start:end], fmt.Sprintf(`<%s>; rel="next", <%s>; rel="last"`,
		m.pageURL(r, page+1), m.pageURL(r, lastPage))
}

func (m *MockGitHub) pageURL(r *http.Request, page int) string {
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	return m.server.URL + r.URL.Path + "?" + q.Encode()
}

// defaultHandler answers like GitHub does for unknown routes.
func (m *MockGitHub) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"message":"Not Found","documentation_url":"https://docs.github.com/rest"}`))
}

func (resp MockResponse) write(w http.ResponseWriter, r *http.Request) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// NewJSONResponse creates a 200 OK response with an ETag.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"ETag":         `"test-etag-123"`,
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitExhaustedResponse creates the 403 GitHub sends when the
// primary quota is used up. It overrides the quota headers.
func NewRateLimitExhaustedResponse(reset time.Time) MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message":"API rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     strconv.FormatInt(reset.Unix(), 10),
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewAbuseLimitResponse creates a secondary rate limit response.
func NewAbuseLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message":"You have exceeded a secondary rate limit."}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewOTPRequiredResponse creates a two-factor challenge.
func NewOTPRequiredResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"message":"Must specify two-factor authentication OTP code."}`,
		Headers: map[string]string{
			"X-GitHub-OTP": "required; app",
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message":"Server Error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewStaleNotFoundHandler answers 404 with an ETag unless the request
// carries Cache-Control: no-cache, in which case data is returned.
func NewStaleNotFoundHandler(etag, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if r.Header.Get("Cache-Control") != "no-cache" {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}

// NewConditionalHandler creates a handler that responds with 304 for conditional requests.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
