package client

import "net/http"

// Response is an immutable HTTP response with a typed body.
type Response[T any] struct {
	statusCode int
	header     http.Header
	url        string
	body       T
}

// NewResponse builds a Response. Header names are canonicalized so lookups
// are case-insensitive.
func NewResponse[T any](statusCode int, header http.Header, url string, body T) *Response[T] {
	canonical := make(http.Header, len(header))
	for name, values := range header {
		key := http.CanonicalHeaderKey(name)
		canonical[key] = append(canonical[key], values...)
	}
	return &Response[T]{
		statusCode: statusCode,
		header:     canonical,
		url:        url,
		body:       body,
	}
}

// StatusCode returns the HTTP status code.
func (r *Response[T]) StatusCode() int { return r.statusCode }

// URL returns the URL the request was sent to.
func (r *Response[T]) URL() string { return r.url }

// Header returns the first value of the named header.
func (r *Response[T]) Header(name string) string { return r.header.Get(name) }

// HeaderValues returns every value of the named header in order.
func (r *Response[T]) HeaderValues(name string) []string {
	return append([]string(nil), r.header.Values(name)...)
}

// Headers returns a copy of all headers.
func (r *Response[T]) Headers() http.Header { return r.header.Clone() }

// Body returns the deserialized body.
func (r *Response[T]) Body() T { return r.body }
