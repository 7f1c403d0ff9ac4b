// Package connector defines the narrow transport contract the client core
// sends requests through, and the implementations shipped with it: a
// net/http connector, a caching decorator and a scripted replay double.
package connector

import (
	"context"
	"io"
	"net/http"
)

// Request is one fully resolved HTTP call. Method may be any token,
// including verbs outside the standard set.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	cp := *r
	cp.Header = r.Header.Clone()
	if cp.Header == nil {
		cp.Header = http.Header{}
	}
	if r.Body != nil {
		cp.Body = append([]byte(nil), r.Body...)
	}
	return &cp
}

// Response is the transport's answer. Body is already decoded from any
// content encoding and must be closed by the receiver.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser

	// URL is the URL the request was sent to.
	URL string
}

// Connector sends a single HTTP request. A non-nil error means no HTTP
// response was obtained; HTTP error statuses are returned as responses.
type Connector interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to the Connector interface.
type Func func(ctx context.Context, req *Request) (*Response, error)

// Send calls f.
func (f Func) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
