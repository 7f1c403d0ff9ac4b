package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bitwiseman/github-api/pkg/ratelimit"
)

// Default content type of a raw request body.
const defaultRawContentType = "application/x-www-form-urlencoded"

// Param is one query or body parameter.
type Param struct {
	Key   string
	Value any
}

// Request is an immutable description of one GitHub API call. Build it
// with NewRequest; derive variants with ToBuilder.
type Request struct {
	method      string
	urlPath     string
	rawURL      bool
	params      []Param
	header      http.Header
	bucket      ratelimit.Bucket
	forceBody   bool
	body        []byte
	contentType string
}

// Method returns the HTTP method.
func (r *Request) Method() string { return r.method }

// URLPath returns the encoded path, or the absolute URL in raw mode.
func (r *Request) URLPath() string { return r.urlPath }

// IsRawURL reports whether URLPath is an absolute URL used verbatim.
func (r *Request) IsRawURL() bool { return r.rawURL }

// Bucket returns the rate-limit bucket the request draws from.
func (r *Request) Bucket() ratelimit.Bucket { return r.bucket }

// Params returns a copy of the parameters in insertion order.
func (r *Request) Params() []Param {
	return append([]Param(nil), r.params...)
}

// Header returns the first value of the named request header.
func (r *Request) Header(name string) string { return r.header.Get(name) }

// Headers returns a copy of the request headers.
func (r *Request) Headers() http.Header { return r.header.Clone() }

// HasBody reports whether parameters travel in the body rather than the
// query string. GET and DELETE are bodiless unless the body is forced.
func (r *Request) HasBody() bool {
	if r.forceBody {
		return true
	}
	return r.method != http.MethodGet && r.method != http.MethodDelete
}

// URL resolves the request against apiURL. Parameters are appended as a
// query string for bodiless requests.
func (r *Request) URL(apiURL string) (string, error) {
	base := r.urlPath
	if !r.rawURL {
		base = strings.TrimSuffix(apiURL, "/") + r.urlPath
	}
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("invalid request url %q: %w", base, err)
	}
	if r.HasBody() {
		return base, nil
	}

	query := encodeQuery(r.params)
	if query == "" {
		return base, nil
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + query, nil
}

// Payload returns the request body and its content type. It returns a
// nil body for bodiless requests. A raw body wins over parameters, which
// are otherwise sent as a JSON object in insertion order.
func (r *Request) Payload() ([]byte, string, error) {
	if !r.HasBody() {
		return nil, "", nil
	}

	if r.body != nil {
		contentType := r.contentType
		if contentType == "" {
			contentType = defaultRawContentType
		}
		return append([]byte(nil), r.body...), contentType, nil
	}

	contentType := r.contentType
	if contentType == "" {
		contentType = "application/json"
	}
	if len(r.params) == 0 {
		return nil, contentType, nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range r.params {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Key)
		if err != nil {
			return nil, "", fmt.Errorf("encode parameter name %q: %w", p.Key, err)
		}
		value, err := json.Marshal(p.Value)
		if err != nil {
			return nil, "", fmt.Errorf("encode parameter %q: %w", p.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), contentType, nil
}

// ToBuilder returns a builder seeded with a copy of r.
func (r *Request) ToBuilder() *Builder {
	cp := *r
	cp.params = r.Params()
	cp.header = r.header.Clone()
	if r.body != nil {
		cp.body = append([]byte(nil), r.body...)
	}
	return &Builder{req: cp, pathSet: r.urlPath != ""}
}

func encodeQuery(params []Param) string {
	var parts []string
	for _, p := range params {
		if p.Value == nil {
			continue
		}
		parts = append(parts, url.QueryEscape(p.Key)+"="+url.QueryEscape(formatValue(p.Value)))
	}
	return strings.Join(parts, "&")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []string:
		return strings.Join(val, ",")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Builder accumulates the fields of a Request. The first error hit by a
// builder method is reported by Build.
type Builder struct {
	req     Request
	pathSet bool
	err     error
}

// NewRequest starts a GET request drawing from the core bucket.
func NewRequest() *Builder {
	return &Builder{req: Request{
		method: http.MethodGet,
		header: http.Header{},
		bucket: ratelimit.BucketCore,
	}}
}

// Method sets the HTTP method. Any method token is accepted.
func (b *Builder) Method(method string) *Builder {
	b.req.method = strings.ToUpper(method)
	return b
}

// WithURLPath sets or extends the path. On first use a path starting with
// "/" selects path mode, in which every segment is percent-encoded; any
// other first value is taken as an absolute URL and nothing may be
// appended to it afterwards.
func (b *Builder) WithURLPath(segments ...string) *Builder {
	if b.err != nil || len(segments) == 0 {
		return b
	}

	if !b.pathSet {
		first := segments[0]
		segments = segments[1:]
		b.pathSet = true
		if strings.HasPrefix(first, "/") {
			b.req.rawURL = false
			b.req.urlPath = escapePath(first)
		} else {
			b.req.rawURL = true
			b.req.urlPath = first
		}
	}

	if len(segments) == 0 {
		return b
	}
	if b.req.rawURL {
		b.err = fmt.Errorf("%w: %s", ErrRawURLPath, b.req.urlPath)
		return b
	}
	for _, s := range segments {
		b.req.urlPath = strings.TrimSuffix(b.req.urlPath, "/") + "/" + escapePath(strings.TrimPrefix(s, "/"))
	}
	return b
}

// SetRawURLPath replaces the path with an absolute URL used verbatim,
// such as a server-provided "next" link.
func (b *Builder) SetRawURLPath(rawURL string) *Builder {
	if b.err != nil {
		return b
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		b.err = fmt.Errorf("invalid raw url %q: %w", rawURL, err)
		return b
	}
	if !u.IsAbs() {
		b.err = fmt.Errorf("raw url %q is not absolute", rawURL)
		return b
	}
	b.req.urlPath = rawURL
	b.req.rawURL = true
	b.pathSet = true
	return b
}

// With appends a parameter. Nil values are skipped.
func (b *Builder) With(key string, value any) *Builder {
	if value == nil {
		return b
	}
	return b.WithNullable(key, value)
}

// WithNullable appends a parameter even when value is nil, which is sent
// as JSON null in a body.
func (b *Builder) WithNullable(key string, value any) *Builder {
	b.req.params = append(b.req.params, Param{Key: key, Value: value})
	return b
}

// Set replaces the value of an existing parameter in place, or appends
// it when absent.
func (b *Builder) Set(key string, value any) *Builder {
	for i := range b.req.params {
		if b.req.params[i].Key == key {
			b.req.params[i].Value = value
			return b
		}
	}
	return b.WithNullable(key, value)
}

// ClearParams removes every parameter.
func (b *Builder) ClearParams() *Builder {
	b.req.params = nil
	return b
}

// WithHeader sets a header, replacing earlier values. An empty value
// removes it.
func (b *Builder) WithHeader(name, value string) *Builder {
	if value == "" {
		b.req.header.Del(name)
		return b
	}
	b.req.header.Set(name, value)
	return b
}

// WithPreview adds a media type to the Accept header.
func (b *Builder) WithPreview(mediaType string) *Builder {
	current := b.req.header.Get("Accept")
	if current == "" {
		b.req.header.Set("Accept", mediaType)
		return b
	}
	for _, existing := range strings.Split(current, ",") {
		if strings.TrimSpace(existing) == mediaType {
			return b
		}
	}
	b.req.header.Set("Accept", current+", "+mediaType)
	return b
}

// ContentType sets the content type of the body.
func (b *Builder) ContentType(contentType string) *Builder {
	b.req.contentType = contentType
	return b
}

// Body sets a raw body sent verbatim in place of the parameters.
func (b *Builder) Body(body []byte) *Builder {
	b.req.body = append([]byte{}, body...)
	return b
}

// InBody forces parameters into the body even for GET or DELETE.
func (b *Builder) InBody() *Builder {
	b.req.forceBody = true
	return b
}

// RateLimit selects the bucket the request draws from.
func (b *Builder) RateLimit(bucket ratelimit.Bucket) *Builder {
	b.req.bucket = bucket
	return b
}

// Build snapshots the builder into an immutable Request.
func (b *Builder) Build() (*Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.req.urlPath == "" {
		return nil, fmt.Errorf("url path is required")
	}
	if b.req.method == "" {
		return nil, fmt.Errorf("method is required")
	}

	out := b.req
	out.params = append([]Param(nil), b.req.params...)
	out.header = b.req.header.Clone()
	if out.header == nil {
		out.header = http.Header{}
	}
	if b.req.body != nil {
		out.body = append([]byte{}, b.req.body...)
	}
	return &out, nil
}

// escapePath percent-encodes each "/"-separated segment of p.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
