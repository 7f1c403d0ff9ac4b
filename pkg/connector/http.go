package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bitwiseman/github-api/pkg/logging"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// HTTPConfig holds the configuration of the net/http connector.
type HTTPConfig struct {
	// HTTPClient is the underlying client. Nil builds one with Timeout.
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is nil. Zero means no timeout.
	Timeout time.Duration

	// TokenSource authenticates every request with a bearer token.
	// Nil sends anonymous requests.
	TokenSource oauth2.TokenSource

	// RequestsPerSecond paces outgoing requests client-side. Zero disables pacing.
	RequestsPerSecond float64

	// Burst is the pacing burst size (default 1).
	Burst int

	// Logger for transport events. Zero value uses the global logger.
	Logger *zerolog.Logger
}

// DefaultHTTPConfig returns an anonymous, unpaced configuration with a
// 30 second timeout.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout: 30 * time.Second,
		Burst:   1,
	}
}

// StaticToken returns a token source for a personal access token.
func StaticToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

// HTTPConnector sends requests with net/http.
type HTTPConnector struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewHTTP creates a net/http connector.
func NewHTTP(cfg HTTPConfig) (*HTTPConnector, error) {
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	if cfg.TokenSource != nil {
		authed := *httpClient
		authed.Transport = &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, cfg.TokenSource),
			Base:   httpClient.Transport,
		}
		httpClient = &authed
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := logging.NewLogger(logging.ComponentConnector)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &HTTPConnector{
		client:  httpClient,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Send implements Connector. It asks for gzip and decodes it; any other
// content encoding is an error.
func (c *HTTPConnector) Send(ctx context.Context, req *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for request slot: %w", err)
		}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for name, values := range req.Header {
		httpReq.Header[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	// Setting this ourselves turns off net/http's transparent decoding.
	httpReq.Header.Set("Accept-Encoding", "gzip")

	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL).
		Msg("Sending request")

	if e := c.logger.Trace(); e.Enabled() {
		e.Str("method", req.Method).
			Str("url", req.URL).
			Dict("headers", headerDict(httpReq.Header)).
			Msg("Request headers")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if e := c.logger.Trace(); e.Enabled() {
		e.Str("url", req.URL).
			Int("status", resp.StatusCode).
			Dict("headers", headerDict(resp.Header)).
			Msg("Response headers")
	}

	decoded, err := decodeBody(resp)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}

	header := resp.Header.Clone()
	if header.Get("Content-Encoding") != "" {
		header.Del("Content-Encoding")
		header.Del("Content-Length")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       decoded,
		URL:        req.URL,
	}, nil
}

// headerDict renders headers for trace logging with credentials redacted.
func headerDict(header http.Header) *zerolog.Event {
	dict := zerolog.Dict()
	for name, values := range header {
		if strings.EqualFold(name, "Authorization") {
			dict.Str(name, "REDACTED")
			continue
		}
		dict.Strs(name, values)
	}
	return dict
}

// decodeBody wraps the body in a decoder matching Content-Encoding.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return resp.Body, nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err == io.EOF {
			return resp.Body, nil
		}
		if err != nil {
			return nil, fmt.Errorf("open gzip body: %w", err)
		}
		return &gzipBody{Reader: zr, raw: resp.Body}, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

type gzipBody struct {
	*gzip.Reader
	raw io.ReadCloser
}

func (b *gzipBody) Close() error {
	zerr := b.Reader.Close()
	if err := b.raw.Close(); err != nil {
		return err
	}
	return zerr
}
