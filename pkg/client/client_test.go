package client

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/bitwiseman/github-api/pkg/clock"
	"github.com/bitwiseman/github-api/pkg/connector"
	"github.com/bitwiseman/github-api/pkg/ratelimit"
	"github.com/rs/zerolog"
)

var testStart = time.Unix(1700000000, 0)

// newTestClient builds a client on a replay connector and a fake clock.
func newTestClient(t *testing.T, replay *connector.Replay, mutate func(*Config)) (*Client, *clock.FakeClock) {
	t.Helper()

	clk := clock.Fake(testStart)
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)

	cfg := DefaultConfig(replay, "github-api-test/1.0")
	cfg.Clock = clk
	cfg.Logger = &logger
	cfg.Tracker = ratelimit.NewTracker(logger, clk)
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, clk
}

// quota returns rate limit headers resetting resetIn seconds after testStart.
func quota(limit, remaining int, resetIn int64) http.Header {
	return http.Header{
		"X-RateLimit-Limit":     {strconv.Itoa(limit)},
		"X-RateLimit-Remaining": {strconv.Itoa(remaining)},
		"X-RateLimit-Reset":     {strconv.FormatInt(testStart.Unix()+resetIn, 10)},
	}
}

func with(h http.Header, kv ...string) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out.Set(kv[i], kv[i+1])
	}
	return out
}

func mustBuild(t *testing.T, b *Builder) *Request {
	t.Helper()
	req, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return req
}

func TestNew_Validation(t *testing.T) {
	replay := connector.NewReplay()

	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig(replay, "TestApp/1.0.0"),
		},
		{
			name:        "nil connector",
			config:      DefaultConfig(nil, "TestApp/1.0.0"),
			expectError: true,
			errorMsg:    "connector is required",
		},
		{
			name:        "empty user agent",
			config:      DefaultConfig(replay, ""),
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name: "relative api url",
			config: func() Config {
				cfg := DefaultConfig(replay, "TestApp/1.0.0")
				cfg.APIURL = "/api/v3"
				return cfg
			}(),
			expectError: true,
			errorMsg:    "api_url must be an absolute URL",
		},
		{
			name: "negative retries",
			config: func() Config {
				cfg := DefaultConfig(replay, "TestApp/1.0.0")
				cfg.Retry.MaxRetries = -1
				return cfg
			}(),
			expectError: true,
			errorMsg:    "retry.max_retries must be >= 0",
		},
		{
			name:   "zero handlers get defaults",
			config: Config{Connector: replay, UserAgent: "TestApp/1.0.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatal("New() expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("New() error = %v, want containing %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if c.Tracker() == nil {
				t.Error("Tracker() = nil")
			}
			if c.APIURL() != DefaultAPIURL {
				t.Errorf("APIURL() = %v, want %v", c.APIURL(), DefaultAPIURL)
			}
		})
	}
}

func TestClient_Send(t *testing.T) {
	replay := connector.NewReplay(connector.ReplayStep{
		StatusCode: http.StatusOK,
		Header:     with(quota(5000, 4999, 3600), "Content-Type", "application/json"),
		Body:       `{"login":"octocat"}`,
	})
	c, _ := newTestClient(t, replay, nil)

	resp, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/user")))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if resp.StatusCode() != http.StatusOK {
		t.Errorf("StatusCode() = %d, want 200", resp.StatusCode())
	}
	if string(resp.Body()) != `{"login":"octocat"}` {
		t.Errorf("Body() = %s", resp.Body())
	}
	if resp.Header("content-type") != "application/json" {
		t.Errorf("Header() lookup must be case-insensitive, got %q", resp.Header("content-type"))
	}
	if resp.URL() != "https://api.github.com/user" {
		t.Errorf("URL() = %v", resp.URL())
	}

	sent := replay.Requests()[0]
	if sent.Header.Get("Accept") != "application/vnd.github+json" {
		t.Errorf("Accept = %q", sent.Header.Get("Accept"))
	}
	if sent.Header.Get("User-Agent") != "github-api-test/1.0" {
		t.Errorf("User-Agent = %q", sent.Header.Get("User-Agent"))
	}
	if sent.Header.Get("X-GitHub-Api-Version") != APIVersion {
		t.Errorf("X-GitHub-Api-Version = %q", sent.Header.Get("X-GitHub-Api-Version"))
	}

	if got := c.Tracker().Current(ratelimit.BucketCore).Remaining; got != 4999 {
		t.Errorf("core remaining = %d, want 4999", got)
	}
}

func TestClient_RateLimitBuckets(t *testing.T) {
	tests := []struct {
		name       string
		build      *Builder
		wantBucket ratelimit.Bucket
	}{
		{"core", NewRequest().WithURLPath("/repos/octo/hello"), ratelimit.BucketCore},
		{"search path", NewRequest().WithURLPath("/search/issues").With("q", "bug"), ratelimit.BucketSearch},
		{"search raw url", NewRequest().SetRawURLPath("https://api.github.com/search/code?q=x&page=2"), ratelimit.BucketSearch},
		{"explicit graphql", NewRequest().WithURLPath("/graphql").RateLimit(ratelimit.BucketGraphQL), ratelimit.BucketGraphQL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replay := connector.NewReplay(connector.ReplayStep{Header: quota(30, 17, 60), Body: `{}`})
			c, _ := newTestClient(t, replay, nil)

			if _, err := c.Send(context.Background(), mustBuild(t, tt.build)); err != nil {
				t.Fatalf("Send() error = %v", err)
			}

			for _, b := range ratelimit.Buckets() {
				rec := c.Tracker().Current(b)
				if b == tt.wantBucket && rec.Remaining != 17 {
					t.Errorf("bucket %s remaining = %d, want 17", b, rec.Remaining)
				}
				if b != tt.wantBucket && !rec.IsUnknown() {
					t.Errorf("bucket %s was updated, only %s should be", b, tt.wantBucket)
				}
			}
		})
	}
}

func TestFetch_Decoding(t *testing.T) {
	type repo struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name   string
		status int
		body   string
		want   []repo
	}{
		{"array", http.StatusOK, `[{"name":"a"},{"name":"b"}]`, []repo{{"a"}, {"b"}}},
		{"no content", http.StatusNoContent, ``, nil},
		{"still generating", http.StatusAccepted, `{}`, nil},
		{"empty body", http.StatusOK, ``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replay := connector.NewReplay(connector.ReplayStep{StatusCode: tt.status, Body: tt.body})
			c, _ := newTestClient(t, replay, nil)

			resp, err := Fetch[[]repo](context.Background(), c, mustBuild(t, NewRequest().WithURLPath("/user/repos")))
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if len(resp.Body()) != len(tt.want) {
				t.Fatalf("Body() = %v, want %v", resp.Body(), tt.want)
			}
			for i := range tt.want {
				if resp.Body()[i] != tt.want[i] {
					t.Errorf("Body()[%d] = %v, want %v", i, resp.Body()[i], tt.want[i])
				}
			}
		})
	}
}

func TestFetch_InvalidJSON(t *testing.T) {
	replay := connector.NewReplay(connector.ReplayStep{Body: `{not json`})
	c, _ := newTestClient(t, replay, nil)

	_, err := Fetch[map[string]any](context.Background(), c, mustBuild(t, NewRequest().WithURLPath("/user")))
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Errorf("Fetch() error = %v, want decode error", err)
	}
}

func TestClient_PostBody(t *testing.T) {
	replay := connector.NewReplay(connector.ReplayStep{StatusCode: http.StatusCreated, Body: `{"number":1}`})
	c, _ := newTestClient(t, replay, nil)

	req := mustBuild(t, NewRequest().Method(http.MethodPost).WithURLPath("/repos/octo/hello/issues").With("title", "x"))
	if _, err := c.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sent := replay.Requests()[0]
	if sent.Method != http.MethodPost {
		t.Errorf("Method = %v", sent.Method)
	}
	if string(sent.Body) != `{"title":"x"}` {
		t.Errorf("Body = %s", sent.Body)
	}
	if sent.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", sent.Header.Get("Content-Type"))
	}
}

func TestClient_HTTPError(t *testing.T) {
	replay := connector.NewReplay(connector.ReplayStep{
		StatusCode: http.StatusUnprocessableEntity,
		Header:     quota(5000, 4000, 60),
		Body:       `{"message":"Validation Failed","documentation_url":"https://docs.github.com/rest"}`,
	})
	c, _ := newTestClient(t, replay, nil)

	_, err := c.Send(context.Background(), mustBuild(t, NewRequest().Method(http.MethodPost).WithURLPath("/repos/octo/hello/issues")))

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Send() error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d", httpErr.StatusCode)
	}
	if httpErr.Message != "Validation Failed" {
		t.Errorf("Message = %q", httpErr.Message)
	}
	if httpErr.URL != "https://api.github.com/repos/octo/hello/issues" {
		t.Errorf("URL = %q", httpErr.URL)
	}
	if !strings.Contains(httpErr.Body, "Validation Failed") {
		t.Errorf("Body = %q", httpErr.Body)
	}
	if httpErr.DocumentationURL != "https://docs.github.com/rest" {
		t.Errorf("DocumentationURL = %q", httpErr.DocumentationURL)
	}
	if httpErr.ErrorClass != ErrorClassClient {
		t.Errorf("ErrorClass = %v", httpErr.ErrorClass)
	}
	if len(replay.Requests()) != 1 {
		t.Errorf("requests = %d, HTTP errors must not be retried", len(replay.Requests()))
	}
	if c.Tracker().Current(ratelimit.BucketCore).Remaining != 4000 {
		t.Error("quota headers of error responses must be recorded")
	}
}

func TestClient_ServerErrorNotRetried(t *testing.T) {
	replay := connector.NewReplay(
		connector.ReplayStep{StatusCode: http.StatusBadGateway, Body: `bad gateway`},
		connector.ReplayStep{StatusCode: http.StatusOK, Body: `{}`},
	)
	c, _ := newTestClient(t, replay, nil)

	_, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/user")))

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.ErrorClass != ErrorClassServer {
		t.Fatalf("Send() error = %v, want server HTTPError", err)
	}
	if replay.Remaining() != 1 {
		t.Errorf("5xx responses must be propagated, not retried")
	}
}

func TestClient_ConnectionRetry(t *testing.T) {
	replay := connector.NewReplay(
		connector.ReplayStep{Err: syscall.ECONNRESET},
		connector.ReplayStep{StatusCode: http.StatusOK, Body: `{"id":1}`},
	)
	c, clk := newTestClient(t, replay, nil)

	resp, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/repos/octo/hello")))
	if err != nil {
		t.Fatalf("Send() error = %v, want transparent retry", err)
	}
	if string(resp.Body()) != `{"id":1}` {
		t.Errorf("Body() = %s", resp.Body())
	}
	if got := len(replay.Requests()); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if got := clk.TotalWait(); got != 100*time.Millisecond {
		t.Errorf("backoff = %v, want 100ms", got)
	}
}

func TestClient_ConnectionRetryExhausted(t *testing.T) {
	replay := connector.NewReplay(
		connector.ReplayStep{Err: syscall.ECONNRESET},
		connector.ReplayStep{Err: syscall.ECONNRESET},
		connector.ReplayStep{Err: syscall.ECONNRESET},
		connector.ReplayStep{StatusCode: http.StatusOK},
	)
	c, _ := newTestClient(t, replay, nil)

	_, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/user")))
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Send() error = %v, want ErrRetryExhausted", err)
	}
	if !errors.Is(err, syscall.ECONNRESET) {
		t.Errorf("Send() error = %v, want the transport error in the chain", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("Send() error = %v, want network HTTPError", err)
	}
	if got := len(replay.Requests()); got != 3 {
		t.Errorf("requests = %d, want 3 (1 attempt + 2 retries)", got)
	}
}

func TestClient_ConnectionRetryBudgetConfigurable(t *testing.T) {
	replay := connector.NewReplay(
		connector.ReplayStep{Err: syscall.ECONNRESET},
		connector.ReplayStep{StatusCode: http.StatusOK},
	)
	c, _ := newTestClient(t, replay, func(cfg *Config) { cfg.Retry.MaxRetries = 0 })

	_, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/user")))
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Send() error = %v, want ErrRetryExhausted", err)
	}
	if got := len(replay.Requests()); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestClient_NonTransientTransportError(t *testing.T) {
	boom := errors.New("unsupported protocol scheme")
	replay := connector.NewReplay(connector.ReplayStep{Err: boom})
	c, _ := newTestClient(t, replay, nil)

	_, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/user")))
	if !errors.Is(err, boom) {
		t.Fatalf("Send() error = %v, want %v", err, boom)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("non-transient errors must not be retried")
	}
	if got := len(replay.Requests()); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestClient_StaleCached404(t *testing.T) {
	notFound := connector.ReplayStep{
		StatusCode: http.StatusNotFound,
		Header:     http.Header{"ETag": {`"stale"`}},
		Body:       `{"message":"Not Found"}`,
	}

	t.Run("second 404 propagates as not found", func(t *testing.T) {
		replay := connector.NewReplay(notFound, notFound, connector.ReplayStep{StatusCode: http.StatusOK})
		c, _ := newTestClient(t, replay, nil)

		_, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/repos/octo/new")))
		if !IsNotFound(err) {
			t.Fatalf("Send() error = %v, want not found", err)
		}

		sent := replay.Requests()
		if len(sent) != 2 {
			t.Fatalf("requests = %d, want exactly 2", len(sent))
		}
		if sent[0].Header.Get("Cache-Control") != "" {
			t.Errorf("first attempt Cache-Control = %q, want none", sent[0].Header.Get("Cache-Control"))
		}
		if sent[1].Header.Get("Cache-Control") != "no-cache" {
			t.Errorf("retry Cache-Control = %q, want no-cache", sent[1].Header.Get("Cache-Control"))
		}
	})

	t.Run("retry can succeed", func(t *testing.T) {
		replay := connector.NewReplay(notFound, connector.ReplayStep{StatusCode: http.StatusOK, Body: `{"id":7}`})
		c, _ := newTestClient(t, replay, nil)

		resp, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/repos/octo/new")))
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if string(resp.Body()) != `{"id":7}` {
			t.Errorf("Body() = %s", resp.Body())
		}
	})

	t.Run("independent of connection budget", func(t *testing.T) {
		replay := connector.NewReplay(notFound, connector.ReplayStep{StatusCode: http.StatusOK})
		c, _ := newTestClient(t, replay, func(cfg *Config) { cfg.Retry.MaxRetries = 0 })

		if _, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/x"))); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	})

	t.Run("404 without etag is not retried", func(t *testing.T) {
		replay := connector.NewReplay(connector.ReplayStep{StatusCode: http.StatusNotFound}, connector.ReplayStep{})
		c, _ := newTestClient(t, replay, nil)

		_, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/x")))
		if !IsNotFound(err) {
			t.Fatalf("Send() error = %v, want not found", err)
		}
		if got := len(replay.Requests()); got != 1 {
			t.Errorf("requests = %d, want 1", got)
		}
	})

	t.Run("request already no-cache", func(t *testing.T) {
		replay := connector.NewReplay(notFound, connector.ReplayStep{})
		c, _ := newTestClient(t, replay, nil)

		req := mustBuild(t, NewRequest().WithURLPath("/x").WithHeader("Cache-Control", "no-cache"))
		if _, err := c.Send(context.Background(), req); !IsNotFound(err) {
			t.Fatalf("Send() error = %v, want not found", err)
		}
		if got := len(replay.Requests()); got != 1 {
			t.Errorf("requests = %d, want 1", got)
		}
	})

	t.Run("non-GET is not retried", func(t *testing.T) {
		replay := connector.NewReplay(notFound, connector.ReplayStep{})
		c, _ := newTestClient(t, replay, nil)

		req := mustBuild(t, NewRequest().Method(http.MethodDelete).WithURLPath("/x"))
		if _, err := c.Send(context.Background(), req); !IsNotFound(err) {
			t.Fatalf("Send() error = %v, want not found", err)
		}
		if got := len(replay.Requests()); got != 1 {
			t.Errorf("requests = %d, want 1", got)
		}
	})
}

func TestClient_RateLimitHandler(t *testing.T) {
	exhausted := connector.ReplayStep{
		StatusCode: http.StatusForbidden,
		Header:     quota(5000, 0, 90),
		Body:       `{"message":"API rate limit exceeded"}`,
	}
	ok := connector.ReplayStep{StatusCode: http.StatusOK, Header: quota(5000, 4999, 3600), Body: `{}`}

	t.Run("wait then retry", func(t *testing.T) {
		replay := connector.NewReplay(exhausted, ok)
		c, clk := newTestClient(t, replay, nil)

		if _, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/user"))); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if got := clk.TotalWait(); got != 90*time.Second {
			t.Errorf("waited %v, want 1m30s", got)
		}
		if got := len(replay.Requests()); got != 2 {
			t.Errorf("requests = %d, want 2", got)
		}
	})

	t.Run("fail fast", func(t *testing.T) {
		replay := connector.NewReplay(exhausted, ok)
		c, _ := newTestClient(t, replay, func(cfg *Config) { cfg.RateLimitHandler = RateLimitFail{} })

		_, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/user")))
		if !errors.Is(err, ErrRateLimited) || !IsRateLimited(err) {
			t.Fatalf("Send() error = %v, want ErrRateLimited", err)
		}
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusForbidden {
			t.Errorf("Send() error = %v, want wrapped 403", err)
		}
	})

	t.Run("custom handler sees event", func(t *testing.T) {
		replay := connector.NewReplay(exhausted, exhausted, ok)
		calls := 0
		var seen *LimitEvent
		c, _ := newTestClient(t, replay, func(cfg *Config) {
			cfg.RateLimitHandler = RateLimitHandlerFunc(func(ctx context.Context, e *LimitEvent) error {
				calls++
				seen = e
				return nil
			})
		})

		if _, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/user"))); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if calls != 2 {
			t.Errorf("handler calls = %d, want 2", calls)
		}
		if seen.Bucket != ratelimit.BucketCore || seen.Record.Remaining != 0 {
			t.Errorf("event = %+v", seen)
		}
		if seen.Err.ErrorClass != ErrorClassRateLimit {
			t.Errorf("event error class = %v", seen.Err.ErrorClass)
		}
	})
}

func TestClient_AbuseLimitHandler(t *testing.T) {
	abuse := connector.ReplayStep{
		StatusCode: http.StatusForbidden,
		Header:     http.Header{"Retry-After": {"30"}},
		Body:       `{"message":"You have exceeded a secondary rate limit"}`,
	}

	t.Run("wait then retry", func(t *testing.T) {
		replay := connector.NewReplay(abuse, connector.ReplayStep{Body: `{}`})
		rateCalls := 0
		c, clk := newTestClient(t, replay, func(cfg *Config) {
			cfg.RateLimitHandler = RateLimitHandlerFunc(func(context.Context, *LimitEvent) error {
				rateCalls++
				return nil
			})
		})

		if _, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/user"))); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if got := clk.TotalWait(); got != 30*time.Second {
			t.Errorf("waited %v, want 30s", got)
		}
		if rateCalls != 0 {
			t.Error("abuse limits must not reach the rate limit handler")
		}
	})

	t.Run("fail fast", func(t *testing.T) {
		replay := connector.NewReplay(abuse)
		c, _ := newTestClient(t, replay, func(cfg *Config) { cfg.AbuseLimitHandler = AbuseLimitFail{} })

		_, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/user")))
		if !errors.Is(err, ErrAbuseLimited) {
			t.Fatalf("Send() error = %v, want ErrAbuseLimited", err)
		}
	})
}

func TestClient_OTPRequired(t *testing.T) {
	replay := connector.NewReplay(connector.ReplayStep{
		StatusCode: http.StatusUnauthorized,
		Header:     with(quota(60, 0, 60), "X-GitHub-OTP", "required; sms"),
		Body:       `{"message":"Must specify two-factor authentication OTP code."}`,
	})
	handlerCalled := false
	c, _ := newTestClient(t, replay, func(cfg *Config) {
		cfg.RateLimitHandler = RateLimitHandlerFunc(func(context.Context, *LimitEvent) error {
			handlerCalled = true
			return nil
		})
	})

	_, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/authorizations")))
	if !IsOTPRequired(err) {
		t.Fatalf("Send() error = %v, want ErrOTPRequired", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("OTP challenge must be distinct from bad credentials")
	}
	if handlerCalled {
		t.Error("OTP challenge must be fatal before rate limit handling")
	}
}

func TestClient_Unauthorized(t *testing.T) {
	replay := connector.NewReplay(connector.ReplayStep{StatusCode: http.StatusUnauthorized, Body: `{"message":"Bad credentials"}`})
	c, _ := newTestClient(t, replay, nil)

	_, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/user")))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Send() error = %v, want ErrUnauthorized", err)
	}
}

func TestClient_UnauthorizedWithExhaustedQuota(t *testing.T) {
	replay := connector.NewReplay(
		connector.ReplayStep{
			StatusCode: http.StatusUnauthorized,
			Header:     quota(60, 0, 60),
			Body:       `{"message":"Bad credentials"}`,
		},
		connector.ReplayStep{Body: `{}`},
	)
	rateCalls, abuseCalls := 0, 0
	c, clk := newTestClient(t, replay, func(cfg *Config) {
		cfg.RateLimitHandler = RateLimitHandlerFunc(func(context.Context, *LimitEvent) error {
			rateCalls++
			return nil
		})
		cfg.AbuseLimitHandler = AbuseLimitHandlerFunc(func(context.Context, *LimitEvent) error {
			abuseCalls++
			return nil
		})
	})

	_, err := c.Send(context.Background(), mustBuild(t, NewRequest().WithURLPath("/user")))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Send() error = %v, want ErrUnauthorized", err)
	}
	if errors.Is(err, ErrRateLimited) {
		t.Error("bad credentials must not be reported as a rate limit")
	}
	if rateCalls != 0 || abuseCalls != 0 {
		t.Errorf("handlers called (rate=%d, abuse=%d), want none", rateCalls, abuseCalls)
	}
	if got := len(replay.Requests()); got != 1 {
		t.Errorf("requests sent = %d, want 1", got)
	}
	if clk.TotalWait() != 0 {
		t.Errorf("waited %v, want 0", clk.TotalWait())
	}
}

func TestClient_RateLimitChecker(t *testing.T) {
	replay := connector.NewReplay(
		connector.ReplayStep{Header: quota(5000, 3, 45), Body: `{}`},
		connector.ReplayStep{Header: quota(5000, 4999, 3600), Body: `{}`},
	)
	c, clk := newTestClient(t, replay, func(cfg *Config) {
		cfg.RateLimitChecker = ratelimit.ThresholdChecker{Threshold: 5}
	})
	req := mustBuild(t, NewRequest().WithURLPath("/user"))

	if _, err := c.Send(context.Background(), req); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	if clk.TotalWait() != 0 {
		t.Errorf("first request waited %v, want 0", clk.TotalWait())
	}

	if _, err := c.Send(context.Background(), req); err != nil {
		t.Fatalf("second Send() error = %v", err)
	}
	if got := clk.TotalWait(); got != 45*time.Second {
		t.Errorf("second request waited %v, want 45s", got)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	replay := connector.NewReplay(connector.ReplayStep{})
	c, _ := newTestClient(t, replay, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Send(ctx, mustBuild(t, NewRequest().WithURLPath("/user")))
	if !errors.Is(err, ErrContextCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Send() error = %v, want context cancellation", err)
	}
}

func TestClient_RateLimit(t *testing.T) {
	serverDate := testStart.Add(-10 * time.Second).UTC().Format(http.TimeFormat)
	replay := connector.NewReplay(connector.ReplayStep{
		Header: with(quota(5000, 1, 60), "Date", serverDate),
		Body: `{"resources":{
			"core":{"limit":5000,"remaining":4321,"reset":` + strconv.FormatInt(testStart.Unix()+60, 10) + `},
			"search":{"limit":30,"remaining":12,"reset":` + strconv.FormatInt(testStart.Unix()+60, 10) + `},
			"graphql":{"limit":5000,"remaining":4999,"reset":` + strconv.FormatInt(testStart.Unix()+60, 10) + `}
		}}`,
	})
	c, _ := newTestClient(t, replay, nil)

	rl, err := c.RateLimit(context.Background())
	if err != nil {
		t.Fatalf("RateLimit() error = %v", err)
	}

	if rl.Core.Remaining != 4321 {
		t.Errorf("Core.Remaining = %d, want 4321 from the body, not the headers", rl.Core.Remaining)
	}
	if want := testStart.Add(70 * time.Second); !rl.Core.ResetDate.Equal(want) {
		t.Errorf("Core.ResetDate = %v, want %v", rl.Core.ResetDate, want)
	}
	if rl.Search.Remaining != 12 {
		t.Errorf("Search.Remaining = %d, want 12", rl.Search.Remaining)
	}
	if !rl.IntegrationManifest.IsUnknown() {
		t.Error("missing bucket should stay unknown")
	}
	if got := replay.Requests()[0].URL; got != "https://api.github.com/rate_limit" {
		t.Errorf("URL = %v", got)
	}
}
