package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client. HTTPError unwraps to one of the
// classification sentinels so callers can use errors.Is.
var (
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("resource not found")

	// ErrOTPRequired is returned for 401 responses carrying an X-GitHub-OTP challenge.
	ErrOTPRequired = errors.New("two-factor authentication code required")

	// ErrUnauthorized is returned for other 401 responses.
	ErrUnauthorized = errors.New("bad credentials")

	// ErrRateLimited is returned when the rate limit handler gives up.
	ErrRateLimited = errors.New("API rate limit reached")

	// ErrAbuseLimited is returned when the abuse limit handler gives up.
	ErrAbuseLimited = errors.New("abuse detection limit reached")

	// ErrRetryExhausted is returned when all connection retries are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a request or wait.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRawURLPath is returned when appending to a request built from an absolute URL.
	ErrRawURLPath = errors.New("cannot append to an absolute url path")
)

// ErrorClass represents a classification of failed requests.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors without a specific class.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNotFound represents 404 responses.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassUnauthorized represents 401 responses.
	ErrorClassUnauthorized ErrorClass = "unauthorized"

	// ErrorClassOTPRequired represents 401 responses with an OTP challenge.
	ErrorClassOTPRequired ErrorClass = "otp_required"

	// ErrorClassRateLimit represents responses with an exhausted quota.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassAbuseLimit represents secondary rate limit responses.
	ErrorClassAbuseLimit ErrorClass = "abuse_limit"

	// ErrorClassNetwork represents transport failures.
	ErrorClassNetwork ErrorClass = "network"
)

// HTTPError is a failed GitHub request with the details needed to handle
// it programmatically.
type HTTPError struct {
	StatusCode int
	ErrorClass ErrorClass

	// Message is GitHub's error message, or the status text.
	Message string

	// URL is the request URL.
	URL string

	// Body is the raw response body.
	Body string

	// Header holds the response headers. Nil for transport failures.
	Header http.Header

	// DocumentationURL is GitHub's documentation_url, when present.
	DocumentationURL string

	Err error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("GitHub %s error for %s: %v", e.ErrorClass, e.URL, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("GitHub %s error (status %d) for %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("GitHub %s error (status %d) for %s: %s",
		e.ErrorClass, e.StatusCode, e.URL, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsOTPRequired reports whether err is a two-factor challenge.
func IsOTPRequired(err error) bool {
	return errors.Is(err, ErrOTPRequired)
}

// IsRateLimited reports whether err came from an exhausted primary or
// secondary rate limit.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrAbuseLimited)
}

// apiErrorBody is the JSON error document GitHub returns.
type apiErrorBody struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

// newHTTPError classifies a failed response. Order matters: any 401 (OTP
// challenge first) beats an exhausted quota, which beats the abuse
// limiter. Only 403 with Retry-After counts as the abuse limiter.
func newHTTPError(statusCode int, header http.Header, url string, body []byte) *HTTPError {
	e := &HTTPError{
		StatusCode: statusCode,
		Message:    http.StatusText(statusCode),
		URL:        url,
		Body:       string(body),
		Header:     header,
	}

	var parsed apiErrorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		if parsed.Message != "" {
			e.Message = parsed.Message
		}
		e.DocumentationURL = parsed.DocumentationURL
	}

	switch {
	case statusCode == http.StatusUnauthorized && header.Get("X-GitHub-OTP") != "":
		e.ErrorClass, e.Err = ErrorClassOTPRequired, ErrOTPRequired
	case statusCode == http.StatusUnauthorized:
		// Fatal even with an exhausted quota.
		e.ErrorClass, e.Err = ErrorClassUnauthorized, ErrUnauthorized
	case header.Get("X-RateLimit-Remaining") == "0":
		e.ErrorClass = ErrorClassRateLimit
	case statusCode == http.StatusForbidden && header.Get("Retry-After") != "":
		e.ErrorClass = ErrorClassAbuseLimit
	case statusCode == http.StatusNotFound:
		e.ErrorClass, e.Err = ErrorClassNotFound, ErrNotFound
	case statusCode >= 500:
		e.ErrorClass = ErrorClassServer
	default:
		e.ErrorClass = ErrorClassClient
	}
	return e
}
