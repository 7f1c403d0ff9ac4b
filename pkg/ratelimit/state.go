// Package ratelimit tracks GitHub's per-bucket request quota as reported by
// the X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset
// headers. The tracker is an advisory ledger shared by every request a
// client issues; GitHub's server-side enforcement stays authoritative.
package ratelimit

import (
	"net/http"
	"time"
)

// Bucket names an independently tracked rate-limit category.
type Bucket string

const (
	// BucketCore is the quota shared by most REST endpoints.
	BucketCore Bucket = "core"

	// BucketSearch is the quota for /search endpoints.
	BucketSearch Bucket = "search"

	// BucketGraphQL is the quota for the GraphQL endpoint.
	BucketGraphQL Bucket = "graphql"

	// BucketIntegrationManifest is the quota for app manifest conversions.
	BucketIntegrationManifest Bucket = "integration_manifest"

	// BucketNone marks requests whose headers must not update any bucket,
	// such as GET /rate_limit itself.
	BucketNone Bucket = "none"
)

// Buckets lists the tracked buckets in display order.
func Buckets() []Bucket {
	return []Bucket{BucketCore, BucketSearch, BucketGraphQL, BucketIntegrationManifest}
}

// Placeholder values for a bucket that has never been observed.
const (
	UnknownLimit     = 1000000
	UnknownRemaining = 999999

	// UnknownResetWindow is how far in the future an unknown record resets.
	UnknownResetWindow = time.Hour
)

// Record is one observation of a bucket's quota. Records are immutable;
// the tracker replaces them whole.
type Record struct {
	// Limit is the maximum number of requests per window.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetEpochSeconds is the server's reset time in epoch seconds.
	ResetEpochSeconds int64 `json:"reset"`

	// CreatedAtEpochSeconds is the local clock at observation time.
	CreatedAtEpochSeconds int64 `json:"-"`

	// ResetDate is the local time at which the window resets, corrected
	// for skew between the local and server clocks.
	ResetDate time.Time `json:"-"`
}

// NewRecord builds a record observed at now. serverDate is the response
// Date header in RFC 1123 form; when it is empty or unparsable the server
// time is assumed to equal now.
func NewRecord(limit, remaining int, resetEpochSeconds int64, serverDate string, now time.Time) Record {
	createdAt := now.Unix()
	serverObserved := createdAt
	if serverDate != "" {
		if t, err := http.ParseTime(serverDate); err == nil {
			serverObserved = t.Unix()
		}
	}

	untilReset := resetEpochSeconds - serverObserved
	return Record{
		Limit:                 limit,
		Remaining:             remaining,
		ResetEpochSeconds:     resetEpochSeconds,
		CreatedAtEpochSeconds: createdAt,
		ResetDate:             time.Unix(createdAt+untilReset, 0),
	}
}

// UnknownRecord returns the placeholder used for buckets with no
// observation yet. It never blocks a caller.
func UnknownRecord(now time.Time) Record {
	reset := now.Add(UnknownResetWindow).Unix()
	return Record{
		Limit:                 UnknownLimit,
		Remaining:             UnknownRemaining,
		ResetEpochSeconds:     reset,
		CreatedAtEpochSeconds: now.Unix(),
		ResetDate:             time.Unix(reset, 0),
	}
}

// IsUnknown reports whether r is the never-observed placeholder.
func (r Record) IsUnknown() bool {
	return r.Limit == UnknownLimit && r.Remaining == UnknownRemaining
}

// IsExpired reports whether the record's window has already reset.
func (r Record) IsExpired(now time.Time) bool {
	return r.ResetDate.Before(now)
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (r Record) TimeUntilReset(now time.Time) time.Duration {
	d := r.ResetDate.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RateLimit is a snapshot of every tracked bucket.
type RateLimit struct {
	Core                Record `json:"core"`
	Search              Record `json:"search"`
	GraphQL             Record `json:"graphql"`
	IntegrationManifest Record `json:"integration_manifest"`
}

// Record returns the record for bucket b. BucketNone and unrecognised
// buckets map to the core record.
func (r RateLimit) Record(b Bucket) Record {
	switch b {
	case BucketSearch:
		return r.Search
	case BucketGraphQL:
		return r.GraphQL
	case BucketIntegrationManifest:
		return r.IntegrationManifest
	default:
		return r.Core
	}
}
