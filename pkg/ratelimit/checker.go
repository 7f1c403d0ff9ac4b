package ratelimit

import "time"

// Checker decides, before a request is sent, how long to wait given the
// bucket's last known record. A zero duration lets the request proceed.
type Checker interface {
	CheckRateLimit(bucket Bucket, rec Record, now time.Time) time.Duration
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(bucket Bucket, rec Record, now time.Time) time.Duration

// CheckRateLimit calls f.
func (f CheckerFunc) CheckRateLimit(bucket Bucket, rec Record, now time.Time) time.Duration {
	return f(bucket, rec, now)
}

// NoWaitChecker never delays a request. Exhaustion is then handled only
// after GitHub rejects a request.
type NoWaitChecker struct{}

// CheckRateLimit always returns 0.
func (NoWaitChecker) CheckRateLimit(Bucket, Record, time.Time) time.Duration { return 0 }

// ThresholdChecker waits for the window to reset once the remaining count
// drops to Threshold or below.
type ThresholdChecker struct {
	// Threshold is the remaining count at or below which requests wait.
	Threshold int

	// MaxWait caps a single wait. Zero means no cap.
	MaxWait time.Duration
}

// CheckRateLimit returns the time until reset when the record is at or
// below the threshold and still current.
func (c ThresholdChecker) CheckRateLimit(_ Bucket, rec Record, now time.Time) time.Duration {
	if rec.IsUnknown() || rec.IsExpired(now) || rec.Remaining > c.Threshold {
		return 0
	}
	wait := rec.TimeUntilReset(now)
	if c.MaxWait > 0 && wait > c.MaxWait {
		wait = c.MaxWait
	}
	return wait
}
