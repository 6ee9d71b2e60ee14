package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrRateLimitExceeded is returned when a client is over its ceiling.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrLimiterUnavailable is returned when the counter store fails.
	ErrLimiterUnavailable = errors.New("resilience: rate limiter unavailable")

	// ErrInvalidClientID is returned for an empty client identity.
	ErrInvalidClientID = errors.New("resilience: empty client id")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")
)

// RateLimitError reports a denied request and when to retry.
type RateLimitError struct {
	ClientID   string
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("resilience: rate limit exceeded for %q (limit %d, retry after %s)",
		e.ClientID, e.Limit, e.RetryAfter)
}

// Is reports whether target is ErrRateLimitExceeded.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}
