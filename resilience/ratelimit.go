package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/gatekeep/cache"
)

// RateLimiterConfig configures the fixed-window rate limiter.
type RateLimiterConfig struct {
	// MaxRequests is the number of requests allowed per window.
	// Default: 100
	MaxRequests int

	// Window is the length of each counting window.
	// Default: 60 seconds
	Window time.Duration

	// KeyPrefix namespaces counters in the shared store.
	// Default: "rl:"
	KeyPrefix string

	// FailOpen admits requests when the counter store fails.
	// Default: false (deny)
	FailOpen bool
}

// Decision is the outcome of one Check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // zero when allowed
	ResetAt    time.Time     // end of the current window
}

// Err returns a *RateLimitError for a denied decision and nil otherwise.
func (d Decision) Err(clientID string) error {
	if d.Allowed {
		return nil
	}
	return &RateLimitError{ClientID: clientID, Limit: d.Limit, RetryAfter: d.RetryAfter}
}

// FixedWindowLimiter admits at most MaxRequests per client per window.
//
// A window starts with the first request from a client and lasts Window.
// Counting uses an atomic Increment on the store, so concurrent requests
// for one client never lose updates.
type FixedWindowLimiter struct {
	config  RateLimiterConfig
	counter cache.Counter
	now     func() time.Time
}

// LimiterOption configures a FixedWindowLimiter.
type LimiterOption func(*FixedWindowLimiter)

// WithLimiterClock replaces time.Now as the limiter's clock. It should
// match the clock of the underlying store.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *FixedWindowLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewRateLimiter creates a fixed-window limiter over counter.
func NewRateLimiter(config RateLimiterConfig, counter cache.Counter, opts ...LimiterOption) (*FixedWindowLimiter, error) {
	if counter == nil {
		return nil, cache.ErrNilCache
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 100
	}
	if config.Window <= 0 {
		config.Window = 60 * time.Second
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rl:"
	}

	l := &FixedWindowLimiter{
		config:  config,
		counter: counter,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the effective configuration.
func (l *FixedWindowLimiter) Config() RateLimiterConfig {
	return l.config
}

// Check counts one request for clientID and decides whether it is admitted.
//
// When the store fails, Check returns an error wrapping ErrLimiterUnavailable
// together with a denied decision, or an allowed one if FailOpen is set.
func (l *FixedWindowLimiter) Check(ctx context.Context, clientID string) (Decision, error) {
	if clientID == "" {
		return Decision{Limit: l.config.MaxRequests, RetryAfter: l.config.Window}, ErrInvalidClientID
	}

	count, resetAt, err := l.counter.Increment(ctx, cache.Key(l.config.KeyPrefix, clientID), l.config.Window)
	if err != nil {
		d := Decision{Limit: l.config.MaxRequests}
		if l.config.FailOpen {
			d.Allowed = true
			d.Remaining = l.config.MaxRequests
		} else {
			d.RetryAfter = l.config.Window
		}
		return d, fmt.Errorf("%w: %w", ErrLimiterUnavailable, err)
	}

	d := Decision{
		Limit:   l.config.MaxRequests,
		ResetAt: resetAt,
	}
	if count <= int64(l.config.MaxRequests) {
		d.Allowed = true
		d.Remaining = l.config.MaxRequests - int(count)
		return d, nil
	}

	retry := resetAt.Sub(l.now())
	switch {
	case retry < 0:
		retry = 0
	case retry > l.config.Window:
		retry = l.config.Window
	}
	d.RetryAfter = retry
	return d, nil
}

// Allow reports whether a request from clientID is admitted, returning a
// *RateLimitError when it is not.
//
// A store failure is always returned as ErrLimiterUnavailable, including
// when FailOpen admits the request. Callers that act on the fail-open
// admission use Check, whose Decision carries it.
func (l *FixedWindowLimiter) Allow(ctx context.Context, clientID string) error {
	d, err := l.Check(ctx, clientID)
	if err != nil {
		return err
	}
	return d.Err(clientID)
}
