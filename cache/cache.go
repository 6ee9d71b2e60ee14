package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrNilCache   = errors.New("cache: cache is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")

	// ErrUnavailable reports resource exhaustion or a closed cache. Callers
	// decide whether it means allow (fail open) or deny (fail closed).
	ErrUnavailable = errors.New("cache: unavailable")
)

// Cache stores byte values with a per-entry expiry.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Expiry: Get must never return an entry whose expiry has passed.
// - Errors: Get returns (nil, false, nil) on miss; errors are reserved for
//   ErrUnavailable and key validation failures.
type Cache interface {
	// Get retrieves a live value. Returns (nil, false, nil) on miss or expiry.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL, overwriting any existing entry.
	// TTL <= 0 leaves the key absent.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value regardless of expiry. Idempotent.
	Delete(ctx context.Context, key string) error
}

// Counter is the atomic increment primitive the rate limiter relies on.
//
// Contract:
// - Atomicity: concurrent Increment calls for the same key behave as if
//   serialized; no update is lost.
// - Expiry: an absent or expired key restarts at 1 with expiry now+ttlIfAbsent;
//   a live key keeps its existing expiry.
type Counter interface {
	// Increment bumps the counter stored at key and returns the new count and
	// the entry's expiry.
	Increment(ctx context.Context, key string, ttlIfAbsent time.Duration) (int64, time.Time, error)
}

// Store is a Cache that also provides counters.
type Store interface {
	Cache
	Counter
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
