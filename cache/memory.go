package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-memory Store.
//
// A single mutex guards all entries, so Increment is a true
// read-modify-write with no interleaving between callers.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	policy  Policy
	now     func() time.Time
	closed  bool

	stop chan struct{}
	done chan struct{}
}

type cacheEntry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock replaces time.Now as the cache's clock.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemoryCache creates a new in-memory cache with the given policy.
// When policy.SweepInterval is positive a background sweeper is started;
// call Close to stop it.
func NewMemoryCache(policy Policy, opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*cacheEntry),
		policy:  policy,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if policy.SweepInterval > 0 {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.sweepLoop(policy.SweepInterval)
	}

	return c
}

// Get retrieves a value from the cache. Returns (nil, false, nil) on miss or expiry.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, ErrUnavailable
	}

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}

	if entry.expired(c.now()) {
		delete(c.entries, key)
		return nil, false, nil
	}

	// Counters have no byte value; callers only care that they exist.
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set stores a value with the given TTL. TTL <= 0 (after policy defaults)
// removes the key instead.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	ttl = c.policy.EffectiveTTL(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrUnavailable
	}

	if ttl <= 0 {
		delete(c.entries, key)
		return nil
	}

	now := c.now()
	if err := c.reserveLocked(key, now); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries[key] = &cacheEntry{
		value:     stored,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Increment bumps the counter at key. An absent or expired key restarts at 1
// with expiry now+ttlIfAbsent; a live key keeps its expiry.
func (c *MemoryCache) Increment(_ context.Context, key string, ttlIfAbsent time.Duration) (int64, time.Time, error) {
	if err := ValidateKey(key); err != nil {
		return 0, time.Time{}, err
	}
	ttl := c.policy.EffectiveTTL(ttlIfAbsent)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, time.Time{}, ErrUnavailable
	}

	now := c.now()
	entry, ok := c.entries[key]
	if ok && !entry.expired(now) {
		entry.count++
		return entry.count, entry.expiresAt, nil
	}

	if ttl <= 0 {
		// Nothing can be stored; the caller still observes a fresh window.
		delete(c.entries, key)
		return 1, now, nil
	}

	if err := c.reserveLocked(key, now); err != nil {
		return 0, time.Time{}, err
	}

	entry = &cacheEntry{count: 1, expiresAt: now.Add(ttl)}
	c.entries[key] = entry
	return entry.count, entry.expiresAt, nil
}

// Delete removes a value from the cache. Idempotent - no error on miss.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrUnavailable
	}
	delete(c.entries, key)
	return nil
}

// Len returns the number of stored entries, including expired entries not
// yet reclaimed.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the policy's MaxEntries (zero means unbounded).
func (c *MemoryCache) Capacity() int {
	return c.policy.MaxEntries
}

// Sweep reclaims every expired entry and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

// Closed reports whether Close has been called.
func (c *MemoryCache) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops the sweeper and drops all entries. Subsequent operations
// return ErrUnavailable. Close is idempotent.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()

	if c.stop != nil {
		close(c.stop)
		<-c.done
	}
	return nil
}

// reserveLocked makes room for key when the cache is bounded.
func (c *MemoryCache) reserveLocked(key string, now time.Time) error {
	if c.policy.MaxEntries <= 0 {
		return nil
	}
	if _, exists := c.entries[key]; exists {
		return nil
	}
	if len(c.entries) < c.policy.MaxEntries {
		return nil
	}
	c.sweepLocked(now)
	if len(c.entries) >= c.policy.MaxEntries {
		return ErrUnavailable
	}
	return nil
}

func (c *MemoryCache) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) sweepLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Ensure MemoryCache implements Store
var _ Store = (*MemoryCache)(nil)
