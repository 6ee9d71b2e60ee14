package health

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"sync/atomic"

	"github.com/jonwraymond/gatekeep/cache"
	"github.com/jonwraymond/gatekeep/resilience"
)

// DefaultCacheWarning is the fill ratio above which a bounded cache is
// reported degraded.
const DefaultCacheWarning = 0.9

// CacheStats is the view of a cache that CacheChecker needs.
// *cache.MemoryCache implements it.
type CacheStats interface {
	Len() int
	Capacity() int
	Closed() bool
}

var _ CacheStats = (*cache.MemoryCache)(nil)

// CacheChecker reports the ephemeral cache unhealthy once closed and
// degraded when nearly full, since a full cache fails rate limit and
// revocation writes.
type CacheChecker struct {
	cache   CacheStats
	warning float64
}

// NewCacheChecker creates a checker over c.
func NewCacheChecker(c CacheStats) *CacheChecker {
	return &CacheChecker{cache: c, warning: DefaultCacheWarning}
}

// Name returns "cache".
func (c *CacheChecker) Name() string { return "cache" }

// Check inspects the cache fill level.
func (c *CacheChecker) Check(context.Context) Result {
	if c.cache.Closed() {
		return Unhealthy("cache closed", cache.ErrUnavailable)
	}

	n, capacity := c.cache.Len(), c.cache.Capacity()
	details := map[string]any{"entries": n, "capacity": capacity}
	if capacity <= 0 {
		return Healthy("cache unbounded").WithDetails(details)
	}

	ratio := float64(n) / float64(capacity)
	details["fill_ratio"] = ratio
	if ratio > c.warning {
		return Degraded(fmt.Sprintf("cache %.0f%% full", ratio*100)).WithDetails(details)
	}
	return Healthy("cache ok").WithDetails(details)
}

// BulkheadChecker reports password hashing degraded while every slot is
// busy and callers are being rejected.
type BulkheadChecker struct {
	bulkhead *resilience.Bulkhead
	last     atomic.Int64
}

// NewBulkheadChecker creates a checker over b.
func NewBulkheadChecker(b *resilience.Bulkhead) *BulkheadChecker {
	c := &BulkheadChecker{bulkhead: b}
	c.last.Store(b.Stats().Rejected)
	return c
}

// Name returns "hashing".
func (c *BulkheadChecker) Name() string { return "hashing" }

// Check compares rejections since the previous check.
func (c *BulkheadChecker) Check(context.Context) Result {
	st := c.bulkhead.Stats()
	details := map[string]any{
		"active":         st.Active,
		"max_concurrent": st.MaxConcurrent,
		"peak":           st.MaxActive,
		"rejected":       st.Rejected,
	}

	prev := c.last.Swap(st.Rejected)
	if st.Available == 0 && st.Rejected > prev {
		return Degraded("hashing saturated").WithDetails(details)
	}
	return Healthy("hashing ok").WithDetails(details)
}

// MemoryChecker reports heap usage against the runtime memory limit
// (GOMEMLIMIT). Without a limit it is always healthy.
type MemoryChecker struct {
	warning float64
	limit   func() int64
}

// NewMemoryChecker creates a checker that degrades above warning (a ratio
// in (0,1), default 0.8) of the memory limit.
func NewMemoryChecker(warning float64) *MemoryChecker {
	if warning <= 0 || warning >= 1 {
		warning = 0.8
	}
	return &MemoryChecker{
		warning: warning,
		limit:   func() int64 { return debug.SetMemoryLimit(-1) },
	}
}

// Name returns "memory".
func (m *MemoryChecker) Name() string { return "memory" }

// Check reads runtime memory statistics.
func (m *MemoryChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context done", err)
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	details := map[string]any{
		"heap_alloc": stats.HeapAlloc,
		"sys":        stats.Sys,
		"num_gc":     stats.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}

	limit := m.limit()
	if limit <= 0 || limit == math.MaxInt64 {
		return Healthy("no memory limit").WithDetails(details)
	}

	ratio := float64(stats.Sys) / float64(limit)
	details["limit"] = limit
	details["usage_ratio"] = ratio
	if ratio >= m.warning {
		return Degraded(fmt.Sprintf("memory at %.0f%% of limit", ratio*100)).WithDetails(details)
	}
	return Healthy("memory ok").WithDetails(details)
}
