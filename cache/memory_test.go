package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestCache(t *testing.T, policy Policy) (*MemoryCache, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	c := NewMemoryCache(policy, WithClock(clock.Now))
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestMemoryCache_GetSetDelete(t *testing.T) {
	cache, _ := newTestCache(t, Policy{})
	ctx := context.Background()

	// Test Get on empty cache
	val, ok, err := cache.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok || val != nil {
		t.Error("Get on empty cache should return (nil, false)")
	}

	key := "test-key"
	value := []byte("test-value")
	if err := cache.Set(ctx, key, value, 5*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := cache.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get after Set = (%v, %v), want hit", ok, err)
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Get returned %q, want %q", got, value)
	}

	if err := cache.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, ok, _ := cache.Get(ctx, key); ok {
		t.Error("Get after Delete should return ok=false")
	}

	// Delete is idempotent
	if err := cache.Delete(ctx, "nonexistent"); err != nil {
		t.Errorf("Delete on non-existent key should not error, got: %v", err)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	cache, clock := newTestCache(t, Policy{})
	ctx := context.Background()

	if err := cache.Set(ctx, "expiring-key", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	clock.Advance(59 * time.Second)
	if _, ok, _ := cache.Get(ctx, "expiring-key"); !ok {
		t.Error("Get before expiry should hit")
	}

	// Exactly at the expiry instant the entry no longer exists.
	clock.Advance(time.Second)
	if _, ok, _ := cache.Get(ctx, "expiring-key"); ok {
		t.Error("Get at expiry should miss")
	}

	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after lazy eviction", cache.Len())
	}
}

func TestMemoryCache_ZeroTTL(t *testing.T) {
	cache, _ := newTestCache(t, Policy{})
	ctx := context.Background()

	if err := cache.Set(ctx, "zero-ttl", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "zero-ttl"); ok {
		t.Error("Get with TTL=0 should return ok=false immediately")
	}

	// TTL=0 also removes a previous value.
	_ = cache.Set(ctx, "k", []byte("old"), time.Hour)
	_ = cache.Set(ctx, "k", []byte("new"), 0)
	if _, ok, _ := cache.Get(ctx, "k"); ok {
		t.Error("Set with TTL=0 should leave the key absent")
	}
}

func TestMemoryCache_SetOverwrite(t *testing.T) {
	cache, clock := newTestCache(t, Policy{})
	ctx := context.Background()

	_ = cache.Set(ctx, "k", []byte("first"), time.Second)
	_ = cache.Set(ctx, "k", []byte("second"), time.Hour)

	clock.Advance(2 * time.Second)
	got, ok, _ := cache.Get(ctx, "k")
	if !ok {
		t.Fatal("overwritten entry should carry the new expiry")
	}
	if string(got) != "second" {
		t.Errorf("Get = %q, want %q", got, "second")
	}
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	cache, _ := newTestCache(t, Policy{})
	ctx := context.Background()

	value := []byte("abc")
	_ = cache.Set(ctx, "k", value, time.Hour)
	value[0] = 'X'

	got, _, _ := cache.Get(ctx, "k")
	got[1] = 'Y'

	again, _, _ := cache.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated through aliasing: %q", again)
	}
}

func TestMemoryCache_InvalidKey(t *testing.T) {
	cache, _ := newTestCache(t, Policy{})
	ctx := context.Background()

	if err := cache.Set(ctx, "", []byte("v"), time.Minute); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Set(\"\") error = %v, want ErrInvalidKey", err)
	}
	if _, _, err := cache.Increment(ctx, "a\nb", time.Minute); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Increment(newline) error = %v, want ErrInvalidKey", err)
	}
}

func TestMemoryCache_Increment(t *testing.T) {
	cache, clock := newTestCache(t, Policy{})
	ctx := context.Background()
	start := clock.Now()

	n, exp, err := cache.Increment(ctx, "rl:A", time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if n != 1 {
		t.Errorf("first Increment = %d, want 1", n)
	}
	if !exp.Equal(start.Add(time.Minute)) {
		t.Errorf("expiry = %v, want %v", exp, start.Add(time.Minute))
	}

	// Later increments keep the original expiry, even with a different TTL.
	clock.Advance(30 * time.Second)
	n, exp2, _ := cache.Increment(ctx, "rl:A", time.Hour)
	if n != 2 {
		t.Errorf("second Increment = %d, want 2", n)
	}
	if !exp2.Equal(exp) {
		t.Errorf("expiry changed from %v to %v", exp, exp2)
	}

	// After expiry the counter restarts.
	clock.Advance(30 * time.Second)
	n, exp3, _ := cache.Increment(ctx, "rl:A", time.Minute)
	if n != 1 {
		t.Errorf("Increment after expiry = %d, want 1", n)
	}
	if !exp3.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("expiry after restart = %v, want %v", exp3, clock.Now().Add(time.Minute))
	}
}

func TestMemoryCache_IncrementOverValue(t *testing.T) {
	cache, _ := newTestCache(t, Policy{})
	ctx := context.Background()

	// A live byte value counts as count 0; Increment takes it over.
	_ = cache.Set(ctx, "k", []byte("v"), time.Minute)
	n, _, err := cache.Increment(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Increment = %d, want 1", n)
	}
}

func TestMemoryCache_IncrementConcurrent_NoLostUpdates(t *testing.T) {
	cache := NewMemoryCache(Policy{})
	defer cache.Close()
	ctx := context.Background()

	const numGoroutines = 100
	const perGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				if _, _, err := cache.Increment(ctx, "fresh-key", time.Hour); err != nil {
					t.Errorf("Increment failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	n, _, err := cache.Increment(ctx, "fresh-key", time.Hour)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if want := int64(numGoroutines*perGoroutine + 1); n != want {
		t.Errorf("final count = %d, want %d", n, want)
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache(DefaultPolicy())
	defer cache.Close()
	ctx := context.Background()

	const numGoroutines = 50
	const opsPerGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", id%5)
			for j := 0; j < opsPerGoroutine; j++ {
				switch j % 4 {
				case 0:
					_ = cache.Set(ctx, key, []byte("v"), time.Minute)
				case 1:
					_, _, _ = cache.Get(ctx, key)
				case 2:
					_, _, _ = cache.Increment(ctx, "counter-"+key, time.Minute)
				case 3:
					_ = cache.Delete(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestMemoryCache_MaxEntries(t *testing.T) {
	cache, clock := newTestCache(t, Policy{MaxEntries: 2})
	ctx := context.Background()

	_ = cache.Set(ctx, "a", []byte("1"), time.Minute)
	_ = cache.Set(ctx, "b", []byte("2"), time.Hour)

	if err := cache.Set(ctx, "c", []byte("3"), time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Set into full cache error = %v, want ErrUnavailable", err)
	}
	if _, _, err := cache.Increment(ctx, "rl:c", time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Increment into full cache error = %v, want ErrUnavailable", err)
	}

	// Overwriting an existing key is always allowed.
	if err := cache.Set(ctx, "a", []byte("1b"), time.Minute); err != nil {
		t.Fatalf("overwrite in full cache failed: %v", err)
	}

	// Once "a" expires its slot is reclaimed on demand.
	clock.Advance(2 * time.Minute)
	if err := cache.Set(ctx, "c", []byte("3"), time.Minute); err != nil {
		t.Fatalf("Set after expiry freed a slot failed: %v", err)
	}
}

func TestMemoryCache_Sweep(t *testing.T) {
	cache, clock := newTestCache(t, Policy{})
	ctx := context.Background()

	_ = cache.Set(ctx, "short", []byte("v"), time.Second)
	_, _, _ = cache.Increment(ctx, "counter", time.Second)
	_ = cache.Set(ctx, "long", []byte("v"), time.Hour)

	clock.Advance(time.Minute)
	if removed := cache.Sweep(); removed != 2 {
		t.Errorf("Sweep() removed %d, want 2", removed)
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
}

func TestMemoryCache_BackgroundSweeper(t *testing.T) {
	cache := NewMemoryCache(Policy{SweepInterval: 10 * time.Millisecond})
	defer cache.Close()
	ctx := context.Background()

	_ = cache.Set(ctx, "k", []byte("v"), 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for cache.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not reclaim the expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemoryCache_Close(t *testing.T) {
	cache := NewMemoryCache(DefaultPolicy())
	ctx := context.Background()

	_ = cache.Set(ctx, "k", []byte("v"), time.Minute)
	if err := cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if !cache.Closed() {
		t.Error("Closed() = false after Close")
	}

	if _, _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get after Close error = %v, want ErrUnavailable", err)
	}
	if err := cache.Set(ctx, "k", nil, time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Set after Close error = %v, want ErrUnavailable", err)
	}
	if _, _, err := cache.Increment(ctx, "k", time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Increment after Close error = %v, want ErrUnavailable", err)
	}
	if err := cache.Delete(ctx, "k"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Delete after Close error = %v, want ErrUnavailable", err)
	}
}
