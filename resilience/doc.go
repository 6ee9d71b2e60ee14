// Package resilience provides abuse-control and load-shedding primitives.
//
// # Rate limiting
//
// FixedWindowLimiter admits at most MaxRequests per client identity per
// window. Counters live in a cache.Counter, so every concurrent request for a
// client increments the same counter atomically. The first request from a
// client opens a window of length Window; when the window's counter entry
// expires the next request opens a fresh one.
//
// Fixed windows are coarse: a client can send MaxRequests at the end of one
// window and MaxRequests again at the start of the next, so up to twice the
// ceiling may pass within one window's length around a boundary.
//
//	rl, _ := resilience.NewRateLimiter(resilience.RateLimiterConfig{
//	    MaxRequests: 100,
//	    Window:      time.Minute,
//	}, store)
//
//	d, err := rl.Check(ctx, "ip:203.0.113.7")
//	if !d.Allowed {
//	    return d.Err("ip:203.0.113.7")
//	}
//
// When the counter store fails, the limiter fails closed unless FailOpen is
// set; either way the store error is returned wrapped in
// ErrLimiterUnavailable.
//
// # Bulkhead
//
// Bulkhead bounds concurrent CPU-heavy operations (password hashing) to the
// number of available processors, queueing the rest.
package resilience
