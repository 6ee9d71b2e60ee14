// Package health reports whether gatekeep's components can serve traffic.
//
// A Checker reports one component's Status. An Aggregator runs its
// registered checkers concurrently under a deadline and combines them:
// any unhealthy check makes the whole unhealthy, any degraded check makes
// it degraded.
//
// Checkers are provided for the ephemeral cache (CacheChecker), the
// password hashing bulkhead (BulkheadChecker) and process memory
// (MemoryChecker).
//
//	agg := health.NewAggregator(health.AggregatorConfig{Timeout: 2 * time.Second})
//	agg.Register("cache", health.NewCacheChecker(store))
//	agg.Register("hashing", health.NewBulkheadChecker(bulkhead))
//	health.RegisterHandlers(mux, agg)
//
// /healthz answers liveness without running checks; /readyz runs every
// check and answers 503 when the aggregate is unhealthy.
package health
