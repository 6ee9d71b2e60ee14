// Package cache provides the ephemeral key/value store shared by concurrent
// requests: revocation markers and rate-limit counters live here.
//
// Entries carry an absolute expiry. An entry is logically absent once its
// expiry has passed, whether or not it has been physically evicted yet.
// MemoryCache reclaims expired entries lazily on access and periodically
// through a background sweeper.
package cache
