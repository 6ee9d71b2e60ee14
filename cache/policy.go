package cache

import "time"

// Policy configures cache capacity, TTL clamping and expiry sweeping.
type Policy struct {
	// DefaultTTL is used when Set or Increment is called with a non-positive
	// TTL through EffectiveTTL. Zero leaves such keys absent.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Longer TTLs are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration

	// MaxEntries bounds the number of stored entries. Inserting a new key
	// into a full cache fails with ErrUnavailable. Zero means unbounded.
	MaxEntries int

	// SweepInterval is how often expired entries are reclaimed in the
	// background. Zero or negative disables the sweeper (lazy expiry only).
	SweepInterval time.Duration
}

// DefaultPolicy returns the default cache policy.
// DefaultTTL: 0, MaxTTL: none, MaxEntries: 100000, SweepInterval: 1 minute
//
// MaxTTL stays unset so revocation markers always live as long as the token
// they revoke.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL:    0,
		MaxTTL:        0,
		MaxEntries:    100_000,
		SweepInterval: time.Minute,
	}
}

// EffectiveTTL returns the TTL to use, applying defaults and clamping.
func (p Policy) EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}

	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}

	return ttl
}
