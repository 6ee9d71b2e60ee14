package cache

import (
	"testing"
	"time"
)

func TestPolicy_EffectiveTTL(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		override time.Duration
		want     time.Duration
	}{
		{
			name:     "override used",
			policy:   Policy{DefaultTTL: 5 * time.Minute, MaxTTL: 10 * time.Minute},
			override: 3 * time.Minute,
			want:     3 * time.Minute,
		},
		{
			name:     "zero falls back to default",
			policy:   Policy{DefaultTTL: 5 * time.Minute},
			override: 0,
			want:     5 * time.Minute,
		},
		{
			name:     "negative falls back to default",
			policy:   Policy{DefaultTTL: 5 * time.Minute},
			override: -time.Second,
			want:     5 * time.Minute,
		},
		{
			name:     "clamped to max",
			policy:   Policy{MaxTTL: 10 * time.Minute},
			override: 15 * time.Minute,
			want:     10 * time.Minute,
		},
		{
			name:     "no max means no clamp",
			policy:   Policy{},
			override: 48 * time.Hour,
			want:     48 * time.Hour,
		},
		{
			name:     "zero default stays zero",
			policy:   Policy{},
			override: 0,
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.EffectiveTTL(tt.override); got != tt.want {
				t.Errorf("EffectiveTTL(%v) = %v, want %v", tt.override, got, tt.want)
			}
		})
	}
}

func TestPolicy_DefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	if p.MaxTTL != 0 {
		t.Errorf("MaxTTL = %v, want 0 (revocation markers must not be clamped)", p.MaxTTL)
	}
	if p.MaxEntries <= 0 {
		t.Errorf("MaxEntries = %d, want > 0", p.MaxEntries)
	}
	if p.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v, want 1m", p.SweepInterval)
	}
}
