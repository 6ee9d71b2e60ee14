package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/gatekeep/auth"
	"github.com/jonwraymond/gatekeep/cache"
	"github.com/jonwraymond/gatekeep/observe"
	"github.com/jonwraymond/gatekeep/resilience"
	"github.com/jonwraymond/gatekeep/secret"
	"github.com/jonwraymond/gatekeep/token"
)

// ErrInvalid reports a configuration that fails validation.
var ErrInvalid = errors.New("config: invalid")

// Config is the daemon configuration.
type Config struct {
	Token     TokenConfig     `yaml:"token"`
	Password  PasswordConfig  `yaml:"password"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Observe   observe.Config  `yaml:"observe"`
	Listen    string          `yaml:"listen"`
}

// TokenConfig configures token issuance.
type TokenConfig struct {
	// Secret is the signing secret or a reference to it. Resolved by Load.
	Secret             string        `yaml:"secret"`
	Lifetime           time.Duration `yaml:"lifetime"`
	Issuer             string        `yaml:"issuer"`
	RevocationFailOpen bool          `yaml:"revocation_fail_open"`

	signingSecret []byte
}

// PasswordConfig configures password hashing.
type PasswordConfig struct {
	Cost          int `yaml:"cost"`
	MaxConcurrent int `yaml:"max_concurrent"` // 0 → GOMAXPROCS
}

// RateLimitConfig configures request limiting.
type RateLimitConfig struct {
	MaxRequests       int           `yaml:"max_requests"`
	Window            time.Duration `yaml:"window"`
	FailOpen          bool          `yaml:"fail_open"`
	TrustForwardedFor bool          `yaml:"trust_forwarded_for"`
}

// CacheConfig configures the in-memory store.
type CacheConfig struct {
	MaxEntries    int           `yaml:"max_entries"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Default returns the configuration used for fields a file leaves unset.
// It has no signing secret.
func Default() Config {
	policy := cache.DefaultPolicy()
	return Config{
		Token: TokenConfig{
			Lifetime: 15 * time.Minute,
			Issuer:   "gatekeep",
		},
		Password: PasswordConfig{
			Cost: bcrypt.DefaultCost + 2,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 100,
			Window:      60 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries:    policy.MaxEntries,
			SweepInterval: policy.SweepInterval,
		},
		Observe: observe.Config{
			ServiceName: "gatekeep",
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
			Metrics:     observe.MetricsConfig{Exporter: "none"},
			Tracing:     observe.TracingConfig{Exporter: "none"},
		},
		Listen: ":8080",
	}
}

// Parse decodes YAML over Default. Unknown keys are rejected and ${VAR}
// references are expanded. Secret references are left for Resolve.
func Parse(data []byte) (Config, error) {
	expanded, err := secret.ExpandEnvStrict(string(data))
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// Load reads, parses, resolves and validates the file at path.
func Load(ctx context.Context, path string, resolver *secret.Resolver) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Resolve(ctx, resolver); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		cfg.Wipe()
		return Config{}, err
	}
	return cfg, nil
}

// Resolve resolves the signing secret reference.
func (c *Config) Resolve(ctx context.Context, resolver *secret.Resolver) error {
	if c.Token.Secret == "" {
		return nil
	}
	b, err := resolver.ResolveBytes(ctx, c.Token.Secret)
	if err != nil {
		return fmt.Errorf("config: token.secret: %w", err)
	}
	secret.Wipe(c.Token.signingSecret)
	c.Token.signingSecret = b
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Token.signingSecret) < token.MinSecretLength {
		errs = append(errs, fmt.Errorf("token.secret must resolve to at least %d bytes", token.MinSecretLength))
	}
	if c.Token.Lifetime <= 0 {
		errs = append(errs, errors.New("token.lifetime must be positive"))
	}
	if c.Password.Cost != 0 && (c.Password.Cost < bcrypt.MinCost || c.Password.Cost > bcrypt.MaxCost) {
		errs = append(errs, fmt.Errorf("password.cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Password.MaxConcurrent < 0 {
		errs = append(errs, errors.New("password.max_concurrent must not be negative"))
	}
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, errors.New("rate_limit.max_requests must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, errors.New("cache.max_entries must not be negative"))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen must be set"))
	}
	if err := c.Observe.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observe: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// SigningSecret returns the resolved signing secret. The slice is shared;
// callers must copy it.
func (c *Config) SigningSecret() []byte {
	return c.Token.signingSecret
}

// Wipe zeroes the resolved signing secret.
func (c *Config) Wipe() {
	secret.Wipe(c.Token.signingSecret)
	c.Token.signingSecret = nil
}

// TokenServiceConfig returns the token service configuration.
func (c *Config) TokenServiceConfig() token.Config {
	return token.Config{
		Secret:             c.Token.signingSecret,
		Lifetime:           c.Token.Lifetime,
		Issuer:             c.Token.Issuer,
		RevocationFailOpen: c.Token.RevocationFailOpen,
	}
}

// RateLimiterConfig returns the limiter configuration.
func (c *Config) RateLimiterConfig() resilience.RateLimiterConfig {
	return resilience.RateLimiterConfig{
		MaxRequests: c.RateLimit.MaxRequests,
		Window:      c.RateLimit.Window,
		FailOpen:    c.RateLimit.FailOpen,
	}
}

// BulkheadConfig returns the password hashing concurrency bound.
func (c *Config) BulkheadConfig() resilience.BulkheadConfig {
	return resilience.BulkheadConfig{MaxConcurrent: c.Password.MaxConcurrent}
}

// CachePolicy returns the cache policy. MaxTTL is never set so revocation
// markers outlive the tokens they revoke.
func (c *Config) CachePolicy() cache.Policy {
	return cache.Policy{
		MaxEntries:    c.Cache.MaxEntries,
		SweepInterval: c.Cache.SweepInterval,
	}
}

// ServiceConfig returns the auth service configuration.
func (c *Config) ServiceConfig() auth.ServiceConfig {
	return auth.ServiceConfig{TrustForwardedFor: c.RateLimit.TrustForwardedFor}
}
