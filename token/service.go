package token

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jonwraymond/gatekeep/cache"
	"github.com/jonwraymond/gatekeep/observe"
)

// MinSecretLength is the shortest signing secret NewService accepts.
const MinSecretLength = 32

// RevocationPrefix namespaces revocation markers in the cache.
const RevocationPrefix = "revoked:"

// A token is still valid at exactly its exp instant and expired after it.
// The parser treats exp as exclusive, so it is given the smallest leeway.
const expiryLeeway = time.Nanosecond

// revocationGrace keeps a marker alive past the token's exp instant, when
// the token itself still verifies.
const revocationGrace = time.Second

// Config configures the token service. It is copied at construction and
// never mutated afterwards.
type Config struct {
	// Secret is the HMAC-SHA256 signing key. At least MinSecretLength bytes.
	Secret []byte

	// Lifetime is how long issued tokens remain valid.
	// Default: 15 minutes
	Lifetime time.Duration

	// Issuer is written to and, when set, required in the iss claim.
	Issuer string

	// RevocationFailOpen accepts tokens (with a logged warning) when the
	// revocation store cannot be consulted. Default false: fail closed.
	RevocationFailOpen bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now as the service's clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for revocation warnings.
func WithLogger(l observe.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator replaces the token id generator (UUIDv4 by default).
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Service issues, verifies and revokes tokens.
//
// Contract:
// - Concurrency: safe for concurrent use; the secret is read-only until Close.
// - Errors: Verify failures wrap ErrUnauthorized and never reveal their
//   kind to clients; use Kind for logging.
type Service struct {
	secret   []byte
	lifetime time.Duration
	issuer   string
	failOpen bool

	revocations cache.Cache
	now         func() time.Time
	newID       func() string
	logger      observe.Logger
	parser      *jwt.Parser

	mu     sync.RWMutex
	closed bool
}

// NewService creates a token service. revocations stores revocation markers.
func NewService(cfg Config, revocations cache.Cache, opts ...Option) (*Service, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", ErrInvalidConfig, MinSecretLength)
	}
	if cfg.Lifetime < 0 {
		return nil, fmt.Errorf("%w: lifetime must be positive", ErrInvalidConfig)
	}
	if cfg.Lifetime == 0 {
		cfg.Lifetime = 15 * time.Minute
	}
	if revocations == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, cache.ErrNilCache)
	}

	s := &Service{
		secret:      append([]byte(nil), cfg.Secret...),
		lifetime:    cfg.Lifetime,
		issuer:      cfg.Issuer,
		failOpen:    cfg.RevocationFailOpen,
		revocations: revocations,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(expiryLeeway),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.issuer))
	}
	s.parser = jwt.NewParser(parserOpts...)

	return s, nil
}

// Lifetime returns the configured token lifetime.
func (s *Service) Lifetime() time.Duration {
	return s.lifetime
}

// Issue mints a token for subject with the given role.
func (s *Service) Issue(subject string, role Role) (string, error) {
	tok, _, err := s.IssueWithClaims(subject, role)
	return tok, err
}

// IssueWithClaims mints a token and also returns the claims it carries.
// Timestamps are truncated to whole seconds, as encoded on the wire.
func (s *Service) IssueWithClaims(subject string, role Role) (string, *Claims, error) {
	if subject == "" {
		return "", nil, fmt.Errorf("%w: empty subject", ErrInvalidClaims)
	}
	if !role.Valid() {
		return "", nil, fmt.Errorf("%w: unknown role %q", ErrInvalidClaims, string(role))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", nil, ErrClosed
	}

	now := s.now()
	wc := &wireClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			ID:        s.newID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wc).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("token: sign: %w", err)
	}
	return signed, wc.toClaims(), nil
}

// Verify checks raw and returns its claims.
//
// Order of checks: structure, signature over header.payload as received
// (constant-time), claims decoding, expiry (now > exp), revocation. Failures
// wrap one of ErrMalformed, ErrBadSignature, ErrExpired or ErrRevoked. A
// revocation store failure returns ErrRevocationUnavailable unless the
// service fails open.
func (s *Service) Verify(ctx context.Context, raw string) (*Claims, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, ErrMalformed
	}

	// Strict decoding rejects non-canonical trailing bits, so every
	// single-character change to the signature segment is detected.
	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return nil, ErrBadSignature
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, s.secret); err != nil {
		return nil, ErrBadSignature
	}

	var wc wireClaims
	if _, err := s.parser.ParseWithClaims(raw, &wc, s.keyFunc); err != nil {
		return nil, classify(err)
	}
	if wc.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	if !wc.Role.Valid() {
		return nil, fmt.Errorf("%w: missing role", ErrMalformed)
	}

	claims := wc.toClaims()
	if claims.TokenID != "" {
		if err := s.checkRevocation(ctx, claims); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

// Revoke marks tokenID as revoked until just past expiresAt. Revoking an
// already expired token is a no-op: it fails verification as expired anyway.
func (s *Service) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return ErrMissingID
	}

	now := s.now()
	if now.After(expiresAt) {
		return nil
	}
	ttl := expiresAt.Sub(now) + revocationGrace

	if err := s.revocations.Set(ctx, cache.Key(RevocationPrefix, tokenID), []byte{1}, ttl); err != nil {
		return fmt.Errorf("%w: %w", ErrRevocationUnavailable, err)
	}
	return nil
}

// RevokeToken verifies raw and revokes it. Used for logout.
func (s *Service) RevokeToken(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenID == "" {
		return nil, ErrMissingID
	}
	if err := s.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return nil, err
	}
	return claims, nil
}

// Close zeroes the service's copy of the signing secret. Later calls to
// Issue and Verify return ErrClosed.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	clear(s.secret)
	s.closed = true
	return nil
}

func (s *Service) keyFunc(_ *jwt.Token) (any, error) {
	return s.secret, nil
}

func (s *Service) checkRevocation(ctx context.Context, claims *Claims) error {
	_, revoked, err := s.revocations.Get(ctx, cache.Key(RevocationPrefix, claims.TokenID))
	if err != nil {
		if s.failOpen {
			s.logger.Warn(ctx, "revocation check unavailable, accepting token",
				observe.Field{Key: "subject", Value: claims.Subject},
				observe.Field{Key: "token_id", Value: claims.TokenID},
				observe.Field{Key: "error", Value: err.Error()},
			)
			return nil
		}
		return fmt.Errorf("%w: %w", ErrRevocationUnavailable, err)
	}
	if revoked {
		return ErrRevoked
	}
	return nil
}

// classify maps parser errors onto the verification taxonomy. The signature
// has already been checked, so parser failures are about structure or time.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
