package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jonwraymond/gatekeep/observe"
	"github.com/jonwraymond/gatekeep/password"
	"github.com/jonwraymond/gatekeep/resilience"
	"github.com/jonwraymond/gatekeep/token"
)

// Limiter key prefixes. Each identity kind gets its own counter.
const (
	KeyPrefixAddress  = "ip:"
	KeyPrefixSubject  = "user:"
	KeyPrefixLogin    = "login:"
	KeyPrefixPassword = "passwd:"
	KeyPrefixExtra    = "key:"
)

// dummyPassword is hashed once and compared against when a login names an
// unknown user, so that both paths pay for one bcrypt comparison.
const dummyPassword = "gatekeep-timing-equalizer"

// Tokens issues, verifies and revokes bearer tokens. *token.Service
// implements it.
type Tokens interface {
	IssueWithClaims(subject string, role token.Role) (string, *token.Claims, error)
	Verify(ctx context.Context, raw string) (*token.Claims, error)
	RevokeToken(ctx context.Context, raw string) (*token.Claims, error)
}

// Limiter decides whether one more request from a client is admitted.
// *resilience.FixedWindowLimiter implements it.
type Limiter interface {
	Check(ctx context.Context, clientID string) (resilience.Decision, error)
}

// KeyFunc returns additional limiter keys for a request, such as a tenant
// or device fingerprint. Each returned key is checked after the address key
// under KeyPrefixExtra, so it never shares a counter with built-in keys.
// Empty keys are skipped.
type KeyFunc func(req *AuthRequest) []string

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// TrustForwardedFor keys address limits on the first X-Forwarded-For
	// hop instead of the network peer.
	TrustForwardedFor bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver instruments every decision with obs's tracer, meter and
// logger.
func WithObserver(obs observe.Observer) Option {
	return func(s *Service) {
		s.observer = obs
	}
}

// WithHashingBulkhead bounds concurrent password comparisons.
func WithHashingBulkhead(b *resilience.Bulkhead) Option {
	return func(s *Service) {
		if b != nil {
			s.hashing = b
		}
	}
}

// WithKeyFunc adds limiter keys beyond the client address.
func WithKeyFunc(fn KeyFunc) Option {
	return func(s *Service) {
		s.extraKeys = fn
	}
}

// WithUserIDGenerator replaces the id generator for registered users
// (UUIDv4 by default).
func WithUserIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newUserID = gen
		}
	}
}

// Service makes authentication decisions.
//
// Contract:
// - Concurrency: safe for concurrent use; password comparisons run on the
//   caller's goroutine, bounded only by the hashing bulkhead.
// - Errors: client failures match ErrMissingCredentials,
//   ErrInvalidCredentials, ErrIdentifierTaken, password.ErrPolicy,
//   token.ErrUnauthorized or resilience.ErrRateLimitExceeded. Store failures
//   match resilience.ErrLimiterUnavailable, token.ErrRevocationUnavailable
//   or password.ErrHashing.
// - Accounts: Register and ChangePassword return ErrReadOnlyUsers unless
//   the user store implements UserAccounts.
type Service struct {
	config   ServiceConfig
	users    UserStore
	accounts UserAccounts
	hasher   password.Hasher
	tokens   Tokens
	limiter  Limiter

	hashing   *resilience.Bulkhead
	extraKeys KeyFunc
	newUserID func() string
	logger    observe.Logger
	observer  observe.Observer
	mw        *observe.Middleware

	dummyOnce sync.Once
	dummyHash string
}

// NewService creates a Service from its collaborators.
func NewService(config ServiceConfig, users UserStore, hasher password.Hasher, tokens Tokens, limiter Limiter, opts ...Option) (*Service, error) {
	switch {
	case users == nil:
		return nil, fmt.Errorf("%w: nil user store", ErrInvalidConfig)
	case hasher == nil:
		return nil, fmt.Errorf("%w: nil hasher", ErrInvalidConfig)
	case tokens == nil:
		return nil, fmt.Errorf("%w: nil token service", ErrInvalidConfig)
	case limiter == nil:
		return nil, fmt.Errorf("%w: nil limiter", ErrInvalidConfig)
	}

	s := &Service{
		config:    config,
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		limiter:   limiter,
		logger:    observe.NopLogger(),
		newUserID: uuid.NewString,
	}
	s.accounts, _ = users.(UserAccounts)
	for _, opt := range opts {
		opt(s)
	}

	if s.hashing == nil {
		s.hashing = resilience.NewBulkhead(resilience.BulkheadConfig{})
	}

	if s.observer != nil {
		mw, err := observe.MiddlewareFromObserver(s.observer, observe.WithClassifier(Classify))
		if err != nil {
			return nil, fmt.Errorf("auth: instrument: %w", err)
		}
		s.mw = mw
		s.logger = s.observer.Logger()
	} else {
		s.mw = observe.NewMiddleware(nil, nil, s.logger, observe.WithClassifier(Classify))
	}

	return s, nil
}

var (
	opAuthenticate = observe.OpMeta{Component: "auth", Operation: "authenticate"}
	opLogin        = observe.OpMeta{Component: "auth", Operation: "login"}
	opLogout       = observe.OpMeta{Component: "auth", Operation: "logout"}
	opRegister     = observe.OpMeta{Component: "auth", Operation: "register"}
	opChangePass   = observe.OpMeta{Component: "auth", Operation: "change_password"}
)

// Authenticate admits a request carrying a bearer token.
//
// The client address is rate limited before the token is examined, so
// floods of bad tokens are throttled too. The verified subject is then rate
// limited separately; either denial rejects the request.
func (s *Service) Authenticate(ctx context.Context, req *AuthRequest) (*token.Claims, error) {
	var claims *token.Claims
	err := s.mw.Run(ctx, opAuthenticate, func(ctx context.Context) error {
		if req == nil {
			return ErrMissingCredentials
		}

		if err := s.limitClient(ctx, req); err != nil {
			return err
		}

		raw, err := req.BearerToken()
		if err != nil {
			return err
		}

		c, err := s.tokens.Verify(ctx, raw)
		if err != nil {
			return err
		}

		if err := s.limit(ctx, KeyPrefixSubject+c.Subject); err != nil {
			return err
		}

		claims = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Login exchanges an identifier and password for a token.
//
// Unknown identifiers and wrong passwords both return ErrInvalidCredentials
// after one bcrypt comparison each.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	var result *LoginResult
	err := s.mw.Run(ctx, opLogin, func(ctx context.Context) error {
		if req == nil || req.Identifier == "" || req.Password == "" {
			return ErrMissingCredentials
		}

		if err := s.limitClient(ctx, req.authRequest()); err != nil {
			return err
		}
		if err := s.limit(ctx, KeyPrefixLogin+req.Identifier); err != nil {
			return err
		}

		user, err := s.users.FindUserByIdentifier(ctx, req.Identifier)
		switch {
		case errors.Is(err, ErrUserNotFound):
			s.equalizeTiming(ctx, req.Password)
			return ErrInvalidCredentials
		case err != nil:
			return fmt.Errorf("auth: find user: %w", err)
		case user == nil:
			return errors.New("auth: find user: store returned no user and no error")
		}

		ok, err := s.comparePassword(ctx, req.Password, user.PasswordHash)
		if err != nil {
			if errors.Is(err, password.ErrMalformedHash) {
				s.logger.Error(ctx, "stored password hash is malformed",
					observe.Field{Key: "subject", Value: user.ID},
					observe.Field{Key: "error", Value: err})
				return ErrInvalidCredentials
			}
			return err
		}
		if !ok {
			return ErrInvalidCredentials
		}

		raw, claims, err := s.tokens.IssueWithClaims(user.ID, user.Role)
		if err != nil {
			return fmt.Errorf("auth: issue token: %w", err)
		}

		result = &LoginResult{
			Token:     raw,
			Claims:    claims,
			ExpiresAt: claims.ExpiresAt,
		}
		if s.hasher.NeedsRehash(user.PasswordHash) {
			result.NeedsRehash = !s.rehash(ctx, user.ID, req.Password)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Register creates a user with the user role and returns a token for it.
//
// The client address is rate limited, the password must pass
// password.CheckPolicy, and an identifier already in use returns
// ErrIdentifierTaken.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*LoginResult, error) {
	var result *LoginResult
	err := s.mw.Run(ctx, opRegister, func(ctx context.Context) error {
		if s.accounts == nil {
			return ErrReadOnlyUsers
		}
		if req == nil || req.Identifier == "" || req.Password == "" {
			return ErrMissingCredentials
		}

		if err := s.limitClient(ctx, req.authRequest()); err != nil {
			return err
		}
		if err := password.CheckPolicy(req.Password); err != nil {
			return err
		}

		_, err := s.accounts.FindUserByIdentifier(ctx, req.Identifier)
		switch {
		case err == nil:
			return ErrIdentifierTaken
		case !errors.Is(err, ErrUserNotFound):
			return fmt.Errorf("auth: find user: %w", err)
		}

		hash, err := s.hashPassword(ctx, req.Password)
		if err != nil {
			return err
		}

		user := User{ID: s.newUserID(), PasswordHash: hash, Role: token.RoleUser}
		if err := s.accounts.CreateUser(ctx, req.Identifier, user); err != nil {
			if errors.Is(err, ErrIdentifierTaken) {
				return ErrIdentifierTaken
			}
			return fmt.Errorf("auth: create user: %w", err)
		}

		raw, claims, err := s.tokens.IssueWithClaims(user.ID, user.Role)
		if err != nil {
			return fmt.Errorf("auth: issue token: %w", err)
		}
		result = &LoginResult{Token: raw, Claims: claims, ExpiresAt: claims.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ChangePassword replaces the password of the authenticated subject after
// checking the current one. Attempts are rate limited per subject under
// KeyPrefixPassword. Tokens already issued stay valid.
func (s *Service) ChangePassword(ctx context.Context, claims *token.Claims, req *ChangePasswordRequest) error {
	return s.mw.Run(ctx, opChangePass, func(ctx context.Context) error {
		if s.accounts == nil {
			return ErrReadOnlyUsers
		}
		if claims == nil || claims.Subject == "" {
			return ErrMissingCredentials
		}
		if req == nil || req.Current == "" || req.New == "" {
			return ErrMissingCredentials
		}

		if err := s.limit(ctx, KeyPrefixPassword+claims.Subject); err != nil {
			return err
		}
		if err := password.CheckPolicy(req.New); err != nil {
			return err
		}

		user, err := s.accounts.FindUserByID(ctx, claims.Subject)
		switch {
		case errors.Is(err, ErrUserNotFound):
			s.equalizeTiming(ctx, req.Current)
			return ErrInvalidCredentials
		case err != nil:
			return fmt.Errorf("auth: find user: %w", err)
		case user == nil:
			return errors.New("auth: find user: store returned no user and no error")
		}

		ok, err := s.comparePassword(ctx, req.Current, user.PasswordHash)
		if err != nil {
			if errors.Is(err, password.ErrMalformedHash) {
				s.logger.Error(ctx, "stored password hash is malformed",
					observe.Field{Key: "subject", Value: user.ID},
					observe.Field{Key: "error", Value: err})
				return ErrInvalidCredentials
			}
			return err
		}
		if !ok {
			return ErrInvalidCredentials
		}

		hash, err := s.hashPassword(ctx, req.New)
		if err != nil {
			return err
		}
		if err := s.accounts.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			return fmt.Errorf("auth: update password: %w", err)
		}
		return nil
	})
}

// Logout revokes raw until it would have expired.
func (s *Service) Logout(ctx context.Context, raw string) (*token.Claims, error) {
	var claims *token.Claims
	err := s.mw.Run(ctx, opLogout, func(ctx context.Context) error {
		if raw == "" {
			return ErrMissingCredentials
		}
		c, err := s.tokens.RevokeToken(ctx, raw)
		if err != nil {
			return err
		}
		claims = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// limitClient checks the client address key and any KeyFunc keys.
func (s *Service) limitClient(ctx context.Context, req *AuthRequest) error {
	if err := s.limit(ctx, KeyPrefixAddress+req.ClientAddress(s.config.TrustForwardedFor)); err != nil {
		return err
	}
	if s.extraKeys == nil {
		return nil
	}
	for _, key := range s.extraKeys(req) {
		if key == "" {
			continue
		}
		if err := s.limit(ctx, KeyPrefixExtra+key); err != nil {
			return err
		}
	}
	return nil
}

// limit checks one limiter key. A store failure the limiter chose to admit
// is logged and ignored.
func (s *Service) limit(ctx context.Context, key string) error {
	d, err := s.limiter.Check(ctx, key)
	if err != nil {
		if d.Allowed {
			s.logger.Warn(ctx, "rate limiter unavailable, admitting request",
				observe.Field{Key: "limiter_key", Value: key},
				observe.Field{Key: "error", Value: err})
			return nil
		}
		return err
	}
	return d.Err(key)
}

func (s *Service) comparePassword(ctx context.Context, plain, stored string) (bool, error) {
	var ok bool
	err := s.hashing.Execute(ctx, func(context.Context) error {
		var err error
		ok, err = s.hasher.Verify(plain, stored)
		return err
	})
	return ok, err
}

func (s *Service) hashPassword(ctx context.Context, plain string) (string, error) {
	var hash string
	err := s.hashing.Execute(ctx, func(context.Context) error {
		var err error
		hash, err = s.hasher.Hash(plain)
		return err
	})
	return hash, err
}

// rehash upgrades the stored hash of id after a successful login. It
// reports whether the upgrade was stored; failures are logged and never
// fail the login.
func (s *Service) rehash(ctx context.Context, id, plain string) bool {
	if s.accounts == nil {
		return false
	}
	hash, err := s.hashPassword(ctx, plain)
	if err == nil {
		err = s.accounts.UpdatePasswordHash(ctx, id, hash)
	}
	if err != nil {
		s.logger.Warn(ctx, "password rehash failed",
			observe.Field{Key: "subject", Value: id},
			observe.Field{Key: "error", Value: err})
		return false
	}
	return true
}

// equalizeTiming performs a comparison against a throwaway hash.
func (s *Service) equalizeTiming(ctx context.Context, plain string) {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error(ctx, "failed to prepare dummy hash", observe.Field{Key: "error", Value: err})
			return
		}
		s.dummyHash = h
	})
	if s.dummyHash == "" {
		return
	}
	_, _ = s.comparePassword(ctx, plain, s.dummyHash)
}

// Classify maps decision errors onto outcome labels for metrics and logs.
func Classify(err error) string {
	switch {
	case err == nil:
		return observe.OutcomeOK
	case errors.Is(err, ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrIdentifierTaken):
		return "identifier_taken"
	case errors.Is(err, password.ErrPolicy):
		return "weak_password"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, resilience.ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, token.ErrUnauthorized):
		return token.Kind(err)
	default:
		return observe.OutcomeError
	}
}
