package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for authentication and authorization.
var (
	// Authentication errors
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserNotFound       = errors.New("auth: user not found")

	// Authorization header errors. Both match ErrMissingCredentials.
	ErrMalformedAuthHeader = fmt.Errorf("%w: malformed authorization header", ErrMissingCredentials)
	ErrNotBearer           = fmt.Errorf("%w: authorization scheme is not Bearer", ErrMissingCredentials)

	// Account errors
	ErrIdentifierTaken = errors.New("auth: identifier already registered")
	ErrReadOnlyUsers   = errors.New("auth: user store does not support changes")

	// Authorization errors
	ErrForbidden = errors.New("auth: access denied")

	// Construction errors
	ErrInvalidConfig = errors.New("auth: invalid config")
)
