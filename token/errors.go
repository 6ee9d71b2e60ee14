package token

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is the parent of every verification failure. Clients only
// ever learn this; the specific kind is for logs and metrics.
var ErrUnauthorized = errors.New("token: unauthorized")

// Verification failures. Each wraps ErrUnauthorized.
var (
	ErrMalformed    = fmt.Errorf("%w: malformed", ErrUnauthorized)
	ErrBadSignature = fmt.Errorf("%w: bad signature", ErrUnauthorized)
	ErrExpired      = fmt.Errorf("%w: expired", ErrUnauthorized)
	ErrRevoked      = fmt.Errorf("%w: revoked", ErrUnauthorized)
)

// Service errors.
var (
	ErrInvalidConfig = errors.New("token: invalid config")
	ErrInvalidClaims = errors.New("token: invalid claims")
	ErrMissingID     = errors.New("token: token has no id")
	ErrClosed        = errors.New("token: service closed")

	// ErrRevocationUnavailable reports that the revocation store could not
	// be consulted. Verification fails closed with it unless configured
	// otherwise.
	ErrRevocationUnavailable = errors.New("token: revocation store unavailable")
)

// Kind returns a short label for a verification error, for logs and
// metrics: "malformed", "bad_signature", "expired", "revoked",
// "revocation_unavailable", or "error" for anything else.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrRevocationUnavailable):
		return "revocation_unavailable"
	default:
		return "error"
	}
}
