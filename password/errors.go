package password

import (
	"errors"
	"fmt"
)

// Sentinel errors for credential hashing.
var (
	// ErrHashing reports an internal failure: entropy, resources, or a
	// stored hash that cannot be parsed. Never surface its detail to clients.
	ErrHashing = errors.New("password: hashing failed")

	// ErrMalformedHash reports a stored hash that is not a valid encoding.
	// It wraps ErrHashing; callers treat it as a failed verification.
	ErrMalformedHash = fmt.Errorf("%w: malformed stored hash", ErrHashing)

	// ErrPasswordTooLong reports a password over bcrypt's 72-byte input limit.
	ErrPasswordTooLong = fmt.Errorf("%w: password exceeds 72 bytes", ErrHashing)

	// ErrPolicy reports a new password that CheckPolicy rejects. It is a
	// client error and does not wrap ErrHashing.
	ErrPolicy = errors.New("password: does not meet policy")
)
