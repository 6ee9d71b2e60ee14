package secret

import "errors"

var (
	// ErrMissingEnv reports a ${VAR} reference to an unset variable.
	ErrMissingEnv = errors.New("secret: missing environment variable")

	// ErrInvalidRef reports a malformed secret reference.
	ErrInvalidRef = errors.New("secret: invalid reference")

	// ErrProviderNotRegistered reports a reference to an unknown provider.
	ErrProviderNotRegistered = errors.New("secret: provider not registered")

	// ErrNotFound reports that a provider has no value for a reference.
	ErrNotFound = errors.New("secret: not found")

	// ErrEmptySecret reports an empty value from a strict resolver.
	ErrEmptySecret = errors.New("secret: empty value")
)
