package auth

import (
	"fmt"

	"github.com/jonwraymond/gatekeep/token"
)

// AuthzError represents an authorization failure.
type AuthzError struct {
	// Subject is the principal that was denied.
	Subject string

	// Required is the role the operation needs.
	Required token.Role

	// Actual is the role the principal holds.
	Actual token.Role
}

// Error returns the error message.
func (e *AuthzError) Error() string {
	return fmt.Sprintf("authorization denied: subject=%q required=%q actual=%q",
		e.Subject, string(e.Required), string(e.Actual))
}

// Is reports whether this error matches the target.
func (e *AuthzError) Is(target error) bool {
	return target == ErrForbidden
}

// Authorize checks that verified claims satisfy the required role.
//
// RoleUser admits any authenticated principal; RoleAdmin admits only admin
// tokens. An unknown required role denies everything.
func Authorize(claims *token.Claims, required token.Role) error {
	if claims == nil {
		return ErrMissingCredentials
	}

	var allowed bool
	switch required {
	case token.RoleUser:
		allowed = claims.Role.Valid()
	case token.RoleAdmin:
		allowed = claims.Role == token.RoleAdmin
	default:
		allowed = false
	}

	if !allowed {
		return &AuthzError{Subject: claims.Subject, Required: required, Actual: claims.Role}
	}
	return nil
}
