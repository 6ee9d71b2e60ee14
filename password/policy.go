package password

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinPasswordBytes is the shortest password CheckPolicy accepts.
const MinPasswordBytes = 8

// CheckPolicy validates a password chosen at registration or on change.
// Stored passwords are never re-checked, so tightening the policy does not
// lock existing users out.
func CheckPolicy(password string) error {
	switch {
	case len(password) < MinPasswordBytes:
		return fmt.Errorf("%w: shorter than %d bytes", ErrPolicy, MinPasswordBytes)
	case len(password) > MaxPasswordBytes:
		return fmt.Errorf("%w: longer than %d bytes", ErrPolicy, MaxPasswordBytes)
	case !utf8.ValidString(password):
		return fmt.Errorf("%w: not valid UTF-8", ErrPolicy)
	case strings.TrimSpace(password) == "":
		return fmt.Errorf("%w: blank", ErrPolicy)
	}
	return nil
}
