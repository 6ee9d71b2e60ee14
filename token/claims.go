package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the verified fields of a token. A Claims value is only ever
// returned after signature, expiry and revocation checks succeed.
type Claims struct {
	Subject   string
	Role      Role
	TokenID   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsAdmin reports whether the claims carry exactly the admin role.
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// wireClaims is the JSON payload of a token.
type wireClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

func (w *wireClaims) toClaims() *Claims {
	c := &Claims{
		Subject: w.Subject,
		Role:    w.Role,
		TokenID: w.ID,
		Issuer:  w.Issuer,
	}
	if w.IssuedAt != nil {
		c.IssuedAt = w.IssuedAt.Time
	}
	if w.ExpiresAt != nil {
		c.ExpiresAt = w.ExpiresAt.Time
	}
	return c
}
