package auth

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jonwraymond/gatekeep/token"
)

// AuthRequest contains the information needed to authenticate a request.
type AuthRequest struct {
	// Headers contains HTTP headers (Authorization, X-Forwarded-For, ...).
	Headers map[string][]string

	// RemoteAddr is the network peer, as in http.Request.RemoteAddr.
	RemoteAddr string
}

// NewAuthRequest builds an AuthRequest from an HTTP request.
func NewAuthRequest(r *http.Request) *AuthRequest {
	return &AuthRequest{Headers: r.Header, RemoteAddr: r.RemoteAddr}
}

// GetHeader returns the first value for a header, or empty string.
// Keys are matched case-insensitively.
func (r *AuthRequest) GetHeader(key string) string {
	if r.Headers == nil {
		return ""
	}
	return http.Header(r.Headers).Get(key)
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
//
// A missing header returns ErrMissingCredentials, another scheme
// ErrNotBearer, and a header that is not printable ASCII or carries no
// single token ErrMalformedAuthHeader.
func (r *AuthRequest) BearerToken() (string, error) {
	header := strings.TrimSpace(r.GetHeader("Authorization"))
	if header == "" {
		return "", ErrMissingCredentials
	}
	for i := 0; i < len(header); i++ {
		if header[i] < 0x20 || header[i] > 0x7e {
			return "", ErrMalformedAuthHeader
		}
	}

	scheme, raw, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", ErrNotBearer
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return "", ErrMalformedAuthHeader
	}
	return raw, nil
}

// ClientAddress returns the address used to key per-client limits.
//
// By default only the network peer is used, since headers are client
// controlled. With trustForwardedFor the first X-Forwarded-For hop wins;
// enable it only behind a proxy that overwrites the header.
func (r *AuthRequest) ClientAddress(trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := r.GetHeader("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	return hostOnly(r.RemoteAddr)
}

func hostOnly(addr string) string {
	if addr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// LoginRequest carries a password login attempt.
type LoginRequest struct {
	Identifier string
	Password   string
	RemoteAddr string

	// Headers are the request headers, consulted for X-Forwarded-For and by
	// the service's KeyFunc.
	Headers map[string][]string
}

func (r *LoginRequest) authRequest() *AuthRequest {
	return &AuthRequest{Headers: r.Headers, RemoteAddr: r.RemoteAddr}
}

// LoginResult is returned by a successful login or registration.
type LoginResult struct {
	Token     string
	Claims    *token.Claims
	ExpiresAt time.Time

	// NeedsRehash reports that the stored hash uses outdated parameters and
	// could not be upgraded in place.
	NeedsRehash bool
}

// RegisterRequest carries a new account.
type RegisterRequest struct {
	Identifier string
	Password   string
	RemoteAddr string
	Headers    map[string][]string
}

func (r *RegisterRequest) authRequest() *AuthRequest {
	return &AuthRequest{Headers: r.Headers, RemoteAddr: r.RemoteAddr}
}

// ChangePasswordRequest replaces the caller's password.
type ChangePasswordRequest struct {
	Current string
	New     string
}
