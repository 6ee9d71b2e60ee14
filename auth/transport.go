package auth

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/jonwraymond/gatekeep/cache"
	"github.com/jonwraymond/gatekeep/password"
	"github.com/jonwraymond/gatekeep/resilience"
	"github.com/jonwraymond/gatekeep/token"
)

// Error codes carried in the envelope's "error" field. Zero means success.
const (
	CodeOK                 = 0
	CodeWeakPassword       = 1000
	CodeMissingHeader      = 1001
	CodeInvalidHeader      = 1002
	CodeMissingBearer      = 1003
	CodeInvalidCredentials = 1004
	CodeIdentifierTaken    = 1005
	CodeAdminOnly          = 1007
	CodeUnauthorized       = 2001
	CodeHashing            = 2002
	CodeCache              = 3002
	CodeBadRequest         = 4002
	CodeTooManyRequests    = 4290
	CodeInternal           = 5001
)

// maxLoginBody caps the size of a JSON request body.
const maxLoginBody = 1 << 16

// Envelope is the JSON body of every response.
type Envelope struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
	Error   int    `json:"error"`
}

var errBadRequest = errors.New("auth: malformed request body")

// ErrorResponse maps err to an HTTP status and envelope. The returned
// duration is the Retry-After delay for rate-limited requests.
//
// Token failures all map to one message so clients cannot tell why a token
// was rejected.
func ErrorResponse(err error) (int, Envelope, time.Duration) {
	var rle *resilience.RateLimitError
	switch {
	case errors.As(err, &rle):
		return http.StatusTooManyRequests, Envelope{Message: "Too many requests", Error: CodeTooManyRequests}, rle.RetryAfter
	case errors.Is(err, resilience.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, Envelope{Message: "Too many requests", Error: CodeTooManyRequests}, 0
	case errors.Is(err, ErrMalformedAuthHeader):
		return http.StatusUnauthorized, Envelope{Message: "Invalid authorization header format", Error: CodeInvalidHeader}, 0
	case errors.Is(err, ErrNotBearer):
		return http.StatusUnauthorized, Envelope{Message: "Authorization scheme must be Bearer", Error: CodeMissingBearer}, 0
	case errors.Is(err, ErrMissingCredentials):
		return http.StatusUnauthorized, Envelope{Message: "Credentials are missing", Error: CodeMissingHeader}, 0
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, Envelope{Message: "Invalid credentials", Error: CodeInvalidCredentials}, 0
	case errors.Is(err, ErrIdentifierTaken):
		return http.StatusConflict, Envelope{Message: "Identifier is already taken", Error: CodeIdentifierTaken}, 0
	case errors.Is(err, password.ErrPolicy):
		return http.StatusBadRequest, Envelope{Message: "Password does not meet requirements", Error: CodeWeakPassword}, 0
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, Envelope{Message: "Admin only section", Error: CodeAdminOnly}, 0
	case errors.Is(err, token.ErrUnauthorized):
		return http.StatusUnauthorized, Envelope{Message: "Unauthorized", Error: CodeUnauthorized}, 0
	case errors.Is(err, resilience.ErrLimiterUnavailable),
		errors.Is(err, token.ErrRevocationUnavailable),
		errors.Is(err, cache.ErrUnavailable):
		return http.StatusServiceUnavailable, Envelope{Message: "Service temporarily unavailable", Error: CodeCache}, 0
	case errors.Is(err, password.ErrHashing):
		return http.StatusInternalServerError, Envelope{Message: "Internal error", Error: CodeHashing}, 0
	case errors.Is(err, resilience.ErrBulkheadFull):
		return http.StatusServiceUnavailable, Envelope{Message: "Service temporarily unavailable", Error: CodeCache}, 0
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, Envelope{Message: "Malformed request body", Error: CodeBadRequest}, 0
	default:
		return http.StatusInternalServerError, Envelope{Message: "Internal error", Error: CodeInternal}, 0
	}
}

// WriteError writes err as a JSON envelope.
func WriteError(w http.ResponseWriter, err error) {
	status, env, retryAfter := ErrorResponse(err)
	if status == http.StatusTooManyRequests {
		secs := int(math.Ceil(retryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	if status == http.StatusUnauthorized && env.Error != CodeInvalidCredentials {
		w.Header().Set("WWW-Authenticate", `Bearer realm="gatekeep"`)
	}
	WriteJSON(w, status, env)
}

// WriteJSON writes env with the given status.
func WriteJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// Middleware authenticates every request and attaches the verified claims
// to its context.
//
// Usage:
//
//	mux.Handle("GET /me", auth.Middleware(svc)(meHandler))
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := svc.Authenticate(r.Context(), NewAuthRequest(r))
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole rejects requests whose claims do not satisfy role. It must be
// wrapped by Middleware.
func RequireRole(role token.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Authorize(ClaimsFromContext(r.Context()), role); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type credentialsBody struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// identifier returns Identifier, falling back to Email.
func (b credentialsBody) identifier() string {
	if b.Identifier != "" {
		return b.Identifier
	}
	return b.Email
}

type changePasswordBody struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

// LoginResponse is the data of a successful login or registration.
type LoginResponse struct {
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresAt time.Time  `json:"expires_at"`
	ExpiresIn int64      `json:"expires_in"`
	Subject   string     `json:"subject"`
	Role      token.Role `json:"role"`
}

func newLoginResponse(res *LoginResult) LoginResponse {
	return LoginResponse{
		Token:     res.Token,
		TokenType: "Bearer",
		ExpiresAt: res.ExpiresAt.UTC(),
		ExpiresIn: int64(res.ExpiresAt.Sub(res.Claims.IssuedAt) / time.Second),
		Subject:   res.Claims.Subject,
		Role:      res.Claims.Role,
	}
}

// allowMethod answers 405 unless r uses method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteJSON(w, http.StatusMethodNotAllowed, Envelope{Message: "Method not allowed", Error: CodeBadRequest})
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

// LoginHandler accepts POST {"identifier": ..., "password": ...} ("email"
// is accepted in place of "identifier") and responds with a token.
func LoginHandler(svc *Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}

		var body credentialsBody
		if err := decodeBody(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}

		res, err := svc.Login(r.Context(), &LoginRequest{
			Identifier: body.identifier(),
			Password:   body.Password,
			RemoteAddr: r.RemoteAddr,
			Headers:    r.Header,
		})
		if err != nil {
			WriteError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, Envelope{Data: newLoginResponse(res), Message: "Login successful"})
	})
}

// RegisterHandler accepts POST with the login body, creates the account
// and responds 201 with a token for it.
func RegisterHandler(svc *Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}

		var body credentialsBody
		if err := decodeBody(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}

		res, err := svc.Register(r.Context(), &RegisterRequest{
			Identifier: body.identifier(),
			Password:   body.Password,
			RemoteAddr: r.RemoteAddr,
			Headers:    r.Header,
		})
		if err != nil {
			WriteError(w, err)
			return
		}

		WriteJSON(w, http.StatusCreated, Envelope{Data: newLoginResponse(res), Message: "Registration successful"})
	})
}

// ChangePasswordHandler accepts PUT {"current_password": ...,
// "new_password": ...} for the authenticated caller. It must be wrapped by
// Middleware.
func ChangePasswordHandler(svc *Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPut) {
			return
		}

		var body changePasswordBody
		if err := decodeBody(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}

		err := svc.ChangePassword(r.Context(), ClaimsFromContext(r.Context()), &ChangePasswordRequest{
			Current: body.Current,
			New:     body.New,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, Envelope{Message: "Password updated"})
	})
}

// LogoutHandler revokes the request's bearer token.
func LogoutHandler(svc *Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}

		raw, err := NewAuthRequest(r).BearerToken()
		if err != nil {
			WriteError(w, err)
			return
		}
		if _, err := svc.Logout(r.Context(), raw); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, Envelope{Message: "Logged out"})
	})
}
