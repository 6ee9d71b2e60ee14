// Package auth composes credential verification, bearer tokens and rate
// limiting into the two request-level decisions a backend needs:
// Authenticate for every protected request and Login for exchanging a
// password for a token.
//
// Every decision runs through an observe.Middleware so it is traced,
// counted and logged with an outcome label from Classify. Clients only ever
// learn coarse outcomes; the specific token failure is logged, not returned.
//
// HTTP adapters live in transport.go: Middleware, RequireRole, LoginHandler,
// LogoutHandler and WriteError.
package auth
