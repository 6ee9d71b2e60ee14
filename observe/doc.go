// Package observe provides observability primitives for authentication
// decisions.
//
// It is a pure instrumentation library: tracing spans, decision metrics and a
// JSON structured logger. Consumers wrap each decision (authenticate, login,
// logout, rate limit) with Middleware.Run and choose how errors map onto
// outcome labels.
package observe
