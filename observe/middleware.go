package observe

import (
	"context"
	"time"
)

// Classifier maps an operation's error to an outcome label.
// It must return OutcomeOK for a nil error.
type Classifier func(err error) string

// DefaultClassifier labels nil as OutcomeOK and everything else OutcomeError.
func DefaultClassifier(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return OutcomeError
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithClassifier sets how errors map onto outcome labels.
func WithClassifier(c Classifier) MiddlewareOption {
	return func(m *Middleware) {
		if c != nil {
			m.classify = c
		}
	}
}

// Middleware wraps decisions with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: Run is safe for concurrent use.
//   - Context: the span context is passed to the wrapped operation.
//   - Errors: errors from the wrapped operation are returned unchanged.
type Middleware struct {
	tracer   Tracer
	metrics  Metrics
	logger   Logger
	classify Classifier
}

// NewMiddleware creates a new Middleware. Nil components are replaced with
// no-op implementations.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger, opts ...MiddlewareOption) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	m := &Middleware{
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		classify: DefaultClassifier,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NopMiddleware returns a Middleware that only runs the operation.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// Run executes op inside a span and records its outcome.
//
// Successful decisions log at debug, denials at warn, unexpected errors at
// error.
func (m *Middleware) Run(ctx context.Context, meta OpMeta, op func(ctx context.Context) error) error {
	ctx, span := m.tracer.StartSpan(ctx, meta)
	start := time.Now()

	err := op(ctx)

	duration := time.Since(start)
	outcome := m.classify(err)

	m.tracer.EndSpan(span, outcome, err)
	m.metrics.RecordDecision(ctx, meta, duration, outcome)

	logger := m.logger.With(meta)
	fields := []Field{
		{Key: "outcome", Value: outcome},
		{Key: "duration_ms", Value: float64(duration) / float64(time.Millisecond)},
	}

	switch {
	case err == nil:
		logger.Debug(ctx, "decision completed", fields...)
	case outcome == OutcomeError:
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		logger.Error(ctx, "decision failed", fields...)
	default:
		fields = append(fields, Field{Key: "reason", Value: err.Error()})
		logger.Warn(ctx, "decision denied", fields...)
	}

	return err
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer, opts ...MiddlewareOption) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger(), opts...), nil
}
