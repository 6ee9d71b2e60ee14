package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// OpMeta identifies an instrumented operation.
type OpMeta struct {
	Component string // e.g. "token", "limiter", "auth" (optional)
	Operation string // e.g. "verify", "login" (required)
}

// SpanName returns the deterministic span name for this operation.
// Format: auth.<component>.<operation> or auth.<operation>
func (m OpMeta) SpanName() string {
	if m.Component != "" {
		return "auth." + m.Component + "." + m.Operation
	}
	return "auth." + m.Operation
}

// Validate reports ErrMissingOperation when Operation is empty.
func (m OpMeta) Validate() error {
	if m.Operation == "" {
		return ErrMissingOperation
	}
	return nil
}

func (m OpMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("auth.operation", m.Operation)}
	if m.Component != "" {
		attrs = append(attrs, attribute.String("auth.component", m.Component))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with per-operation span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for an operation.
	StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording the outcome and any error.
	EndSpan(span trace.Span, outcome string, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(meta.attributes()...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan ends the span. Denials are ordinary outcomes, so only unexpected
// errors set the span status to Error.
func (t *tracerImpl) EndSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case outcome == OutcomeError:
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	default:
		span.SetAttributes(attribute.Bool("auth.denied", true))
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a Tracer that records nothing.
func NopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ string, _ error) {
	span.End()
}
