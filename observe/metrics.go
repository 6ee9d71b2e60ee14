package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Standard outcomes. Classifiers may return other labels for denials, such
// as "expired" or "rate_limited".
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics records decision metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordDecision records one decision with its duration and outcome label.
	RecordDecision(ctx context.Context, meta OpMeta, duration time.Duration, outcome string)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	deniedCount  metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates the decision instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"auth.decisions.total",
		metric.WithDescription("Total number of authentication decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	deniedCount, err := meter.Int64Counter(
		"auth.decisions.denied",
		metric.WithDescription("Decisions that did not end in ok"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"auth.decision.duration_ms",
		metric.WithDescription("Decision duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		deniedCount:  deniedCount,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordDecision(ctx context.Context, meta OpMeta, duration time.Duration, outcome string) {
	attrs := append(meta.attributes(), attribute.String("auth.outcome", outcome))
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)
	if outcome != OutcomeOK {
		m.deniedCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) RecordDecision(context.Context, OpMeta, time.Duration, string) {}
