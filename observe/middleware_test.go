package observe

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

var errDenied = errors.New("denied")

func denyClassifier(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, errDenied):
		return "denied"
	default:
		return OutcomeError
	}
}

type testRig struct {
	mw     *Middleware
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	logs   *bytes.Buffer
}

func newTestRig(t *testing.T, opts ...MiddlewareOption) *testRig {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	logs := &bytes.Buffer{}
	logger := NewLoggerWithWriter("debug", logs)

	return &testRig{
		mw:     NewMiddleware(NewTracer(tp.Tracer("test")), metrics, logger, opts...),
		spans:  spans,
		reader: reader,
		logs:   logs,
	}
}

func TestMiddleware_SuccessPath(t *testing.T) {
	rig := newTestRig(t)
	meta := OpMeta{Component: "auth", Operation: "authenticate"}

	err := rig.mw.Run(context.Background(), meta, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	spans := rig.spans.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "auth.auth.authenticate" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}

	total := findMetric(collect(t, rig.reader), "auth.decisions.total")
	if total == nil {
		t.Fatal("auth.decisions.total metric not found")
	}
	if got := sumTotal(t, total); got != 1 {
		t.Errorf("expected 1 decision, got %d", got)
	}

	e := decodeLines(t, rig.logs)[0]
	if e["level"] != "debug" || e["outcome"] != OutcomeOK {
		t.Errorf("unexpected success log entry: %v", e)
	}
}

func TestMiddleware_ErrorReturnedUnchanged(t *testing.T) {
	rig := newTestRig(t)
	want := errors.New("boom")

	got := rig.mw.Run(context.Background(), OpMeta{Operation: "login"}, func(context.Context) error { return want })
	if got != want {
		t.Fatalf("expected original error, got: %v", got)
	}

	e := decodeLines(t, rig.logs)[0]
	if e["level"] != "error" {
		t.Errorf("expected error level, got %v", e["level"])
	}
	if e["error"] != "boom" {
		t.Errorf("expected error='boom', got %v", e["error"])
	}
}

func TestMiddleware_ClassifierLabelsDenials(t *testing.T) {
	rig := newTestRig(t, WithClassifier(denyClassifier))

	_ = rig.mw.Run(context.Background(), OpMeta{Operation: "authenticate"}, func(context.Context) error { return errDenied })

	e := decodeLines(t, rig.logs)[0]
	if e["level"] != "warn" {
		t.Errorf("expected denial at warn, got %v", e["level"])
	}
	if e["outcome"] != "denied" {
		t.Errorf("expected outcome='denied', got %v", e["outcome"])
	}

	denied := findMetric(collect(t, rig.reader), "auth.decisions.denied")
	if denied == nil {
		t.Fatal("auth.decisions.denied metric not found")
	}
	if got := sumTotal(t, denied); got != 1 {
		t.Errorf("expected 1 denial, got %d", got)
	}
}

func TestMiddleware_PropagatesSpanContext(t *testing.T) {
	rig := newTestRig(t)

	var inner trace.SpanContext
	_ = rig.mw.Run(context.Background(), OpMeta{Operation: "login"}, func(ctx context.Context) error {
		inner = trace.SpanContextFromContext(ctx)
		return nil
	})

	if !inner.IsValid() {
		t.Fatal("operation did not receive span context")
	}
	if inner.SpanID() != rig.spans.Ended()[0].SpanContext().SpanID() {
		t.Error("operation context does not carry the decision span")
	}
}

func TestMiddleware_MeasuresDuration(t *testing.T) {
	rig := newTestRig(t)

	_ = rig.mw.Run(context.Background(), OpMeta{Operation: "login"}, func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})

	e := decodeLines(t, rig.logs)[0]
	d, ok := e["duration_ms"].(float64)
	if !ok || d < 20 {
		t.Errorf("expected duration_ms >= 20, got %v", e["duration_ms"])
	}
}

func TestMiddleware_NopComponents(t *testing.T) {
	called := false
	err := NopMiddleware().Run(context.Background(), OpMeta{Operation: "noop"}, func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("Run() = %v, called = %v", err, called)
	}
}

func TestMiddlewareFromObserver(t *testing.T) {
	if _, err := MiddlewareFromObserver(nil); !errors.Is(err, ErrNilObserver) {
		t.Fatalf("expected ErrNilObserver, got %v", err)
	}

	obs, err := NewObserver(context.Background(), Config{ServiceName: "gatekeep"})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	mw, err := MiddlewareFromObserver(obs)
	if err != nil {
		t.Fatalf("MiddlewareFromObserver() error = %v", err)
	}
	if err := mw.Run(context.Background(), OpMeta{Operation: "login"}, func(context.Context) error { return nil }); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
