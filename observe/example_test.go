package observe_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonwraymond/gatekeep/observe"
)

func ExampleNewObserver() {
	cfg := observe.Config{
		ServiceName: "gatekeep",
		Version:     "1.0.0",
		Tracing:     observe.TracingConfig{Enabled: true, Exporter: "none"},
		Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
	}

	ctx := context.Background()
	obs, err := observe.NewObserver(ctx, cfg)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer func() {
		_ = obs.Shutdown(ctx)
	}()

	fmt.Println("Observer created successfully")
	// Output:
	// Observer created successfully
}

func ExampleNewObserver_validation() {
	_, err := observe.NewObserver(context.Background(), observe.Config{})
	if errors.Is(err, observe.ErrMissingServiceName) {
		fmt.Println("Caught: missing service name")
	}
	// Output:
	// Caught: missing service name
}

func ExampleOpMeta_SpanName() {
	fmt.Println(observe.OpMeta{Component: "token", Operation: "verify"}.SpanName())
	fmt.Println(observe.OpMeta{Operation: "login"}.SpanName())
	// Output:
	// auth.token.verify
	// auth.login
}

func ExampleLogger_With() {
	var buf bytes.Buffer
	logger := observe.NewLoggerWithWriter("info", &buf).
		With(observe.OpMeta{Component: "auth", Operation: "login"})

	logger.Info(context.Background(), "login succeeded",
		observe.Field{Key: "subject", Value: "alice"},
		observe.Field{Key: "password", Value: "hunter2"},
	)

	var entry map[string]any
	_ = json.Unmarshal(buf.Bytes(), &entry)
	fmt.Println(entry["auth.operation"], entry["subject"], entry["password"])
	// Output:
	// login alice [REDACTED]
}

func ExampleMiddleware_Run() {
	mw := observe.NewMiddleware(nil, nil, nil)

	err := mw.Run(context.Background(), observe.OpMeta{Component: "auth", Operation: "authenticate"},
		func(ctx context.Context) error {
			fmt.Println("deciding")
			return nil
		})
	fmt.Println("err:", err)
	// Output:
	// deciding
	// err: <nil>
}
