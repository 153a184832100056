// Package tracing wires OpenTelemetry spans around one agent turn and one
// evolution cycle, writing them as newline-delimited JSON the same way
// slogx writes its JSONL log sinks. It's off by default: a normal run
// pays nothing beyond the no-op tracer otel itself falls back to until a
// provider is installed.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/skilllite/skilllite"

// Configure installs a stdouttrace exporter writing span JSON to w and
// returns its shutdown func. When enabled is false, Configure leaves the
// global tracer provider untouched (otel's default no-op) and returns a
// shutdown func that does nothing.
func Configure(w io.Writer, enabled bool) (shutdown func(context.Context) error, err error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the process-wide tracer. Safe to call before Configure:
// otel returns a no-op tracer until a real provider is installed.
func Tracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts and returns a child span named name under ctx.
func StartSpan(ctx context.Context, name string) (context.Context, oteltrace.Span) {
	return Tracer().Start(ctx, name)
}
