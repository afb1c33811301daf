// Package tracing configures OpenTelemetry span export over OTLP/HTTP
// (Setup) and provides span helpers: StartInference for a function
// dispatch and StartRouterAttempt for one router binding attempt. Spans
// are not linked to the trace id the logging middleware injects.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tensorzero-gateway"

// Setup configures the global TracerProvider to export spans to endpoint
// over OTLP/HTTP. Call Shutdown on the returned provider at process exit.
// An empty endpoint disables export entirely (tracer calls become no-ops).
func Setup(ctx context.Context, endpoint string) (*sdktrace.TracerProvider, error) {
	if endpoint == "" {
		return sdktrace.NewTracerProvider(), nil
	}
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("tracing: building OTLP exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartRouterAttempt starts a span around one router binding attempt.
func StartRouterAttempt(ctx context.Context, binding, model string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "router.attempt")
	span.SetAttributes(
		attribute.String("binding", binding),
		attribute.String("model", model),
	)
	return ctx, span
}

// StartInference starts a span around an entire function dispatch.
func StartInference(ctx context.Context, function, variant string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "function.dispatch")
	span.SetAttributes(
		attribute.String("function", function),
		attribute.String("variant", variant),
	)
	return ctx, span
}
