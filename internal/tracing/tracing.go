// Package tracing holds the process tracer and span helpers
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the process tracer; Setup calls it
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan opens a span named "pkg.Type.Method". Without a tracer the span already
// on ctx, usually a no-op, is returned.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

func activeSpan(ctx context.Context) (trace.SpanContext, bool) {
	sc := trace.SpanContextFromContext(ctx)
	return sc, tracer != nil && sc.IsValid()
}

// GetTraceID returns the trace ID on ctx, or ""
func GetTraceID(ctx context.Context) string {
	sc, ok := activeSpan(ctx)
	if !ok {
		return ""
	}
	return sc.TraceID().String()
}

// TraceParent renders the W3C traceparent of ctx for message headers, or ""
func TraceParent(ctx context.Context) string {
	if _, ok := activeSpan(ctx); !ok {
		return ""
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get("traceparent")
}
