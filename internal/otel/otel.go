//go:build !no_otel

// Package otel opens the client spans of the endpoint callers.
// Build with the no_otel tag to drop the OpenTelemetry dependency.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationVersion = "v1"

type Span = trace.Span

// Tracer opens one client span per server call.
type Tracer struct {
	tracer trace.Tracer
}

func NewTracer(name string) Tracer {
	return Tracer{
		tracer: otel.Tracer(name, trace.WithInstrumentationVersion(instrumentationVersion)),
	}
}

// Start opens a span named operation for a request to endpoint.
func (t Tracer) Start(ctx context.Context, operation, endpoint string) (context.Context, Span) {
	return t.tracer.Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url.full", endpoint)),
	)
}

// End marks span as failed when err is set and ends it.
func End(span Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
