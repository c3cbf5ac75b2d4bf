//go:build no_otel

package otel

import (
	"context"
)

type Span struct{}

func (Span) End() {}

type Tracer struct{}

func NewTracer(string) Tracer {
	return Tracer{}
}

func (Tracer) Start(ctx context.Context, _, _ string) (context.Context, Span) {
	return ctx, Span{}
}

func End(span Span, _ error) {
	span.End()
}
