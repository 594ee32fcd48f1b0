package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartAgentSpan starts the span covering one agent's lifetime.
func StartAgentSpan(ctx context.Context, tracer trace.Tracer, name, capability string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "agent "+name,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(attribute.String("spamfire.agent", name))
	if capability != "" {
		span.SetAttributes(attribute.String("spamfire.capability", capability))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Inject writes the W3C trace context of ctx into carrier, allocating it when
// nil. It returns nil when ctx carries nothing to propagate.
func Inject(ctx context.Context, carrier map[string]string) map[string]string {
	if carrier == nil {
		carrier = map[string]string{}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(carrier))
	if len(carrier) == 0 {
		return nil
	}
	return carrier
}

// Extract returns ctx joined to the remote trace described by carrier.
func Extract(ctx context.Context, carrier map[string]string) context.Context {
	if len(carrier) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(carrier))
}
