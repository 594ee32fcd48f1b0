package tracing_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/spamfire/internal/config"
	"github.com/torosent/spamfire/internal/tracing"
)

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, *tracing.Provider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTextMapPropagator(prev)
	})
	return exporter, tracing.NewProvider(tp, true)
}

func TestInitDisabledByDefault(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	p, err := tracing.Init(context.Background(), config.TracingConfig{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if p.ShouldPropagate() {
		t.Error("ShouldPropagate() = true, want false when tracing disabled")
	}

	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
	if span.SpanContext().IsValid() {
		t.Error("disabled provider should hand out no-op spans")
	}
}

func TestInitPropagateOnly(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	p, err := tracing.Init(context.Background(), config.TracingConfig{Propagate: true})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if !p.ShouldPropagate() {
		t.Error("ShouldPropagate() = false, want true")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestInitExporters(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		protocol string
	}{
		{"grpc", "localhost:4317", "grpc"},
		{"http", "localhost:4318", "http"},
		{"default protocol", "localhost:4317", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Exporters connect lazily, so no collector is needed.
			p, err := tracing.Init(context.Background(), config.TracingConfig{
				Endpoint:    tt.endpoint,
				Protocol:    tt.protocol,
				ServiceName: "test-service",
				SampleRate:  1.0,
				Insecure:    true,
			})
			if err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			t.Cleanup(func() {
				// Nothing listens on the endpoint; do not wait for the flush.
				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				defer cancel()
				_ = p.Shutdown(ctx)
			})

			_, span := p.Tracer().Start(context.Background(), "probe")
			defer span.End()
			if !span.SpanContext().IsValid() {
				t.Error("enabled provider should hand out recording spans")
			}
		})
	}
}

func TestInitUnsupportedProtocol(t *testing.T) {
	_, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint: "localhost:4317",
		Protocol: "thrift",
		Insecure: true,
	})
	if err == nil {
		t.Fatal("Init() with unsupported protocol should return error")
	}
}

func TestInitInvalidSampleRate(t *testing.T) {
	tests := []struct {
		name string
		rate float64
	}{
		{"negative", -0.5},
		{"above one", 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tracing.Init(context.Background(), config.TracingConfig{
				Endpoint:   "localhost:4317",
				Protocol:   "grpc",
				Insecure:   true,
				SampleRate: tt.rate,
			})
			if err == nil {
				t.Fatalf("Init() with sample_rate=%g should return error", tt.rate)
			}
		})
	}
}

func TestNilProviderSafety(t *testing.T) {
	var p *tracing.Provider
	if p.ShouldPropagate() {
		t.Error("nil provider ShouldPropagate() = true, want false")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("nil provider Shutdown() error = %v", err)
	}
	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
}

func TestStartAgentSpan(t *testing.T) {
	exporter, p := setupTestTracer(t)

	tests := []struct {
		name       string
		agent      string
		capability string
		wantAttrs  int
	}{
		{"producer", "Spammer1", "spammer", 2},
		{"coordinator", "ExperimentMasterAgent", "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			_, span := tracing.StartAgentSpan(context.Background(), p.Tracer(), tt.agent, tt.capability)
			tracing.EndSpan(span, nil)

			spans := exporter.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if got, want := spans[0].Name, "agent "+tt.agent; got != want {
				t.Errorf("span name = %q, want %q", got, want)
			}
			if spans[0].SpanKind != trace.SpanKindInternal {
				t.Errorf("span kind = %v", spans[0].SpanKind)
			}
			if len(spans[0].Attributes) != tt.wantAttrs {
				t.Errorf("attributes = %v", spans[0].Attributes)
			}
		})
	}
}

func TestEndSpanStatus(t *testing.T) {
	exporter, p := setupTestTracer(t)

	_, span := p.Tracer().Start(context.Background(), "failed")
	tracing.EndSpan(span, context.DeadlineExceeded)
	_, span = p.Tracer().Start(context.Background(), "ok")
	tracing.EndSpan(span, nil)

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Error || len(spans[0].Events) == 0 {
		t.Errorf("failed span status = %v, events = %d", spans[0].Status.Code, len(spans[0].Events))
	}
	if spans[1].Status.Code != codes.Ok {
		t.Errorf("ok span status = %v", spans[1].Status.Code)
	}
}

func TestInjectExtractRoundTrip(t *testing.T) {
	_, p := setupTestTracer(t)

	ctx, span := p.Tracer().Start(context.Background(), "sender")
	defer span.End()

	carrier := tracing.Inject(ctx, nil)
	if len(carrier["traceparent"]) < 55 {
		t.Fatalf("traceparent not injected: %v", carrier)
	}

	remote := trace.SpanContextFromContext(tracing.Extract(context.Background(), carrier))
	if remote.TraceID() != span.SpanContext().TraceID() {
		t.Errorf("extracted trace %s, want %s", remote.TraceID(), span.SpanContext().TraceID())
	}
	if !remote.IsRemote() {
		t.Error("extracted span context should be remote")
	}
}

func TestInjectWithoutSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator()) })

	if got := tracing.Inject(context.Background(), nil); got != nil {
		t.Errorf("Inject() without span = %v, want nil", got)
	}
	ctx := context.Background()
	if tracing.Extract(ctx, nil) != ctx {
		t.Error("Extract(nil) should return ctx unchanged")
	}
}
