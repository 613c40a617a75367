package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func newRecordingTracer() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	sr := tracetest.NewSpanRecorder()
	return sr, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestInitTracing_Disabled(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}
	defer tp.Shutdown(context.Background())

	if tp.Tracer() == nil {
		t.Error("expected non-nil tracer even when disabled")
	}
	if tp.Provider() == nil {
		t.Error("expected non-nil provider even when disabled")
	}
}

func TestInitTracing_UnknownProtocol(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Protocol: "carrier-pigeon"})
	if err == nil {
		t.Error("expected error for unknown protocol")
	}
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()

	if cfg.Enabled {
		t.Error("expected Enabled to be false by default")
	}
	if cfg.Endpoint != "localhost:4317" {
		t.Errorf("expected endpoint localhost:4317, got %s", cfg.Endpoint)
	}
	if cfg.ServiceName != "wxai" {
		t.Errorf("expected service name wxai, got %s", cfg.ServiceName)
	}
	if cfg.Protocol != ProtocolGRPC {
		t.Errorf("expected grpc protocol, got %s", cfg.Protocol)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestStartRequestSpan(t *testing.T) {
	sr, tp := newRecordingTracer()

	_, span := StartRequestSpan(context.Background(), tp.Tracer(TracerName), SpanAttributes{
		Operation:    "text_generation_stream",
		Model:        "ibm/granite-13b-instruct-v2",
		DeploymentID: "dep-1",
		Stream:       true,
	})
	RecordHTTPStatus(span, 200)
	RecordUsage(span, 12, 34, "max_tokens")
	span.End()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "watsonx.text_generation_stream" {
		t.Errorf("unexpected span name %q", s.Name())
	}

	attrs := attrMap(s.Attributes())
	if got := attrs["gen_ai.system"].AsString(); got != GenAISystem {
		t.Errorf("gen_ai.system = %q", got)
	}
	if got := attrs["gen_ai.request.model"].AsString(); got != "ibm/granite-13b-instruct-v2" {
		t.Errorf("gen_ai.request.model = %q", got)
	}
	if got := attrs["watsonx.deployment_id"].AsString(); got != "dep-1" {
		t.Errorf("watsonx.deployment_id = %q", got)
	}
	if !attrs["gen_ai.request.stream"].AsBool() {
		t.Error("expected stream attribute")
	}
	if got := attrs["http.response.status_code"].AsInt64(); got != 200 {
		t.Errorf("http.response.status_code = %d", got)
	}
	if got := attrs["gen_ai.usage.output_tokens"].AsInt64(); got != 34 {
		t.Errorf("gen_ai.usage.output_tokens = %d", got)
	}
	if got := attrs["gen_ai.response.finish_reason"].AsString(); got != "max_tokens" {
		t.Errorf("gen_ai.response.finish_reason = %q", got)
	}
}

func TestRecordError(t *testing.T) {
	sr, tp := newRecordingTracer()

	_, span := tp.Tracer(TracerName).Start(context.Background(), "test")
	RecordError(span, errors.New("boom"))
	span.End()

	s := sr.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status().Code)
	}
	if len(s.Events()) != 1 {
		t.Errorf("expected one exception event, got %d", len(s.Events()))
	}
}

func TestRecordError_Nil(t *testing.T) {
	sr, tp := newRecordingTracer()

	_, span := tp.Tracer(TracerName).Start(context.Background(), "test")
	RecordError(span, nil)
	span.End()

	if sr.Ended()[0].Status().Code != codes.Unset {
		t.Error("expected status to stay unset")
	}
}

func TestTracerProvider_Shutdown(t *testing.T) {
	tp := &TracerProvider{
		tracer: noop.NewTracerProvider().Tracer("test"),
	}

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown should not error with nil provider: %v", err)
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("WXAI_TRACING_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf")
	t.Setenv("OTEL_SERVICE_NAME", "wxai-cli")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")

	cfg := TracingConfigFromEnv(DefaultTracingConfig())

	if !cfg.Enabled {
		t.Error("expected tracing enabled")
	}
	if cfg.Endpoint != "collector:4318" {
		t.Errorf("endpoint = %q", cfg.Endpoint)
	}
	if cfg.Protocol != ProtocolHTTP {
		t.Errorf("protocol = %q", cfg.Protocol)
	}
	if cfg.ServiceName != "wxai-cli" {
		t.Errorf("service name = %q", cfg.ServiceName)
	}
	if cfg.SampleRate != 0.25 {
		t.Errorf("sample rate = %v", cfg.SampleRate)
	}
	if cfg.Insecure {
		t.Error("expected insecure false")
	}
}

func TestTracingConfigFromEnv_KeepsBase(t *testing.T) {
	t.Setenv("WXAI_TRACING_ENABLED", "maybe")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "not-a-number")

	base := DefaultTracingConfig()
	cfg := TracingConfigFromEnv(base)

	if cfg.Enabled != base.Enabled || cfg.SampleRate != base.SampleRate {
		t.Errorf("expected base values kept, got %+v", cfg)
	}
}
