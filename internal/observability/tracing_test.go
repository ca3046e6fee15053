package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracing_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracing(ctx, TracingConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Enabled() {
		t.Fatal("export should be disabled without an endpoint")
	}
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
	var nilTP *TracerProvider
	if err := nilTP.Shutdown(ctx); err != nil {
		t.Fatalf("nil shutdown error: %v", err)
	}
}

func TestWithDefaults(t *testing.T) {
	c := TracingConfig{}.withDefaults()
	if c.ServiceName != "logsift" || c.ServiceVersion != "dev" || c.Environment != "development" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	c = TracingConfig{ServiceName: "worker"}.withDefaults()
	if c.ServiceName != "worker" {
		t.Fatalf("explicit name overwritten: %s", c.ServiceName)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := Sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("Sampler(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	ctx, stage := StartStageSpan(ctx, "load")
	_, doc := StartDocumentSpan(ctx, "carbon.xml")
	RecordDocumentResult(doc, 10, 8, 12)
	doc.End()

	_, embed := StartEmbedSpan(ctx, "ollama/all-minilm", 12)
	RecordError(embed, errors.New("connection refused"))
	embed.End()

	_, q := StartQuerySpan(ctx, "commits", 5)
	RecordError(q, nil)
	RecordQueryResult(q, 5, 0.93)
	q.End()
	stage.End()

	spans := rec.Ended()
	if len(spans) != 4 {
		t.Fatalf("expected 4 spans, got %d", len(spans))
	}
	byName := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range spans {
		byName[s.Name()] = s
	}
	for _, name := range []string{"pipeline.load", "pipeline.document", "embedding.encode", "query.search"} {
		if _, ok := byName[name]; !ok {
			t.Fatalf("missing span %s", name)
		}
	}

	parent := byName["pipeline.load"].SpanContext().SpanID()
	if got := byName["pipeline.document"].Parent().SpanID(); got != parent {
		t.Errorf("document span not parented to stage span")
	}
	if st := byName["embedding.encode"].Status(); st.Code != codes.Error {
		t.Errorf("embed status = %v, want error", st.Code)
	}
	if st := byName["query.search"].Status(); st.Code == codes.Error {
		t.Errorf("nil error should not fail the span")
	}

	attrs := make(map[string]int64)
	for _, kv := range byName["pipeline.document"].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInt64()
	}
	if attrs["logsift.commits"] != 10 || attrs["logsift.commits_added"] != 8 || attrs["logsift.units"] != 12 {
		t.Errorf("document attributes = %v", attrs)
	}
}
