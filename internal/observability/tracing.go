// Package observability provides OpenTelemetry tracing and Prometheus
// metrics for logsift.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every logsift span.
const TracerName = "github.com/efebarandurmaz/logsift"

// Attribute keys set on logsift spans.
const (
	AttrStage      = attribute.Key("logsift.stage")
	AttrDocument   = attribute.Key("logsift.document")
	AttrCommits    = attribute.Key("logsift.commits")
	AttrAdded      = attribute.Key("logsift.commits_added")
	AttrUnits      = attribute.Key("logsift.units")
	AttrModel      = attribute.Key("logsift.embedding.model")
	AttrTexts      = attribute.Key("logsift.embedding.texts")
	AttrCollection = attribute.Key("logsift.collection")
	AttrLimit      = attribute.Key("logsift.query.limit")
	AttrHits       = attribute.Key("logsift.query.hits")
	AttrBestScore  = attribute.Key("logsift.query.best_score")
)

const (
	exportTimeout   = 10 * time.Second
	defaultService  = "logsift"
	defaultVersion  = "dev"
	defaultEnvLabel = "development"
)

// TracingConfig configures span export. An empty OTLPEndpoint disables
// export and leaves the global no-op provider in place.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint is a gRPC collector address such as "localhost:4317".
	OTLPEndpoint string
	// SampleRate is the fraction of traces kept, clamped to [0, 1].
	SampleRate float64
}

func (c TracingConfig) withDefaults() TracingConfig {
	if c.ServiceName == "" {
		c.ServiceName = defaultService
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = defaultVersion
	}
	if c.Environment == "" {
		c.Environment = defaultEnvLabel
	}
	return c
}

// TracerProvider owns the SDK provider when export is enabled.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// Enabled reports whether spans are exported.
func (tp *TracerProvider) Enabled() bool { return tp.provider != nil }

// InitTracing installs a batching OTLP provider and the W3C propagators as
// the process globals.
func InitTracing(ctx context.Context, cfg TracingConfig) (*TracerProvider, error) {
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{}, nil
	}
	cfg = cfg.withDefaults()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(exportTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter %s: %w", cfg.OTLPEndpoint, err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(Sampler(cfg.SampleRate))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &TracerProvider{provider: provider}, nil
}

// Sampler maps a sample rate onto a root sampler.
func Sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes pending spans. It is safe to call more than once.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

func start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// StartStageSpan starts a span for one pipeline stage.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return start(ctx, "pipeline."+stage, trace.SpanKindInternal, AttrStage.String(stage))
}

// StartDocumentSpan starts a span for ingesting one export document.
func StartDocumentSpan(ctx context.Context, path string) (context.Context, trace.Span) {
	return start(ctx, "pipeline.document", trace.SpanKindInternal, AttrDocument.String(path))
}

// RecordDocumentResult records what a document contributed.
func RecordDocumentResult(span trace.Span, commits, added, units int) {
	span.SetAttributes(AttrCommits.Int(commits), AttrAdded.Int(added), AttrUnits.Int(units))
}

// StartEmbedSpan starts a span for an embedding model call.
func StartEmbedSpan(ctx context.Context, model string, texts int) (context.Context, trace.Span) {
	return start(ctx, "embedding.encode", trace.SpanKindClient, AttrModel.String(model), AttrTexts.Int(texts))
}

// StartQuerySpan starts a span for a similarity search.
func StartQuerySpan(ctx context.Context, collection string, limit int) (context.Context, trace.Span) {
	return start(ctx, "query.search", trace.SpanKindInternal, AttrCollection.String(collection), AttrLimit.Int(limit))
}

// RecordQueryResult records the number of hits and the best score.
func RecordQueryResult(span trace.Span, hits int, best float32) {
	span.SetAttributes(AttrHits.Int(hits), AttrBestScore.Float64(float64(best)))
}

// RecordError marks span as failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
