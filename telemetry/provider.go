package telemetry

import (
	"context"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/vinayprograms/rectopt/errors"
)

// DefaultServiceName is used when neither the config nor OTEL_SERVICE_NAME
// names the service.
const DefaultServiceName = "rectopt"

// ProviderConfig configures OTLP export for one process.
type ProviderConfig struct {
	// ServiceName defaults to OTEL_SERVICE_NAME, then DefaultServiceName.
	ServiceName string

	ServiceVersion string

	// Endpoint is host:port of the collector. Empty falls back to
	// OTEL_EXPORTER_OTLP_ENDPOINT; with neither set InitProvider fails.
	Endpoint string

	// Protocol is "grpc" (default) or "http".
	Protocol string

	// Insecure disables TLS.
	Insecure bool

	// Debug records per-round scores on round spans.
	Debug bool

	// Group and Rank identify this process within a multi-process run and
	// are attached to every span as resource attributes. Rank < 0 omits it.
	Group string
	Rank  int

	// SampleRatio is the fraction of runs traced. Zero or >= 1 traces all.
	SampleRatio float64

	Headers map[string]string

	// BatchTimeout is the maximum time to wait before sending a batch.
	BatchTimeout time.Duration

	// ExportTimeout bounds each export call.
	ExportTimeout time.Duration
}

// Provider owns the SDK tracer provider installed by InitProvider.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer *Tracer
}

// InitProvider installs an OTLP tracer provider as the global provider,
// sets W3C trace-context propagation and makes its Tracer the global one.
// The provider must be shut down to flush pending spans.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return nil, errors.InvalidInput("telemetry endpoint not configured (set endpoint or OTEL_EXPORTER_OTLP_ENDPOINT)")
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")

	if cfg.SampleRatio < 0 {
		return nil, errors.InvalidInput("telemetry sample ratio must not be negative")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	res, err := newResource(serviceName, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "telemetry resource")
	}

	exporter, err := newExporter(ctx, endpoint, cfg)
	if err != nil {
		return nil, err
	}

	var batchOpts []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batchOpts...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRatio)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := NewTracerFromProvider(tp, serviceName, cfg.Debug)
	SetGlobalTracer(tracer)

	return &Provider{tp: tp, tracer: tracer}, nil
}

func newResource(serviceName string, cfg ProviderConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Group != "" {
		attrs = append(attrs, attribute.String("rectopt.group", cfg.Group))
	}
	if cfg.Rank >= 0 {
		attrs = append(attrs, attribute.Int("rectopt.rank", cfg.Rank))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// newSampler keeps parent decisions so every rank of a traced run is
// traced too.
func newSampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func newExporter(ctx context.Context, endpoint string, cfg ProviderConfig) (sdktrace.SpanExporter, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)

	switch cfg.Protocol {
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		if cfg.ExportTimeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)

	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		if cfg.ExportTimeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(cfg.ExportTimeout))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)

	default:
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "unknown telemetry protocol %q (use grpc or http)", cfg.Protocol)
	}

	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "create "+cfg.Protocol+" exporter")
	}
	return exporter, nil
}

// Tracer returns the tracer for this provider.
func (p *Provider) Tracer() *Tracer {
	return p.tracer
}

// Shutdown flushes pending spans and stops export.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}
