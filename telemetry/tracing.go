// Package telemetry traces optimization runs with OpenTelemetry.
//
// A run produces one "rectopt.run" span per rank with a child span per
// round, and one span per lifecycle phase when driven through tasks.Run.
// Without InitProvider every span is a no-op.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with engine-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // rounds record their winning score
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracerFromProvider creates a tracer from tp.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(name),
		debug:  debug,
	}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Run Spans ---

// RunSpanOptions describes a run at its start.
type RunSpanOptions struct {
	RunID      string
	Mode       string
	Objective  string
	Iterations int
	Workers    int
	Rank       int
}

// StartRunSpan starts the span covering one rank's whole run.
func (t *Tracer) StartRunSpan(ctx context.Context, opts RunSpanOptions) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "rectopt.run", trace.WithSpanKind(trace.SpanKindInternal))
	attrs := []attribute.KeyValue{
		attribute.String("rectopt.mode", opts.Mode),
		attribute.Int("rectopt.iterations", opts.Iterations),
		attribute.Int("rectopt.workers", opts.Workers),
		attribute.Int("rectopt.rank", opts.Rank),
	}
	if opts.RunID != "" {
		attrs = append(attrs, attribute.String("rectopt.run_id", opts.RunID))
	}
	if opts.Objective != "" {
		attrs = append(attrs, attribute.String("rectopt.objective", opts.Objective))
	}
	span.SetAttributes(attrs...)
	return ctx, span
}

// RunResult describes a finished run.
type RunResult struct {
	Minimum  float64
	PoolSize int
	Rounds   int
}

// EndRunSpan ends a run span.
func (t *Tracer) EndRunSpan(span trace.Span, res RunResult, err error) {
	span.SetAttributes(
		attribute.Float64("rectopt.minimum", res.Minimum),
		attribute.Int("rectopt.pool_size", res.PoolSize),
		attribute.Int("rectopt.rounds", res.Rounds),
	)
	end(span, err)
}

// --- Round Spans ---

// RoundResult describes the decision taken in one round.
type RoundResult struct {
	PoolSize int
	Index    int
	Score    float64
}

// StartRoundSpan starts a span for one round.
func (t *Tracer) StartRoundSpan(ctx context.Context, round int) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "rectopt.round", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.Int("rectopt.round", round))
	return ctx, span
}

// EndRoundSpan ends a round span.
func (t *Tracer) EndRoundSpan(span trace.Span, res RoundResult, err error) {
	span.SetAttributes(
		attribute.Int("rectopt.pool_size", res.PoolSize),
		attribute.Int("rectopt.split_index", res.Index),
	)
	if t.debug {
		span.SetAttributes(attribute.Float64("rectopt.score", res.Score))
	}
	end(span, err)
}

// --- Phase Spans ---

// StartPhaseSpan starts a span for one lifecycle phase of a task.
func (t *Tracer) StartPhaseSpan(ctx context.Context, task, phase string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "task."+phase, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("task.name", task),
		attribute.String("task.phase", phase),
	)
	return ctx, span
}

// EndPhaseSpan ends a phase span.
func (t *Tracer) EndPhaseSpan(span trace.Span, err error) {
	end(span, err)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Context Propagation ---

// InjectContext injects trace context into a carrier for cross-process propagation.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// MapCarrier is a simple map-based TextMapCarrier for context propagation.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string {
	return c[key]
}

func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
