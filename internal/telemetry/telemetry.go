// Package telemetry provides the OTEL-backed deskmirror.Tracer
// implementation plus process-wide OTLP setup, grounded in the teacher's
// observer package (observer.go's Init/newInstruments, tracer.go's span
// wrapper) but trimmed to traces + metrics only — this repo's go.mod does
// not carry the otlploghttp/sdk/log exporters the teacher's observer.go
// additionally wires, so no log bridge is built (see DESIGN.md).
package telemetry

import (
	"context"
	"encoding/json"
	"errors"

	deskmirror "github.com/mjhale/deskmirror"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/mjhale/deskmirror"

// Tracer adapts an OTEL trace.Tracer to deskmirror.Tracer, matching the
// teacher's ObservedAgent span shape (one span per operation, attributes
// attached at creation and on error) but as a standalone decorator rather
// than wrapping a specific provider type, since deskmirror.Tracer is
// consumed by three independent components (Agent, Scheduler, SyncWorker).
type Tracer struct {
	tracer trace.Tracer
}

// New wraps the given OTEL tracer (normally otel.Tracer(scopeName)) as a
// deskmirror.Tracer.
func New(t trace.Tracer) *Tracer {
	return &Tracer{tracer: t}
}

func (t *Tracer) Start(ctx context.Context, name string, attrs ...deskmirror.SpanAttr) (context.Context, deskmirror.Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(toOTEL(attrs)...))
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) SetAttr(attrs ...deskmirror.SpanAttr) {
	s.span.SetAttributes(toOTEL(attrs)...)
}

func (s *otelSpan) Event(name string, attrs ...deskmirror.SpanAttr) {
	s.span.AddEvent(name, trace.WithAttributes(toOTEL(attrs)...))
}

func (s *otelSpan) Error(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() {
	s.span.End()
}

func toOTEL(attrs []deskmirror.SpanAttr) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			out = append(out, attribute.String(a.Key, v))
		case int:
			out = append(out, attribute.Int(a.Key, v))
		case bool:
			out = append(out, attribute.Bool(a.Key, v))
		case float64:
			out = append(out, attribute.Float64(a.Key, v))
		default:
			out = append(out, attribute.String(a.Key, "unsupported attr type"))
		}
	}
	return out
}

// Instruments holds the counters and histograms cmd/syncd and cmd/assistant
// record against, mirroring the teacher's Instruments struct's shape
// (per-concern counters + duration histograms) scaled to this repo's
// components instead of the teacher's LLM-agent-only set.
type Instruments struct {
	Tracer *Tracer
	Meter  metric.Meter

	SyncTicks      metric.Int64Counter
	SyncErrors     metric.Int64Counter
	SyncDuration   metric.Float64Histogram
	RateLimitWaits metric.Int64Counter
	ToolExecutions metric.Int64Counter
	LLMTokens      metric.Int64Counter
}

// Init sets up OTEL trace + metric providers with OTLP HTTP exporters,
// configured from the standard OTEL_EXPORTER_OTLP_* env vars, matching the
// teacher's observer.Init. Returns a shutdown func callers defer at process
// exit.
func Init(ctx context.Context, serviceName string) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	meter := otel.Meter(scopeName)

	syncTicks, err := meter.Int64Counter("scheduler.ticks", metric.WithDescription("Scheduler ticks run"))
	if err != nil {
		return nil, err
	}
	syncErrors, err := meter.Int64Counter("syncworker.errors", metric.WithDescription("SyncWorker failures"))
	if err != nil {
		return nil, err
	}
	syncDuration, err := meter.Float64Histogram("syncworker.duration", metric.WithDescription("SyncWorker sweep duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	rateLimitWaits, err := meter.Int64Counter("rategate.retries", metric.WithDescription("RateGate retry-after waits"))
	if err != nil {
		return nil, err
	}
	toolExecutions, err := meter.Int64Counter("agent.tool_executions", metric.WithDescription("Agent tool dispatches"))
	if err != nil {
		return nil, err
	}
	llmTokens, err := meter.Int64Counter("agent.llm_tokens", metric.WithDescription("LLM tokens consumed"), metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:         New(otel.Tracer(scopeName)),
		Meter:          meter,
		SyncTicks:      syncTicks,
		SyncErrors:     syncErrors,
		SyncDuration:   syncDuration,
		RateLimitWaits: rateLimitWaits,
		ToolExecutions: toolExecutions,
		LLMTokens:      llmTokens,
	}, nil
}

// observedProvider wraps a deskmirror.Provider, recording token counts to
// Instruments.LLMTokens — the same wrap-at-the-interface-boundary idiom as
// the teacher's observer.WrapProvider, trimmed to this repo's single
// counter instead of the teacher's cost/duration/log bundle.
type observedProvider struct {
	inner deskmirror.Provider
	inst  *Instruments
	model string
}

// WrapProvider instruments a Provider so every Complete call's token usage
// is recorded against inst.LLMTokens, tagged by model and direction.
func WrapProvider(inner deskmirror.Provider, model string, inst *Instruments) deskmirror.Provider {
	return &observedProvider{inner: inner, inst: inst, model: model}
}

func (o *observedProvider) Name() string { return o.inner.Name() }

func (o *observedProvider) Complete(ctx context.Context, req deskmirror.ChatRequest) (deskmirror.ChatResponse, error) {
	resp, err := o.inner.Complete(ctx, req)
	o.inst.LLMTokens.Add(ctx, int64(resp.Usage.InputTokens), metric.WithAttributes(
		attribute.String("model", o.model), attribute.String("direction", "input")))
	o.inst.LLMTokens.Add(ctx, int64(resp.Usage.OutputTokens), metric.WithAttributes(
		attribute.String("model", o.model), attribute.String("direction", "output")))
	return resp, err
}

// observedTool wraps a deskmirror.Tool, recording one ToolExecutions count
// per Execute call, tagged by tool name and outcome.
type observedTool struct {
	inner deskmirror.Tool
	inst  *Instruments
}

// WrapTool instruments a Tool so every Execute call increments
// inst.ToolExecutions.
func WrapTool(inner deskmirror.Tool, inst *Instruments) deskmirror.Tool {
	return &observedTool{inner: inner, inst: inst}
}

func (o *observedTool) Definitions() []deskmirror.ToolDefinition { return o.inner.Definitions() }

func (o *observedTool) Execute(ctx context.Context, name string, args json.RawMessage) (deskmirror.ToolResult, error) {
	result, err := o.inner.Execute(ctx, name, args)
	status := "ok"
	if err != nil || result.Error != "" {
		status = "error"
	}
	o.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", name), attribute.String("status", status)))
	return result, err
}

var _ deskmirror.Tracer = (*Tracer)(nil)
var _ deskmirror.Provider = (*observedProvider)(nil)
var _ deskmirror.Tool = (*observedTool)(nil)
