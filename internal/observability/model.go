package observability

import (
	"context"
	"time"

	"chatgate/internal/chat"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedModel wraps a chat.Model implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedModel struct {
	inner    chat.Model
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	tokens   metric.Int64Counter
}

// NewInstrumentedModel creates a model wrapper that records a span, a latency
// histogram, an error counter and token usage for every Generate call.
func NewInstrumentedModel(inner chat.Model, opts ...InstrumentOption) (*InstrumentedModel, error) {
	cfg := newInstrumentConfig(opts)
	meter := cfg.meterProvider.Meter(instrumentationName)

	duration, err := meter.Float64Histogram(
		"model.request.duration",
		metric.WithDescription("Duration of model requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"model.request.errors",
		metric.WithDescription("Number of failed model requests"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	tokens, err := meter.Int64Counter(
		"model.tokens",
		metric.WithDescription("Tokens consumed by model requests"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedModel{
		inner:    inner,
		tracer:   cfg.tracerProvider.Tracer(instrumentationName),
		duration: duration,
		errors:   errCounter,
		tokens:   tokens,
	}, nil
}

// Name implements chat.Model.
func (m *InstrumentedModel) Name() string {
	return m.inner.Name()
}

// Generate implements chat.Model.
func (m *InstrumentedModel) Generate(ctx context.Context, req *chat.GenerateRequest) (*chat.GenerateResult, error) {
	ctx, span := m.tracer.Start(ctx, "model.Generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("model.name", m.inner.Name()),
			attribute.Int("model.messages", len(req.Messages)),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := m.inner.Generate(ctx, req)
	attrs := metric.WithAttributes(attribute.String("model", m.inner.Name()))
	m.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		m.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if result.Usage != nil {
		m.tokens.Add(ctx, int64(result.Usage.PromptTokens), metric.WithAttributes(
			attribute.String("model", m.inner.Name()), attribute.String("type", "prompt")))
		m.tokens.Add(ctx, int64(result.Usage.CandidatesTokens), metric.WithAttributes(
			attribute.String("model", m.inner.Name()), attribute.String("type", "candidates")))
	}
	span.SetAttributes(attribute.String("model.finish_reason", result.FinishReason))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

var _ chat.Model = (*InstrumentedModel)(nil)
