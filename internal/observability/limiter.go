package observability

import (
	"context"
	"strings"
	"time"

	"chatgate/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chatgate/observability"

// InstrumentOption overrides the global providers used by instrumented wrappers.
type InstrumentOption func(*instrumentConfig)

type instrumentConfig struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithMeterProvider records instruments on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) InstrumentOption {
	return func(c *instrumentConfig) {
		c.meterProvider = mp
	}
}

// WithTracerProvider starts spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) InstrumentOption {
	return func(c *instrumentConfig) {
		c.tracerProvider = tp
	}
}

func newInstrumentConfig(opts []InstrumentOption) instrumentConfig {
	cfg := instrumentConfig{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// InstrumentedLimiter wraps a ratelimit.Limiter and counts admission
// decisions by scope and outcome. It also reports the number of tracked keys
// as an observable gauge.
type InstrumentedLimiter struct {
	inner        ratelimit.Limiter
	decisions    metric.Int64Counter
	duration     metric.Float64Histogram
	registration metric.Registration
}

// NewInstrumentedLimiter creates a limiter wrapper that records a decision
// counter, a check latency histogram and a tracked-keys gauge.
func NewInstrumentedLimiter(inner ratelimit.Limiter, opts ...InstrumentOption) (*InstrumentedLimiter, error) {
	cfg := newInstrumentConfig(opts)
	meter := cfg.meterProvider.Meter(instrumentationName)

	decisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Number of admission decisions made by the rate limiter"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"ratelimit.check.duration",
		metric.WithDescription("Duration of rate limiter checks in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	keys, err := meter.Int64ObservableGauge(
		"ratelimit.tracked_keys",
		metric.WithDescription("Number of keys holding a rate limit window"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, err
	}

	l := &InstrumentedLimiter{
		inner:     inner,
		decisions: decisions,
		duration:  duration,
	}

	l.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(keys, int64(inner.Len()))
		return nil
	}, keys)
	if err != nil {
		return nil, err
	}

	return l, nil
}

// Check implements ratelimit.Limiter.
func (l *InstrumentedLimiter) Check(key string, max int, window time.Duration) ratelimit.Decision {
	start := time.Now()
	decision := l.inner.Check(key, max, window)

	outcome := "admitted"
	if !decision.Admitted {
		outcome = "rejected"
	}

	ctx := context.Background()
	l.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scopeOf(key)),
		attribute.String("outcome", outcome),
	))
	l.duration.Record(ctx, time.Since(start).Seconds())

	return decision
}

// Len implements ratelimit.Limiter.
func (l *InstrumentedLimiter) Len() int {
	return l.inner.Len()
}

// Reset implements ratelimit.Limiter.
func (l *InstrumentedLimiter) Reset() {
	l.inner.Reset()
}

// Close unregisters the gauge callback and closes the wrapped limiter.
func (l *InstrumentedLimiter) Close() {
	if l.registration != nil {
		_ = l.registration.Unregister()
	}
	l.inner.Close()
}

// scopeOf returns the route scope of a limiter key. Client addresses are
// left out of metric attributes to keep cardinality bounded.
func scopeOf(key string) string {
	scope, _, found := strings.Cut(key, ":")
	if !found {
		return "default"
	}
	return scope
}

var _ ratelimit.Limiter = (*InstrumentedLimiter)(nil)
