package observability

import (
	"context"
	"errors"
	"testing"

	"chatgate/internal/chat"
	"chatgate/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type stubModel struct {
	result *chat.GenerateResult
	err    error
}

func (s *stubModel) Generate(ctx context.Context, req *chat.GenerateRequest) (*chat.GenerateResult, error) {
	return s.result, s.err
}

func (s *stubModel) Name() string {
	return "stub-model"
}

func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	return tp, recorder
}

func TestInstrumentedModel_Success(t *testing.T) {
	mp, reader := newManualMeterProvider(t)
	tp, recorder := newTestTracerProvider(t)

	inner := &stubModel{result: &chat.GenerateResult{
		Text:         "hi",
		FinishReason: "STOP",
		Usage:        &models.TokenUsage{PromptTokens: 7, CandidatesTokens: 3, TotalTokens: 10},
	}}
	model, err := NewInstrumentedModel(inner, WithMeterProvider(mp), WithTracerProvider(tp))
	require.NoError(t, err)

	result, err := model.Generate(context.Background(), &chat.GenerateRequest{
		Messages: []chat.Message{{Role: "user", Parts: []chat.Part{{Text: "hello"}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Text)
	assert.Equal(t, "stub-model", model.Name())

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "model.Generate", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	metrics := collect(t, reader)
	tokens, ok := metrics["model.tokens"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range tokens.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(10), total)

	_, hasErrors := metrics["model.request.errors"]
	assert.False(t, hasErrors, "no error data points should be recorded")
}

func TestInstrumentedModel_Error(t *testing.T) {
	mp, reader := newManualMeterProvider(t)
	tp, recorder := newTestTracerProvider(t)

	upstream := errors.New("connection refused")
	model, err := NewInstrumentedModel(&stubModel{err: upstream}, WithMeterProvider(mp), WithTracerProvider(tp))
	require.NoError(t, err)

	_, err = model.Generate(context.Background(), &chat.GenerateRequest{})
	assert.Equal(t, upstream, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	metrics := collect(t, reader)
	errs, ok := metrics["model.request.errors"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errs.DataPoints, 1)
	assert.Equal(t, int64(1), errs.DataPoints[0].Value)
}
