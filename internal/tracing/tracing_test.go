package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerWithoutEndpoint(t *testing.T) {
	tracer, closer, err := InitTracer("smashers-test", "")
	require.NoError(t, err)
	assert.NotNil(t, tracer)
	assert.NoError(t, closer.Close())
}

func TestSpanHelpers(t *testing.T) {
	tracer := mocktracer.New()
	prev := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(tracer)
	defer opentracing.SetGlobalTracer(prev)

	span, ctx := StartSpan(context.Background(), "analysis.generate")
	assert.NotNil(t, opentracing.SpanFromContext(ctx))

	SetTag(span, "model", "gemini-2.0-flash")
	LogEvent(span, "generating")
	LogError(span, errors.New("rate limited"))
	FinishSpan(span)

	finished := tracer.FinishedSpans()
	require.Len(t, finished, 1)
	assert.Equal(t, "analysis.generate", finished[0].OperationName)
	assert.Equal(t, "gemini-2.0-flash", finished[0].Tag("model"))
	assert.Equal(t, true, finished[0].Tag("error"))
	assert.Len(t, finished[0].Logs(), 2)
}

func TestHelpersTolerateNilSpan(t *testing.T) {
	FinishSpan(nil)
	LogError(nil, errors.New("ignored"))
	SetTag(nil, "k", "v")
	LogEvent(nil, "ignored")
}
