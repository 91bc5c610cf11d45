package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))

	previous := tracer
	tracer = provider.Tracer(PACKAGE)
	t.Cleanup(func() { tracer = previous })

	return recorder
}

func TestTelemetry_Transitions(t *testing.T) {
	recorder := recordSpans(t)

	session := NewTelemetry(context.Background(), "session", attribute.String("peer_id", "b"))
	session.Transition("idle", "offering")
	session.Transition("offering", "awaiting-answer")
	session.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "session", spans[0].Name())
	require.Len(t, spans[0].Events(), 2)
	assert.Contains(t, spans[0].Attributes(), attribute.String("state", "awaiting-answer"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("peer_id", "b"))
}

func TestTelemetry_ChildAndFailure(t *testing.T) {
	recorder := recordSpans(t)

	parent := NewTelemetry(context.Background(), "session")
	child := parent.CreateChild("acquire media")
	child.Fail(errors.New("no camera"))
	child.End()
	parent.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
}

func TestSetupTelemetry_Disabled(t *testing.T) {
	provider, err := SetupTelemetry(Config{})
	require.NoError(t, err)
	assert.Nil(t, provider)
}

func TestNewResource_GeneratesID(t *testing.T) {
	res, err := NewResource("peercall", "")
	require.NoError(t, err)

	value, ok := res.Set().Value("ID")
	require.True(t, ok)
	assert.NotEmpty(t, value.AsString())
}
