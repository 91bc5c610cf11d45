package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const PACKAGE = "peercall"

var tracer = otel.Tracer(PACKAGE)

// Telemetry is a span together with the context it lives in. Every negotiation session
// gets one for its whole lifetime, the transitions are recorded as events.
type Telemetry struct {
	span    trace.Span
	context context.Context //nolint:containedctx
}

func NewTelemetry(ctx context.Context, name string, attributes ...attribute.KeyValue) *Telemetry {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attributes...))

	return &Telemetry{
		span:    span,
		context: ctx,
	}
}

func (t *Telemetry) CreateChild(name string, attributes ...attribute.KeyValue) *Telemetry {
	return NewTelemetry(t.context, name, attributes...)
}

// The context carrying the span, for the operations that should be traced as children.
func (t *Telemetry) Context() context.Context {
	return t.context
}

func (t *Telemetry) AddEvent(text string, attributes ...attribute.KeyValue) {
	t.span.AddEvent(text, trace.WithAttributes(attributes...))
}

func (t *Telemetry) SetAttributes(attributes ...attribute.KeyValue) {
	t.span.SetAttributes(attributes...)
}

// Records a state transition as an event and keeps the latest state as an attribute.
func (t *Telemetry) Transition(from, to string) {
	t.span.AddEvent("state changed", trace.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
	t.span.SetAttributes(attribute.String("state", to))
}

func (t *Telemetry) AddError(err error) {
	t.span.RecordError(err)
}

func (t *Telemetry) Fail(err error) {
	t.span.SetStatus(codes.Error, err.Error())
	t.AddError(err)
}

func (t *Telemetry) End() {
	t.span.End()
}
