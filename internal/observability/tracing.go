package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type TraceManager struct {
	tracer trace.Tracer
}

func NewTraceManager(serviceName string) *TraceManager {
	return &TraceManager{
		tracer: otel.Tracer(serviceName),
	}
}

func (tm *TraceManager) StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, operationName, trace.WithAttributes(attrs...))
}

func (tm *TraceManager) InjectTraceContext(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

func (tm *TraceManager) ExtractTraceContext(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

// StartPublishSpan starts a span around a single bus publish call.
func (tm *TraceManager) StartPublishSpan(ctx context.Context, channel, intent string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "bus.publish", trace.WithAttributes(
		attribute.String("messaging.system", "redis"),
		attribute.String("messaging.destination", channel),
		attribute.String("messaging.operation", "publish"),
		attribute.String("message.intent", intent),
	))
}

// StartConsumeSpan starts a span around a single bus-delivered message being
// handed to dispatch.
func (tm *TraceManager) StartConsumeSpan(ctx context.Context, channel, intent string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "bus.consume", trace.WithAttributes(
		attribute.String("messaging.system", "redis"),
		attribute.String("messaging.source", channel),
		attribute.String("messaging.operation", "receive"),
		attribute.String("message.intent", intent),
	))
}

func (tm *TraceManager) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(1, err.Error()) // Error status
	}
}

func (tm *TraceManager) SetSpanSuccess(span trace.Span) {
	span.SetStatus(2, "") // OK status
}

// AddTaskAttributes adds identifying task information to a span.
func (tm *TraceManager) AddTaskAttributes(span trace.Span, taskID, event string, extra map[string]any) {
	span.SetAttributes(
		attribute.String("task.id", taskID),
		attribute.String("task.event", event),
	)

	for key, value := range extra {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String("task.attr."+key, v))
		case float64:
			span.SetAttributes(attribute.Float64("task.attr."+key, v))
		case int:
			span.SetAttributes(attribute.Int("task.attr."+key, v))
		case bool:
			span.SetAttributes(attribute.Bool("task.attr."+key, v))
		default:
			span.SetAttributes(attribute.String("task.attr."+key, fmt.Sprintf("%v", v)))
		}
	}
}

// AddTaskOutcome records the terminal outcome of a task on its span.
func (tm *TraceManager) AddTaskOutcome(span trace.Span, outcome string, contributingAgents []string, errorMessage string) {
	span.SetAttributes(
		attribute.String("task.outcome", outcome),
		attribute.StringSlice("task.contributing_agents", contributingAgents),
	)
	if errorMessage != "" {
		span.SetAttributes(attribute.String("task.error", errorMessage))
	}
}

// AddSpanEvent adds a timestamped event to a span for tracking processing steps.
func (tm *TraceManager) AddSpanEvent(span trace.Span, eventName string, attributes ...attribute.KeyValue) {
	span.AddEvent(eventName, trace.WithAttributes(attributes...))
}

// AddComponentAttribute tags a span with the emitting component/agent name.
func (tm *TraceManager) AddComponentAttribute(span trace.Span, component string) {
	span.SetAttributes(attribute.String("fabric.component", component))
}
