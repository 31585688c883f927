package observability

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsManager is the single metrics surface shared by the broker,
// gateway and every agent process. It mixes generic process metrics with
// counters specific to this system's domain: bus traffic, malformed/dropped
// messages, heartbeat state, estimator effort distribution, router
// decisions and orchestrator state transitions.
type MetricsManager struct {
	meter metric.Meter

	// Event metrics
	eventsProcessedTotal    metric.Int64Counter
	eventProcessingDuration metric.Float64Histogram
	eventErrorsTotal        metric.Int64Counter
	eventsPublishedTotal    metric.Int64Counter

	// System metrics
	processResidentMemoryBytes metric.Int64UpDownCounter
	goGoroutines               metric.Int64UpDownCounter
	goMemstatsAllocBytes       metric.Int64UpDownCounter

	// Message bus metrics
	busPublishDuration   metric.Float64Histogram
	busConsumeDuration   metric.Float64Histogram
	busConnectionErrors  metric.Int64Counter
	malformedMessages    metric.Int64Counter
	backpressureDropped  metric.Int64Counter
	duplicatesSuppressed metric.Int64Counter

	// Heartbeat / readiness metrics
	heartbeatMisses  metric.Int64Counter
	agentsOnline     metric.Int64UpDownCounter
	readinessUpdates metric.Int64Counter

	// Estimator metrics
	effortEstimates metric.Int64Counter

	// Router metrics
	routerDecisions       metric.Int64Counter
	routerExplorationRate metric.Float64Histogram

	// Orchestrator metrics
	taskTransitions metric.Int64Counter
	taskOutcomes    metric.Int64Counter
	loopsDetected   metric.Int64Counter
	killSwitches    metric.Int64Counter
}

func NewMetricsManager(meter metric.Meter) (*MetricsManager, error) {
	mm := &MetricsManager{meter: meter}

	var err error

	if mm.eventsProcessedTotal, err = meter.Int64Counter(
		"events_processed_total",
		metric.WithDescription("Total number of events processed"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.eventProcessingDuration, err = meter.Float64Histogram(
		"event_processing_duration_seconds",
		metric.WithDescription("Event processing duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if mm.eventErrorsTotal, err = meter.Int64Counter(
		"event_errors_total",
		metric.WithDescription("Total number of event processing errors"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.eventsPublishedTotal, err = meter.Int64Counter(
		"events_published_total",
		metric.WithDescription("Total number of events published"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.processResidentMemoryBytes, err = meter.Int64UpDownCounter(
		"process_resident_memory_bytes",
		metric.WithDescription("Resident memory size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if mm.goGoroutines, err = meter.Int64UpDownCounter(
		"go_goroutines",
		metric.WithDescription("Number of goroutines that currently exist"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.goMemstatsAllocBytes, err = meter.Int64UpDownCounter(
		"go_memstats_alloc_bytes",
		metric.WithDescription("Number of bytes allocated and still in use"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if mm.busPublishDuration, err = meter.Float64Histogram(
		"bus_publish_duration_seconds",
		metric.WithDescription("Bus publish duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if mm.busConsumeDuration, err = meter.Float64Histogram(
		"bus_consume_duration_seconds",
		metric.WithDescription("Bus consume duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if mm.busConnectionErrors, err = meter.Int64Counter(
		"bus_connection_errors_total",
		metric.WithDescription("Total number of bus connection errors"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.malformedMessages, err = meter.Int64Counter(
		"malformed_messages_total",
		metric.WithDescription("Total number of messages dropped for being malformed"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.backpressureDropped, err = meter.Int64Counter(
		"backpressure_dropped_total",
		metric.WithDescription("Total number of events dropped under backpressure"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.duplicatesSuppressed, err = meter.Int64Counter(
		"duplicates_suppressed_total",
		metric.WithDescription("Total number of duplicate messages suppressed by agents"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.heartbeatMisses, err = meter.Int64Counter(
		"heartbeat_misses_total",
		metric.WithDescription("Total number of agents observed offline at a readiness tick"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.agentsOnline, err = meter.Int64UpDownCounter(
		"agents_online",
		metric.WithDescription("Current count of agents reporting online"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.readinessUpdates, err = meter.Int64Counter(
		"readiness_updates_total",
		metric.WithDescription("Total number of system_status_update publications"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.effortEstimates, err = meter.Int64Counter(
		"effort_estimates_total",
		metric.WithDescription("Total number of reasoning-effort estimates by level"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.routerDecisions, err = meter.Int64Counter(
		"router_decisions_total",
		metric.WithDescription("Total number of router agent recommendations by method"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.routerExplorationRate, err = meter.Float64Histogram(
		"router_exploration_rate",
		metric.WithDescription("Observed exploration rate epsilon at decision time"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.taskTransitions, err = meter.Int64Counter(
		"task_transitions_total",
		metric.WithDescription("Total number of orchestrator state transitions"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.taskOutcomes, err = meter.Int64Counter(
		"task_outcomes_total",
		metric.WithDescription("Total number of terminal task outcomes"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.loopsDetected, err = meter.Int64Counter(
		"loops_detected_total",
		metric.WithDescription("Total number of proposal-loop detections"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.killSwitches, err = meter.Int64Counter(
		"kill_switches_total",
		metric.WithDescription("Total number of kill-switch activations"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	return mm, nil
}

func (mm *MetricsManager) IncrementEventsProcessed(ctx context.Context, eventType, source string, success bool) {
	mm.eventsProcessedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
		attribute.Bool("success", success),
	))
}

func (mm *MetricsManager) RecordEventProcessingDuration(ctx context.Context, eventType, source string, duration time.Duration) {
	mm.eventProcessingDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
	))
}

func (mm *MetricsManager) IncrementEventErrors(ctx context.Context, eventType, source, errorType string) {
	mm.eventErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
		attribute.String("error", errorType),
	))
}

func (mm *MetricsManager) IncrementEventsPublished(ctx context.Context, eventType, destination string) {
	mm.eventsPublishedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("destination", destination),
	))
}

func (mm *MetricsManager) UpdateSystemMetrics(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.goGoroutines.Add(ctx, int64(runtime.NumGoroutine()))
	mm.goMemstatsAllocBytes.Add(ctx, int64(m.Alloc))
	mm.processResidentMemoryBytes.Add(ctx, int64(m.Sys))
}

func (mm *MetricsManager) RecordBusPublishDuration(ctx context.Context, channel string, duration time.Duration) {
	mm.busPublishDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("channel", channel),
	))
}

func (mm *MetricsManager) RecordBusConsumeDuration(ctx context.Context, channel string, duration time.Duration) {
	mm.busConsumeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("channel", channel),
	))
}

func (mm *MetricsManager) IncrementBusConnectionErrors(ctx context.Context) {
	mm.busConnectionErrors.Add(ctx, 1)
}

func (mm *MetricsManager) IncrementMalformedMessages(ctx context.Context, channel string) {
	mm.malformedMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

func (mm *MetricsManager) IncrementBackpressureDropped(ctx context.Context, reason string) {
	mm.backpressureDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (mm *MetricsManager) IncrementDuplicatesSuppressed(ctx context.Context, agent string) {
	mm.duplicatesSuppressed.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

func (mm *MetricsManager) IncrementHeartbeatMisses(ctx context.Context, agent string) {
	mm.heartbeatMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

func (mm *MetricsManager) SetAgentsOnline(ctx context.Context, delta int64) {
	mm.agentsOnline.Add(ctx, delta)
}

func (mm *MetricsManager) IncrementReadinessUpdates(ctx context.Context) {
	mm.readinessUpdates.Add(ctx, 1)
}

func (mm *MetricsManager) IncrementEffortEstimate(ctx context.Context, level string) {
	mm.effortEstimates.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level)))
}

func (mm *MetricsManager) IncrementRouterDecision(ctx context.Context, method string) {
	mm.routerDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

func (mm *MetricsManager) RecordExplorationRate(ctx context.Context, epsilon float64) {
	mm.routerExplorationRate.Record(ctx, epsilon)
}

func (mm *MetricsManager) IncrementTaskTransition(ctx context.Context, from, to string) {
	mm.taskTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (mm *MetricsManager) IncrementTaskOutcome(ctx context.Context, outcome string) {
	mm.taskOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (mm *MetricsManager) IncrementLoopsDetected(ctx context.Context, taskID string) {
	mm.loopsDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("task_id", taskID)))
}

func (mm *MetricsManager) IncrementKillSwitches(ctx context.Context, reason string) {
	mm.killSwitches.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// StartTimer returns a function that records elapsed time against
// eventProcessingDuration when invoked; mirrors the publisher/subscriber
// timing pattern used across the agent runtime.
func (mm *MetricsManager) StartTimer() func(ctx context.Context, eventType, source string) {
	start := time.Now()
	return func(ctx context.Context, eventType, source string) {
		mm.RecordEventProcessingDuration(ctx, eventType, source, time.Since(start))
	}
}
