// Package observability provides the tracing, metrics, structured logging
// and health-check infrastructure shared by the broker, the gateway and
// every agent process.
//
// It wires OpenTelemetry tracing (exported via OTLP/gRPC), OpenTelemetry
// metrics exposed through a Prometheus registry, a log/slog logger whose
// handler mirrors log records into span events and counters, and an
// HTTP health server exposing /health, /ready and /metrics.
//
//	obs, err := observability.NewObservability(observability.ConfigFromApp(cfg, "moderator"))
//	metricsManager, err := observability.NewMetricsManager(obs.Meter)
//	healthServer := observability.NewHealthServer(cfg.HealthPort, "moderator", "1.0.0")
//	healthServer.AddChecker("bus", observability.NewBusHealthChecker("bus", bus.Ping))
//
// Every process (broker, gateway, agent) constructs exactly one
// Observability value, scoped to its own instance ID, and shuts it down
// on exit so buffered spans and metrics are flushed. obs.Handler can be
// wired to a dead-letter sink with SetEventPoster so warn/error log
// entries are republished as diagnostics, not just recorded as metrics.
package observability
